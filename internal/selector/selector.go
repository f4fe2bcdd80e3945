// Package selector decides which persisted tree applies to a working directory.
package selector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/tree"
)

// On-disk layout.
const (
	MarkerDir   = ".mind"
	TreeFile    = "tree.json"
	ProjectsDir = "projects"
)

// Projects is the subset of the registry the selector reads.
type Projects interface {
	Lookup(ctx context.Context, cwd string) (registry.Project, bool, error)
	List(ctx context.Context) ([]registry.Project, error)
}

// Selection names one tree file.
type Selection struct {
	Category tree.Category
	// Path is the absolute tree file location.
	Path string
	// Cwd is the working directory the selection was made for.
	Cwd string
	// Key is the project directory key of a global-project selection.
	Key string
	// Registered is false for a forced global-project selection of a
	// directory that has no mapping yet.
	Registered bool
}

// Root is the storage root data files resolve against.
func (s Selection) Root() string { return filepath.Dir(s.Path) }

// Selector resolves working directories against a global state directory.
type Selector struct {
	stateDir string
	projects Projects
}

// New returns a selector over stateDir. projects may be nil when no project
// registry is available; global-project trees are then never selected.
func New(stateDir string, projects Projects) *Selector {
	return &Selector{stateDir: filepath.Clean(stateDir), projects: projects}
}

// StateDir returns the global state directory.
func (s *Selector) StateDir() string { return s.stateDir }

// Global returns the selection of the main tree.
func (s *Selector) Global() Selection {
	return Selection{
		Category:   tree.CategoryGlobal,
		Path:       filepath.Join(s.stateDir, TreeFile),
		Registered: true,
	}
}

// Select applies the resolution order: a local marker directory at exactly
// cwd, then an exact cwd mapping in the registry, then the global tree. No
// ancestor directories are consulted.
func (s *Selector) Select(ctx context.Context, cwd string) (Selection, error) {
	cwd, err := clean(cwd)
	if err != nil {
		return Selection{}, err
	}

	ok, err := HasMarker(cwd)
	if err != nil {
		return Selection{}, err
	}
	if ok {
		return s.local(cwd), nil
	}

	if s.projects != nil {
		p, ok, err := s.projects.Lookup(ctx, cwd)
		if err != nil {
			return Selection{}, err
		}
		if ok {
			return s.project(cwd, p.Key, true), nil
		}
	}

	g := s.Global()
	g.Cwd = cwd
	return g, nil
}

// SelectCategory forces a category. The selection is returned even when the
// tree does not exist yet so that it can be initialized.
func (s *Selector) SelectCategory(ctx context.Context, cwd string, category tree.Category) (Selection, error) {
	cwd, err := clean(cwd)
	if err != nil {
		return Selection{}, err
	}
	switch category {
	case tree.CategoryGlobal:
		g := s.Global()
		g.Cwd = cwd
		return g, nil
	case tree.CategoryLocalProject:
		return s.local(cwd), nil
	case tree.CategoryGlobalProject:
		if s.projects != nil {
			p, ok, err := s.projects.Lookup(ctx, cwd)
			if err != nil {
				return Selection{}, err
			}
			if ok {
				return s.project(cwd, p.Key, true), nil
			}
		}
		return s.project(cwd, registry.KeyFor(cwd), false), nil
	default:
		return Selection{}, fmt.Errorf("selector: unknown category %q", category)
	}
}

// TreeInfo describes one tree reachable from a working directory.
type TreeInfo struct {
	Selection
	Exists bool
	// Active marks the tree Select would pick for the directory.
	Active bool
}

// ListTrees enumerates the global tree, the local tree at cwd when its marker
// is present and every registered global-project tree.
func (s *Selector) ListTrees(ctx context.Context, cwd string) ([]TreeInfo, error) {
	active, err := s.Select(ctx, cwd)
	if err != nil {
		return nil, err
	}

	sels := []Selection{s.Global()}
	if active.Category == tree.CategoryLocalProject {
		sels = append(sels, active)
	}
	if s.projects != nil {
		projects, err := s.projects.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			sels = append(sels, s.project(p.Cwd, p.Key, true))
		}
	}

	out := make([]TreeInfo, 0, len(sels))
	for _, sel := range sels {
		exists, err := fileExists(sel.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, TreeInfo{
			Selection: sel,
			Exists:    exists,
			Active:    sel.Path == active.Path,
		})
	}
	return out, nil
}

// HasMarker reports whether dir itself contains the local tree marker directory.
func HasMarker(dir string) (bool, error) {
	info, err := os.Stat(filepath.Join(dir, MarkerDir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("selector: stat marker: %w", err)
	}
	return info.IsDir(), nil
}

func (s *Selector) local(cwd string) Selection {
	return Selection{
		Category:   tree.CategoryLocalProject,
		Path:       filepath.Join(cwd, MarkerDir, TreeFile),
		Cwd:        cwd,
		Registered: true,
	}
}

func (s *Selector) project(cwd, key string, registered bool) Selection {
	return Selection{
		Category:   tree.CategoryGlobalProject,
		Path:       filepath.Join(s.stateDir, ProjectsDir, key, TreeFile),
		Cwd:        cwd,
		Key:        key,
		Registered: registered,
	}
}

func clean(cwd string) (string, error) {
	if cwd == "" {
		return "", errors.New("selector: empty working directory")
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("selector: resolve working directory: %w", err)
	}
	return abs, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("selector: stat %s: %w", path, err)
	}
	return true, nil
}
