// Package treestore loads, mutates and atomically persists trees chosen by the
// selector.
package treestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/codec"
	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/storage"
	"github.com/starford/mind/internal/tree"
)

// Registrar records new global-project trees.
type Registrar interface {
	Register(ctx context.Context, cwd string) (registry.Project, error)
	Unregister(ctx context.Context, cwd string) error
}

// Handle is a loaded tree together with the on-disk version it was read from.
type Handle struct {
	Tree      *tree.Tree
	Selection selector.Selection

	files  *storage.FS
	marker storage.Marker
}

// Files returns the file store rooted at the tree's storage root.
func (h *Handle) Files() *storage.FS { return h.files }

// Checksum returns the checksum of the file version the handle is based on.
func (h *Handle) Checksum() string { return h.marker.Checksum }

// Store coordinates selection, codec and storage.
type Store struct {
	logger    *slog.Logger
	registrar Registrar
	rootName  string
	rootIcon  string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRegistrar enables Init of global-project trees.
func WithRegistrar(r Registrar) Option {
	return func(s *Store) { s.registrar = r }
}

// WithRoot sets the root text and icon of implicitly created trees.
func WithRoot(name, icon string) Option {
	return func(s *Store) {
		s.rootName = name
		s.rootIcon = icon
	}
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default(), rootName: "mind"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the selected tree. A missing global tree is created and
// persisted; any other missing tree is apperr.ErrTreeNotFound.
func (s *Store) Load(ctx context.Context, sel selector.Selection) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !sel.Registered {
		return nil, fmt.Errorf("%w: no project registered for %s", apperr.ErrTreeNotFound, sel.Cwd)
	}

	exists, err := fileExists(sel.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		if sel.Category != tree.CategoryGlobal {
			return nil, fmt.Errorf("%w: %s", apperr.ErrTreeNotFound, sel.Path)
		}
		s.logger.Info("creating global tree", slog.String("path", sel.Path))
		return s.create(sel)
	}

	files, err := storage.NewFS(sel.Root())
	if err != nil {
		return nil, err
	}
	name := filepath.Base(sel.Path)
	marker, err := files.Marker(name)
	if err != nil {
		return nil, err
	}
	data, err := files.Read(name)
	if err != nil {
		return nil, err
	}
	t, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sel.Path, err)
	}
	if t.Category != sel.Category {
		s.logger.Debug("tree category differs from its location",
			slog.String("path", sel.Path),
			slog.String("stored", string(t.Category)),
			slog.String("selected", string(sel.Category)))
		t.Category = sel.Category
	}
	t.Location = sel.Path
	if t.MigratedFrom != 0 {
		s.logger.Info("tree upgraded in memory",
			slog.String("path", sel.Path),
			slog.Int("from", t.MigratedFrom),
			slog.Int("to", tree.CurrentVersion))
	}
	return &Handle{Tree: t, Selection: sel, files: files, marker: marker}, nil
}

// Save encodes the tree and atomically replaces its file. If the file changed
// on disk since it was loaded, nothing is written and apperr.ErrStaleRead is
// returned.
func (s *Store) Save(ctx context.Context, h *Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(h.Selection.Path)
	current, err := h.files.Marker(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !h.marker.IsZero() {
			return fmt.Errorf("%w: %s was removed", apperr.ErrStaleRead, h.Selection.Path)
		}
	case err != nil:
		return err
	case !h.marker.Same(current):
		return fmt.Errorf("%w: %s changed on disk", apperr.ErrStaleRead, h.Selection.Path)
	}
	return s.write(h)
}

// Update loads the selected tree, applies fn and saves the result. Nothing is
// written to the tree file when fn fails.
func (s *Store) Update(ctx context.Context, sel selector.Selection, fn func(*Handle) error) (*Handle, error) {
	h, err := s.Load(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Init explicitly creates the selected tree. It fails with
// apperr.ErrAlreadyExists when the tree file is present. Global-project trees
// are registered for their working directory.
func (s *Store) Init(ctx context.Context, sel selector.Selection, name, icon string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exists, err := fileExists(sel.Path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, sel.Path)
	}
	if name == "" {
		name = s.rootName
	}

	registered := false
	if sel.Category == tree.CategoryGlobalProject && !sel.Registered {
		if s.registrar == nil {
			return nil, errors.New("treestore: no project registry configured")
		}
		p, err := s.registrar.Register(ctx, sel.Cwd)
		if err != nil {
			return nil, err
		}
		sel.Key = p.Key
		sel.Registered = true
		registered = true
	}

	h, err := s.createNamed(sel, name, icon)
	if err != nil {
		if registered {
			if uerr := s.registrar.Unregister(ctx, sel.Cwd); uerr != nil {
				s.logger.Warn("rollback registration failed",
					slog.String("cwd", sel.Cwd),
					slog.String("error", uerr.Error()))
			}
		}
		return nil, err
	}
	s.logger.Info("tree initialized",
		slog.String("category", string(sel.Category)),
		slog.String("path", sel.Path))
	return h, nil
}

func (s *Store) create(sel selector.Selection) (*Handle, error) {
	return s.createNamed(sel, s.rootName, s.rootIcon)
}

func (s *Store) createNamed(sel selector.Selection, name, icon string) (*Handle, error) {
	t, err := tree.New(name, icon, sel.Category, sel.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(sel.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("treestore: mkdir: %w", err)
	}
	files, err := storage.NewFS(sel.Root())
	if err != nil {
		return nil, err
	}
	h := &Handle{Tree: t, Selection: sel, files: files}
	if err := s.write(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Store) write(h *Handle) error {
	data, err := codec.Encode(h.Tree)
	if err != nil {
		return err
	}
	name := filepath.Base(h.Selection.Path)
	if err := h.files.Write(name, data); err != nil {
		return err
	}
	marker, err := h.files.Marker(name)
	if err != nil {
		return err
	}
	h.marker = marker
	h.Tree.Version = tree.CurrentVersion
	h.Tree.MigratedFrom = 0
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("treestore: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("treestore: %s is a directory", path)
	}
	return true, nil
}
