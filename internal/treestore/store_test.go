package treestore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/tree"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRegistry struct {
	projects map[string]registry.Project
	fail     error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{projects: map[string]registry.Project{}}
}

func (f *fakeRegistry) Lookup(_ context.Context, cwd string) (registry.Project, bool, error) {
	p, ok := f.projects[cwd]
	return p, ok, nil
}

func (f *fakeRegistry) List(context.Context) ([]registry.Project, error) {
	var out []registry.Project
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRegistry) Register(_ context.Context, cwd string) (registry.Project, error) {
	if f.fail != nil {
		return registry.Project{}, f.fail
	}
	p := registry.Project{Cwd: cwd, Key: registry.KeyFor(cwd)}
	f.projects[cwd] = p
	return p, nil
}

func (f *fakeRegistry) Unregister(_ context.Context, cwd string) error {
	delete(f.projects, cwd)
	return nil
}

type env struct {
	state string
	work  string
	reg   *fakeRegistry
	sel   *selector.Selector
	store *Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		state: filepath.Join(base, "state"),
		work:  filepath.Join(base, "work"),
		reg:   newFakeRegistry(),
	}
	require.NoError(t, os.MkdirAll(e.work, 0o755))
	e.sel = selector.New(e.state, e.reg)
	e.store = New(WithLogger(quietLogger()), WithRegistrar(e.reg), WithRoot("Main", "*"))
	return e
}

func (e *env) selectFor(t *testing.T) selector.Selection {
	t.Helper()
	sel, err := e.sel.Select(context.Background(), e.work)
	require.NoError(t, err)
	return sel
}

func TestLoadCreatesGlobalTree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sel := e.selectFor(t)
	require.Equal(t, tree.CategoryGlobal, sel.Category)

	h, err := e.store.Load(ctx, sel)
	require.NoError(t, err)
	root, err := h.Tree.Graph.Node(h.Tree.Graph.Root())
	require.NoError(t, err)
	assert.Equal(t, "Main", root.Text)
	assert.Equal(t, "*", root.Icon)
	assert.NotEmpty(t, h.Checksum())

	// The implicit tree is persisted.
	data, err := os.ReadFile(filepath.Join(e.state, "tree.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 2`)
}

func TestLoadNeverCreatesProjectTrees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Local marker without a tree file.
	require.NoError(t, os.Mkdir(filepath.Join(e.work, ".mind"), 0o755))
	_, err := e.store.Load(ctx, e.selectFor(t))
	assert.ErrorIs(t, err, apperr.ErrTreeNotFound)
	_, err = os.Stat(filepath.Join(e.work, ".mind", "tree.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, os.Remove(filepath.Join(e.work, ".mind")))

	// Registered project whose tree file is gone.
	e.reg.projects[e.work] = registry.Project{Cwd: e.work, Key: "gone"}
	_, err = e.store.Load(ctx, e.selectFor(t))
	assert.ErrorIs(t, err, apperr.ErrTreeNotFound)
	delete(e.reg.projects, e.work)

	// Forced project selection without registration.
	sel, err := e.sel.SelectCategory(ctx, e.work, tree.CategoryGlobalProject)
	require.NoError(t, err)
	_, err = e.store.Load(ctx, sel)
	assert.ErrorIs(t, err, apperr.ErrTreeNotFound)
}

func TestUpdatePersists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sel := e.selectFor(t)

	var id tree.NodeID
	_, err := e.store.Update(ctx, sel, func(h *Handle) error {
		var err error
		g := h.Tree.Graph
		id, err = g.InsertChild(g.Root(), tree.Last, tree.NodeSpec{Text: "Tasks"})
		return err
	})
	require.NoError(t, err)

	h, err := e.store.Load(ctx, sel)
	require.NoError(t, err)
	got, err := h.Tree.Graph.Resolve("/Tasks")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sel := e.selectFor(t)
	_, err := e.store.Load(ctx, sel)
	require.NoError(t, err)
	before, err := os.ReadFile(sel.Path)
	require.NoError(t, err)

	_, err = e.store.Update(ctx, sel, func(h *Handle) error {
		_, err := h.Tree.Graph.Delete(h.Tree.Graph.Root())
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrCannotDeleteRoot)

	after, err := os.ReadFile(sel.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveDetectsStaleRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sel := e.selectFor(t)

	h, err := e.store.Load(ctx, sel)
	require.NoError(t, err)

	// Another session saves in between.
	other, err := e.store.Load(ctx, sel)
	require.NoError(t, err)
	_, err = other.Tree.Graph.InsertChild(other.Tree.Graph.Root(), tree.Last, tree.NodeSpec{Text: "from elsewhere"})
	require.NoError(t, err)
	require.NoError(t, e.store.Save(ctx, other))

	_, err = h.Tree.Graph.InsertChild(h.Tree.Graph.Root(), tree.Last, tree.NodeSpec{Text: "mine"})
	require.NoError(t, err)
	err = e.store.Save(ctx, h)
	assert.ErrorIs(t, err, apperr.ErrStaleRead)

	data, err := os.ReadFile(sel.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "from elsewhere")
	assert.NotContains(t, string(data), "mine")

	// The winner keeps saving without conflicts.
	require.NoError(t, e.store.Save(ctx, other))
}

func TestSaveDetectsRemovedFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h, err := e.store.Load(ctx, e.selectFor(t))
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.Selection.Path))
	assert.ErrorIs(t, e.store.Save(ctx, h), apperr.ErrStaleRead)
}

func TestLoadMigratesLegacyTree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(e.state, 0o755))
	legacy := `{"version":1,"type":0,"icon":"","is_expanded":true,"contents":[{"text":"old"}],"children":[{"contents":[{"text":"child"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(e.state, "tree.json"), []byte(legacy), 0o644))

	sel := e.selectFor(t)
	h, err := e.store.Load(ctx, sel)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Tree.MigratedFrom)
	assert.Equal(t, sel.Path, h.Tree.Location)

	require.NoError(t, e.store.Save(ctx, h))
	data, err := os.ReadFile(sel.Path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "contents"))
	assert.Zero(t, h.Tree.MigratedFrom)
}

func TestLoadCorruptTree(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.state, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.state, "tree.json"), []byte("{nope"), 0o644))
	_, err := e.store.Load(context.Background(), e.selectFor(t))
	assert.ErrorIs(t, err, apperr.ErrParse)
}

func TestInitLocalAndProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	local, err := e.sel.SelectCategory(ctx, e.work, tree.CategoryLocalProject)
	require.NoError(t, err)
	h, err := e.store.Init(ctx, local, "app", "")
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryLocalProject, h.Tree.Category)

	// The marker now routes plain selection to the local tree.
	sel := e.selectFor(t)
	assert.Equal(t, tree.CategoryLocalProject, sel.Category)
	_, err = e.store.Init(ctx, sel, "again", "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	proj, err := e.sel.SelectCategory(ctx, e.work, tree.CategoryGlobalProject)
	require.NoError(t, err)
	require.False(t, proj.Registered)
	h, err = e.store.Init(ctx, proj, "", "")
	require.NoError(t, err)
	assert.True(t, h.Selection.Registered)
	assert.Contains(t, e.reg.projects, e.work)

	root, err := h.Tree.Graph.Node(h.Tree.Graph.Root())
	require.NoError(t, err)
	assert.Equal(t, "Main", root.Text)

	// Loading through a forced selection now works.
	proj, err = e.sel.SelectCategory(ctx, e.work, tree.CategoryGlobalProject)
	require.NoError(t, err)
	_, err = e.store.Load(ctx, proj)
	require.NoError(t, err)
}

func TestInitProjectRegistrationFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.reg.fail = errors.New("db locked")
	proj, err := e.sel.SelectCategory(ctx, e.work, tree.CategoryGlobalProject)
	require.NoError(t, err)
	_, err = e.store.Init(ctx, proj, "", "")
	assert.ErrorContains(t, err, "db locked")
	_, err = os.Stat(proj.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCancelledContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.store.Load(ctx, e.selectFor(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDataFilesLiveUnderStorageRoot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sel := e.selectFor(t)

	var abs string
	_, err := e.store.Update(ctx, sel, func(h *Handle) error {
		g := h.Tree.Graph
		var err error
		_, abs, err = g.InsertData(g.Root(), tree.Last, "journal", tree.ContentMarkdown, h.Files(), nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.state, "data", "2.md"), abs)
	_, err = os.Stat(abs)
	assert.NoError(t, err)
}
