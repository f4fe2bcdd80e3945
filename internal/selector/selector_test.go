package selector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/tree"
)

type fakeProjects map[string]string

func (f fakeProjects) Lookup(_ context.Context, cwd string) (registry.Project, bool, error) {
	key, ok := f[cwd]
	if !ok {
		return registry.Project{}, false, nil
	}
	return registry.Project{Cwd: cwd, Key: key}, true, nil
}

func (f fakeProjects) List(context.Context) ([]registry.Project, error) {
	var out []registry.Project
	for cwd, key := range f {
		out = append(out, registry.Project{Cwd: cwd, Key: key})
	}
	return out, nil
}

func setup(t *testing.T) (state, work string) {
	t.Helper()
	base := t.TempDir()
	state = filepath.Join(base, "state")
	work = filepath.Join(base, "work")
	require.NoError(t, os.MkdirAll(state, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(work, "app", "sub"), 0o755))
	return state, work
}

func TestSelectFallsBackToGlobal(t *testing.T) {
	state, work := setup(t)
	s := New(state, fakeProjects{})

	sel, err := s.Select(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryGlobal, sel.Category)
	assert.Equal(t, filepath.Join(state, "tree.json"), sel.Path)
	assert.Equal(t, state, sel.Root())
}

func TestSelectLocalMarker(t *testing.T) {
	state, work := setup(t)
	app := filepath.Join(work, "app")
	require.NoError(t, os.Mkdir(filepath.Join(app, MarkerDir), 0o755))
	s := New(state, fakeProjects{app: "k1"})

	// The local marker wins over a registry entry for the same directory.
	sel, err := s.Select(context.Background(), app+"/")
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryLocalProject, sel.Category)
	assert.Equal(t, filepath.Join(app, ".mind", "tree.json"), sel.Path)

	// A marker in an ancestor is not picked up.
	sel, err = s.Select(context.Background(), filepath.Join(app, "sub"))
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryGlobal, sel.Category)
}

func TestMarkerMustBeDirectory(t *testing.T) {
	state, work := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(work, MarkerDir), []byte("x"), 0o644))
	sel, err := New(state, nil).Select(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryGlobal, sel.Category)
}

func TestExactProjectMatchWinsOverAncestorMarker(t *testing.T) {
	state, work := setup(t)
	app := filepath.Join(work, "app")
	sub := filepath.Join(app, "sub")
	require.NoError(t, os.Mkdir(filepath.Join(app, MarkerDir), 0o755))
	s := New(state, fakeProjects{sub: "k2"})

	sel, err := s.Select(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryGlobalProject, sel.Category)
	assert.Equal(t, filepath.Join(state, "projects", "k2", "tree.json"), sel.Path)
	assert.Equal(t, "k2", sel.Key)
	assert.True(t, sel.Registered)

	// The mapping is not inherited by descendants.
	deeper := filepath.Join(sub, "deeper")
	sel, err = s.Select(context.Background(), deeper)
	require.NoError(t, err)
	assert.Equal(t, tree.CategoryGlobal, sel.Category)
}

func TestSelectCategory(t *testing.T) {
	state, work := setup(t)
	s := New(state, fakeProjects{})
	ctx := context.Background()

	sel, err := s.SelectCategory(ctx, work, tree.CategoryLocalProject)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, ".mind", "tree.json"), sel.Path)

	sel, err = s.SelectCategory(ctx, work, tree.CategoryGlobalProject)
	require.NoError(t, err)
	assert.False(t, sel.Registered)
	assert.Equal(t, registry.KeyFor(work), sel.Key)

	sel, err = s.SelectCategory(ctx, work, tree.CategoryGlobal)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(state, "tree.json"), sel.Path)

	_, err = s.SelectCategory(ctx, work, tree.Category("nope"))
	assert.Error(t, err)
}

func TestListTrees(t *testing.T) {
	state, work := setup(t)
	app := filepath.Join(work, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(app, MarkerDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(app, MarkerDir, TreeFile), []byte("{}"), 0o644))
	s := New(state, fakeProjects{"/elsewhere": "k3"})

	infos, err := s.ListTrees(context.Background(), app)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, tree.CategoryGlobal, infos[0].Category)
	assert.False(t, infos[0].Exists)
	assert.False(t, infos[0].Active)

	assert.Equal(t, tree.CategoryLocalProject, infos[1].Category)
	assert.True(t, infos[1].Exists)
	assert.True(t, infos[1].Active)

	assert.Equal(t, tree.CategoryGlobalProject, infos[2].Category)
	assert.Equal(t, "/elsewhere", infos[2].Cwd)
	assert.False(t, infos[2].Exists)
}
