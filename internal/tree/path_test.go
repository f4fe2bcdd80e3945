package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mind/internal/apperr"
)

func TestResolve(t *testing.T) {
	g := fixture(t)

	cases := []struct {
		path string
		want NodeID
	}{
		{"/", 1},
		{"", 1},
		{"//", 1},
		{"/Tasks", 2},
		{"/Tasks/On-going/", 3},
		{"Tasks//On-going", 3},
		{"/Tasks/On-going/3345: do this", 3345},
		{"/Tasks/On-going/3345: whatever the text says", 3345},
		{"/Tasks/On-going/3345:", 3345},
		{"/2: Tasks/3: x/do this", 3345},
		{"/Tasks/On-going/do this", 3345},
	}
	for _, tc := range cases {
		got, err := g.Resolve(tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}

func TestResolveFailures(t *testing.T) {
	g := fixture(t)
	_, err := g.Insert(3, Last, NodeSpec{Text: "later"})
	require.NoError(t, err)

	_, err = g.Resolve("/Tasks/Nope")
	assert.ErrorIs(t, err, apperr.ErrPathNotFound)

	_, err = g.Resolve("/Tasks/On-going/9999: do this")
	assert.ErrorIs(t, err, apperr.ErrPathNotFound)

	// 5 exists but is not a child of On-going.
	_, err = g.Resolve("/Tasks/On-going/5: Notes")
	assert.ErrorIs(t, err, apperr.ErrPathNotFound)

	_, err = g.Resolve("/Tasks/On-going/later")
	assert.ErrorIs(t, err, apperr.ErrPathAmbiguous)

	// The id prefix disambiguates duplicates.
	id, err := g.Resolve("/Tasks/On-going/3346: later")
	require.NoError(t, err)
	assert.Equal(t, NodeID(3346), id)
}

func TestResolveInput(t *testing.T) {
	g := fixture(t)

	for _, in := range []string{"", "   ", "\n"} {
		res, err := g.ResolveInput(in)
		require.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.Equal(t, NoNode, res.ID)
		assert.ErrorIs(t, res.Err(), apperr.ErrResolutionCancelled)
	}

	res, err := g.ResolveInput("/Notes\n")
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
	assert.Equal(t, NodeID(5), res.ID)
	assert.NoError(t, res.Err())

	_, err = g.ResolveInput("/missing")
	assert.ErrorIs(t, err, apperr.ErrPathNotFound)
}

func TestPathOfAndPaths(t *testing.T) {
	g := fixture(t)

	p, err := g.PathOf(3345, false)
	require.NoError(t, err)
	assert.Equal(t, "/Tasks/On-going/do this", p)

	p, err = g.PathOf(3345, true)
	require.NoError(t, err)
	assert.Equal(t, "/2: Tasks/3: On-going/3345: do this", p)

	back, err := g.Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, NodeID(3345), back)

	all, err := g.Paths(g.Root(), PathOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/",
		"/Tasks",
		"/Tasks/On-going",
		"/Tasks/On-going/do this",
		"/Tasks/On-going/later",
		"/Tasks/Done",
		"/Notes",
	}, all)

	sub, err := g.Paths(3, PathOptions{WithIDs: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/2: Tasks/3: On-going",
		"/2: Tasks/3: On-going/3345: do this",
		"/2: Tasks/3: On-going/3346: later",
	}, sub)
}

func TestPathsKindFilter(t *testing.T) {
	g := fixture(t)
	require.NoError(t, g.SetURL(4, "https://example.org"))
	require.NoError(t, g.SetData(5, "", ContentText))

	urls, err := g.Paths(g.Root(), PathOptions{Kinds: []Kind{KindURL}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/Tasks/Done"}, urls)

	data, err := g.Paths(g.Root(), PathOptions{Kinds: []Kind{KindData, KindURL}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/Tasks/Done", "/Notes"}, data)
}

// root (expanded, line 0)
//
//	Tasks (expanded, line 1)
//	  On-going (collapsed, line 2)
//	  Done (line 3)
//	Notes (line 4)
func TestNodeAtLine(t *testing.T) {
	g := fixture(t)

	want := []NodeID{1, 2, 3, 4, 5}
	for line, id := range want {
		got, ok := g.NodeAtLine(line)
		require.True(t, ok, "line %d", line)
		assert.Equal(t, id, got, "line %d", line)
	}
	_, ok := g.NodeAtLine(len(want))
	assert.False(t, ok)

	expanded, err := g.ToggleExpanded(3)
	require.NoError(t, err)
	assert.True(t, expanded)
	got, ok := g.NodeAtLine(3)
	require.True(t, ok)
	assert.Equal(t, NodeID(3345), got)
}
