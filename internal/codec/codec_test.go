package codec

import (
	"encoding/json"
	"path"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/tree"
)

const currentDoc = `{
  "version": 2,
  "category": "global-project",
  "next_id": 3346,
  "root": {
    "id": 1,
    "text": "mind",
    "icon": "*",
    "kind": "internal",
    "expanded": true,
    "children": [
      {
        "id": 2,
        "text": "Tasks",
        "kind": "internal",
        "children": [
          {"id": 3345, "text": "do this", "kind": "internal"},
          {"id": 7, "text": "notes", "kind": "data", "attachment": {"path": "data/7.org", "content_type": "org"}},
          {"id": 3, "text": "site", "kind": "url", "attachment": {"link": "https://example.org/?a=1&b=<2>"}}
        ]
      },
      {"id": 9, "text": "Tasks", "kind": "internal"}
    ]
  }
}`

func jsonValue(t *testing.T, data []byte) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestRoundTripCurrentVersion(t *testing.T) {
	tr, err := Decode([]byte(currentDoc))
	require.NoError(t, err)
	assert.Equal(t, tree.CurrentVersion, tr.Version)
	assert.Equal(t, tree.CategoryGlobalProject, tr.Category)
	assert.Zero(t, tr.MigratedFrom)

	out, err := Encode(tr)
	require.NoError(t, err)
	if diff := cmp.Diff(jsonValue(t, []byte(currentDoc)), jsonValue(t, out)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Re-encoding is stable byte for byte.
	again, err := Decode(out)
	require.NoError(t, err)
	out2, err := Encode(again)
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))
}

func TestEncodeFormatting(t *testing.T) {
	tr, err := tree.New("root", "", tree.CategoryGlobal, "")
	require.NoError(t, err)
	_, err = tr.Graph.InsertChild(tr.Graph.Root(), tree.Last, tree.NodeSpec{
		Text:       "link",
		Kind:       tree.KindURL,
		Attachment: &tree.Attachment{Link: "a&b"},
	})
	require.NoError(t, err)

	out, err := Encode(tr)
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, "{\n  \"version\": 2,\n  \"category\": \"global\",\n"), s)
	assert.Contains(t, s, `"link": "a&b"`)
	assert.True(t, strings.HasSuffix(s, "}\n"))
}

const legacyDoc = `{
  "version": 1,
  "type": 1,
  "icon": "*",
  "is_expanded": true,
  "contents": [{"text": "mind"}],
  "children": [
    {
      "icon": "",
      "is_expanded": false,
      "contents": [{"text": "  Tasks  "}],
      "children": [
        {"contents": [{"text": "do this"}]},
        {"contents": [{"text": "notes"}], "type": "file", "data": "data/7.org"},
        {"contents": [{"text": "site"}], "type": "URI", "data": "https://example.org"}
      ]
    },
    {"contents": [{"text": "old"}, {"text": "Notes"}], "type": "node"}
  ]
}`

const upgradedDoc = `{
  "version": 2,
  "category": "local-project",
  "next_id": 7,
  "root": {
    "id": 1, "text": "mind", "icon": "*", "kind": "internal", "expanded": true,
    "children": [
      {"id": 2, "text": "Tasks", "kind": "internal", "children": [
        {"id": 3, "text": "do this", "kind": "internal"},
        {"id": 4, "text": "notes", "kind": "data", "attachment": {"path": "data/7.org", "content_type": "org"}},
        {"id": 5, "text": "site", "kind": "url", "attachment": {"link": "https://example.org"}}
      ]},
      {"id": 6, "text": "Notes", "kind": "internal"}
    ]
  }
}`

func TestLegacyUpgradeMatchesHandUpgraded(t *testing.T) {
	legacy, err := Decode([]byte(legacyDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, legacy.MigratedFrom)
	assert.Equal(t, tree.CurrentVersion, legacy.Version)

	current, err := Decode([]byte(upgradedDoc))
	require.NoError(t, err)

	assert.Equal(t, current.Category, legacy.Category)
	want, err := current.Graph.Record(current.Graph.Root())
	require.NoError(t, err)
	got, err := legacy.Graph.Record(legacy.Graph.Root())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("upgraded graph mismatch (-want +got):\n%s", diff)
	}

	// Saving an upgraded tree writes the current shape only.
	out, err := Encode(legacy)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "contents")
	if diff := cmp.Diff(jsonValue(t, []byte(upgradedDoc)), jsonValue(t, out)); diff != "" {
		t.Errorf("encoded upgrade mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingVersionIsLegacy(t *testing.T) {
	tr, err := Decode([]byte(`{"type": 0, "contents": [{"text": "root"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.MigratedFrom)
	assert.Equal(t, tree.CategoryGlobal, tr.Category)
	root, err := tr.Graph.Node(tr.Graph.Root())
	require.NoError(t, err)
	assert.Equal(t, "root", root.Text)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{"version": 2,`, apperr.ErrParse},
		{"array", `[]`, apperr.ErrParse},
		{"version string", `{"version": "2"}`, apperr.ErrParse},
		{"future version", `{"version": 3, "root": {"id": 1, "text": "r"}}`, apperr.ErrParse},
		{"version zero", `{"version": 0}`, apperr.ErrParse},
		{"missing root", `{"version": 2}`, apperr.ErrParse},
		{"unknown kind", `{"version": 2, "root": {"id": 1, "text": "r", "kind": "folder"}}`, apperr.ErrParse},
		{"unknown category", `{"version": 2, "category": "x", "root": {"id": 1, "text": "r"}}`, apperr.ErrParse},
		{"legacy unknown type", `{"contents": [{"text": "r"}], "children": [{"contents": [{"text": "a"}], "type": "folder"}]}`, apperr.ErrParse},
		{"legacy numeric node type", `{"contents": [{"text": "r"}], "children": [{"contents": [{"text": "a"}], "type": 3}]}`, apperr.ErrParse},
		{"legacy tree type", `{"type": 7, "contents": [{"text": "r"}]}`, apperr.ErrParse},
		{"legacy missing contents", `{"type": 0}`, apperr.ErrParse},
		{"duplicate ids", `{"version": 2, "root": {"id": 1, "text": "r", "children": [{"id": 1, "text": "a"}]}}`, apperr.ErrValidation},
		{"blank text", `{"version": 2, "root": {"id": 1, "text": "  "}}`, apperr.ErrValidation},
		{"zero id", `{"version": 2, "root": {"id": 0, "text": "r"}}`, apperr.ErrValidation},
		{"url without link", `{"version": 2, "root": {"id": 1, "text": "r", "children": [{"id": 2, "text": "a", "kind": "url"}]}}`, apperr.ErrValidation},
		{"legacy empty text", `{"contents": [{"text": "r"}], "children": [{"contents": []}]}`, apperr.ErrValidation},
		{"legacy internal node with data", `{"contents": [{"text": "r"}], "children": [{"contents": [{"text": "a"}], "data": "x.md"}]}`, apperr.ErrParse},
		{"next id not above ids", `{"version": 2, "next_id": 2, "root": {"id": 1, "text": "r", "children": [{"id": 2, "text": "a"}]}}`, apperr.ErrValidation},
		{"legacy data without path", `{"contents": [{"text": "r"}], "children": [{"contents": [{"text": "a"}], "type": "file"}]}`, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.doc))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

// memFiles is an in-memory tree.FileStore.
type memFiles map[string][]byte

func (m memFiles) Exists(rel string) (bool, error) {
	_, ok := m[rel]
	return ok, nil
}

func (m memFiles) Write(rel string, content []byte) error {
	m[rel] = content
	return nil
}

func (m memFiles) Delete(rel string) error {
	delete(m, rel)
	return nil
}

func (m memFiles) Abs(rel string) (string, error) { return path.Join("/store", rel), nil }

func TestDeletedIDsStayRetiredAcrossSaves(t *testing.T) {
	tr, err := tree.New("mind", "", tree.CategoryGlobal, "")
	require.NoError(t, err)
	files := memFiles{}

	id, _, err := tr.Graph.InsertData(tr.Graph.Root(), tree.Last, "notes", "", files, nil)
	require.NoError(t, err)
	_, err = tr.Graph.Delete(id)
	require.NoError(t, err)
	// The data file stays behind on purpose.
	assert.Contains(t, files, "data/2.md")

	out, err := Encode(tr)
	require.NoError(t, err)
	reloaded, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, tree.NodeID(3), reloaded.Graph.NextID())

	for _, want := range []tree.NodeID{3, 4} {
		got, abs, err := reloaded.Graph.InsertData(reloaded.Graph.Root(), tree.Last, "more", "", files, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, path.Join("/store", tree.DefaultDataPath(want, tree.ContentMarkdown)), abs)
	}
}

func TestMissingNextIDFallsBackToLargestID(t *testing.T) {
	tr, err := Decode([]byte(`{"version": 2, "root": {"id": 1, "text": "r", "children": [{"id": 40, "text": "a"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, tree.NodeID(41), tr.Graph.NextID())
}

func TestEncodeCanonicalizesExplicitDefaults(t *testing.T) {
	const explicit = `{
  "version": 2,
  "category": "global",
  "next_id": 4,
  "root": {
    "id": 1, "text": "mind", "icon": "", "kind": "internal", "expanded": false, "children": [
      {"id": 2, "text": "leaf", "kind": "internal", "expanded": false, "children": []},
      {"id": 3, "text": "file", "kind": "data", "attachment": {"path": "data/3.md"}}
    ]
  }
}`
	const canonical = `{
  "version": 2,
  "category": "global",
  "next_id": 4,
  "root": {
    "id": 1, "text": "mind", "kind": "internal", "children": [
      {"id": 2, "text": "leaf", "kind": "internal"},
      {"id": 3, "text": "file", "kind": "data", "attachment": {"path": "data/3.md", "content_type": "markdown"}}
    ]
  }
}`
	tr, err := Decode([]byte(explicit))
	require.NoError(t, err)
	out, err := Encode(tr)
	require.NoError(t, err)
	if diff := cmp.Diff(jsonValue(t, []byte(canonical)), jsonValue(t, out)); diff != "" {
		t.Errorf("canonical form mismatch (-want +got):\n%s", diff)
	}

	// Both spellings decode to the same tree.
	again, err := Decode([]byte(canonical))
	require.NoError(t, err)
	want, err := tr.Graph.Record(tr.Graph.Root())
	require.NoError(t, err)
	got, err := again.Graph.Record(again.Graph.Root())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded trees differ (-want +got):\n%s", diff)
	}
}
