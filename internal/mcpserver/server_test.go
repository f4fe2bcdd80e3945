package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mind/internal/testutil"
	"github.com/starford/mind/internal/treeservice"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	env := testutil.NewEnv(t)
	return New(env.Service, env.Work, "test"), env.State
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are called directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_trees":      srv.listTrees,
		"show_tree":       srv.showTree,
		"list_paths":      srv.listPaths,
		"get_node":        srv.getNode,
		"insert_node":     srv.insertNode,
		"rename_node":     srv.renameNode,
		"set_icon":        srv.setIcon,
		"toggle_node":     srv.toggleNode,
		"move_node":       srv.moveNode,
		"remove_node":     srv.removeNode,
		"set_attachment":  srv.setAttachment,
		"open_node":       srv.openNode,
		"get_tree_format": srv.getTreeFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustOK(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	return resultText(r)
}

func seed(t *testing.T, srv *Server) {
	t.Helper()
	for _, a := range [][2]string{{"/", "Tasks"}, {"/Tasks", "On-going"}, {"/Tasks/On-going", "do this"}, {"/Tasks", "Done"}} {
		mustOK(t, callTool(t, srv, "insert_node", map[string]any{"anchor": a[0], "text": a[1]}))
	}
}

func TestInsertAndShowTree(t *testing.T) {
	srv, _ := testServer(t)
	seed(t, srv)

	text := mustOK(t, callTool(t, srv, "show_tree", map[string]any{}))
	want := "1: mind\n└── 2: Tasks\n    ├── 3: On-going\n    │   └── 4: do this\n    └── 5: Done\n"
	if text != want {
		t.Errorf("show_tree =\n%s\nwant\n%s", text, want)
	}

	text = mustOK(t, callTool(t, srv, "show_tree", map[string]any{"path": "/Tasks", "depth": 1}))
	if strings.Contains(text, "do this") {
		t.Errorf("depth 1 rendered grandchildren:\n%s", text)
	}
}

func TestGetNodeAndPaths(t *testing.T) {
	srv, _ := testServer(t)
	seed(t, srv)

	var n treeservice.NodeView
	if err := json.Unmarshal([]byte(mustOK(t, callTool(t, srv, "get_node", map[string]any{"path": "/Tasks"}))), &n); err != nil {
		t.Fatal(err)
	}
	if n.ID != 2 || len(n.Children) != 2 {
		t.Errorf("node = %+v", n)
	}

	text := mustOK(t, callTool(t, srv, "list_paths", map[string]any{"path": "/Tasks/On-going", "ids": true}))
	if text != "/2: Tasks/3: On-going\n/2: Tasks/3: On-going/4: do this" {
		t.Errorf("paths = %q", text)
	}

	r := callTool(t, srv, "get_node", map[string]any{"path": "/Nope"})
	if !r.IsError {
		t.Error("expected error for missing node")
	}
	r = callTool(t, srv, "get_node", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing path argument")
	}
}

func TestMutations(t *testing.T) {
	srv, _ := testServer(t)
	seed(t, srv)

	mustOK(t, callTool(t, srv, "rename_node", map[string]any{"path": "/Tasks/Done", "text": "Finished"}))
	mustOK(t, callTool(t, srv, "set_icon", map[string]any{"path": "/Tasks/Finished", "icon": "✓"}))
	mustOK(t, callTool(t, srv, "toggle_node", map[string]any{"path": "/Tasks"}))
	mustOK(t, callTool(t, srv, "move_node", map[string]any{
		"path": "/Tasks/On-going/do this", "dest": "/Tasks/Finished", "placement": "first",
	}))

	text := mustOK(t, callTool(t, srv, "list_paths", map[string]any{}))
	want := "/\n/Tasks\n/Tasks/On-going\n/Tasks/Finished\n/Tasks/Finished/do this"
	if text != want {
		t.Errorf("paths =\n%s\nwant\n%s", text, want)
	}

	r := callTool(t, srv, "move_node", map[string]any{"path": "/Tasks", "dest": "/Tasks/Finished"})
	if !r.IsError || !strings.Contains(resultText(r), "cycle") {
		t.Errorf("cycle move = %q", resultText(r))
	}
	r = callTool(t, srv, "rename_node", map[string]any{"path": "/Tasks", "text": "  "})
	if !r.IsError {
		t.Error("expected error for blank text")
	}
}

func TestRemoveRequiresConfirm(t *testing.T) {
	srv, _ := testServer(t)
	seed(t, srv)

	r := callTool(t, srv, "remove_node", map[string]any{"path": "/Tasks/On-going"})
	if !r.IsError {
		t.Error("expected removal without confirm to fail")
	}
	text := mustOK(t, callTool(t, srv, "remove_node", map[string]any{"path": "/Tasks/On-going", "confirm": true}))
	if text != "removed 2 node(s)" {
		t.Errorf("remove = %q", text)
	}
	r = callTool(t, srv, "remove_node", map[string]any{"path": "/", "confirm": true})
	if !r.IsError {
		t.Error("expected error removing root")
	}
}

func TestAttachmentsAndOpen(t *testing.T) {
	srv, state := testServer(t)
	seed(t, srv)

	mustOK(t, callTool(t, srv, "set_attachment", map[string]any{"path": "/Tasks/Done", "kind": "url", "link": "https://example.org"}))
	if got := mustOK(t, callTool(t, srv, "open_node", map[string]any{"path": "/Tasks/Done"})); got != "https://example.org" {
		t.Errorf("open url = %q", got)
	}

	mustOK(t, callTool(t, srv, "insert_node", map[string]any{"anchor": "/", "text": "journal", "kind": "data", "content_type": "org"}))
	got := mustOK(t, callTool(t, srv, "open_node", map[string]any{"path": "/journal"}))
	if got != filepath.Join(state, "data", "6.org") {
		t.Errorf("open data = %q", got)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("data file missing: %v", err)
	}

	r := callTool(t, srv, "open_node", map[string]any{"path": "/Tasks"})
	if !r.IsError {
		t.Error("expected error opening a plain node")
	}
	r = callTool(t, srv, "set_attachment", map[string]any{"path": "/Tasks", "kind": "url"})
	if !r.IsError {
		t.Error("expected error for url without link")
	}
}

func TestListTreesAndCategory(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "show_tree", map[string]any{"category": "local"})
	if !r.IsError {
		t.Error("expected missing local tree to fail")
	}
	r = callTool(t, srv, "show_tree", map[string]any{"category": "elsewhere"})
	if !r.IsError {
		t.Error("expected unknown category to fail")
	}

	var trees []treeservice.TreeInfo
	if err := json.Unmarshal([]byte(mustOK(t, callTool(t, srv, "list_trees", map[string]any{}))), &trees); err != nil {
		t.Fatal(err)
	}
	if len(trees) == 0 || !trees[0].Active {
		t.Errorf("trees = %+v", trees)
	}
}

func TestTreeFormatContract(t *testing.T) {
	srv, _ := testServer(t)
	text := mustOK(t, callTool(t, srv, "get_tree_format", map[string]any{}))
	if text != TreeFormatContract {
		t.Error("contract mismatch")
	}
	contents, err := srv.readTreeFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if srv.MCPServer() == nil {
		t.Error("nil MCP server")
	}
}
