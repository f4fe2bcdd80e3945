// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes tree tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treeservice"
)

const formatURI = "mind://tree-format"

// Server wraps the MCP server with tree tools.
type Server struct {
	mcp *server.MCPServer
	svc *treeservice.Service
	cwd string
}

// New creates a new MCP server with all tree tools registered. cwd selects
// the tree when a call names no category.
func New(svc *treeservice.Service, cwd, version string) *Server {
	s := &Server{svc: svc, cwd: cwd}
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"mind",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	category := mcp.WithString("category", mcp.Description("Tree to use: local, project or global (default: selection order)"))
	nodePath := func(desc string) mcp.ToolOption {
		return mcp.WithString("path", mcp.Required(), mcp.Description(desc))
	}
	placement := mcp.WithString("placement", mcp.Description("before, after, first or last (default last)"))

	s.mcp.AddTool(mcp.NewTool("list_trees",
		mcp.WithDescription("List the trees reachable from the working directory and which one is active."),
	), s.listTrees)

	s.mcp.AddTool(mcp.NewTool("show_tree",
		mcp.WithDescription("Render the tree, or the subtree at path, as indented text with node ids."),
		mcp.WithString("path", mcp.Description("Subtree path (default: root)")),
		mcp.WithNumber("depth", mcp.Description("Levels to show below the node; negative for all (default all)")),
		category,
	), s.showTree)

	s.mcp.AddTool(mcp.NewTool("list_paths",
		mcp.WithDescription("List node paths in pre-order, one per line."),
		mcp.WithString("path", mcp.Description("Start path (default: root)")),
		mcp.WithBoolean("ids", mcp.Description("Prefix each segment with the node id")),
		mcp.WithString("kind", mcp.Description("Keep only nodes of this kind: internal, data or url")),
		category,
	), s.listPaths)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return a node and its direct children as JSON."),
		nodePath("Node path"),
		category,
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("insert_node",
		mcp.WithDescription("Insert a node relative to an anchor. Read "+formatURI+" or call get_tree_format first."),
		mcp.WithString("anchor", mcp.Required(), mcp.Description("Path of the anchor node")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Node text")),
		placement,
		mcp.WithString("icon", mcp.Description("Optional icon")),
		mcp.WithString("kind", mcp.Description("internal (default), data or url")),
		mcp.WithString("link", mcp.Description("Link for url nodes")),
		mcp.WithString("content_type", mcp.Description("Content type for data nodes: md, txt, org or json")),
		category,
	), s.insertNode)

	s.mcp.AddTool(mcp.NewTool("rename_node",
		mcp.WithDescription("Replace the text of a node."),
		nodePath("Node path"),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
		category,
	), s.renameNode)

	s.mcp.AddTool(mcp.NewTool("set_icon",
		mcp.WithDescription("Replace the icon of a node; an empty icon removes it."),
		nodePath("Node path"),
		mcp.WithString("icon", mcp.Description("New icon")),
		category,
	), s.setIcon)

	s.mcp.AddTool(mcp.NewTool("toggle_node",
		mcp.WithDescription("Flip the expanded state of a node."),
		nodePath("Node path"),
		category,
	), s.toggleNode)

	s.mcp.AddTool(mcp.NewTool("move_node",
		mcp.WithDescription("Move a node with its subtree relative to a destination node."),
		nodePath("Path of the node to move"),
		mcp.WithString("dest", mcp.Required(), mcp.Description("Destination path")),
		placement,
		category,
	), s.moveNode)

	s.mcp.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node and its whole subtree. Requires confirm=true."),
		nodePath("Node path"),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
		category,
	), s.removeNode)

	s.mcp.AddTool(mcp.NewTool("set_attachment",
		mcp.WithDescription("Turn a node into a data or url node, or back into a plain node with kind=internal."),
		nodePath("Node path"),
		mcp.WithString("kind", mcp.Required(), mcp.Description("internal, data or url")),
		mcp.WithString("link", mcp.Description("Link for url")),
		mcp.WithString("file", mcp.Description("Relative file path for data (default data/<id>.<ext>)")),
		mcp.WithString("content_type", mcp.Description("Content type for data")),
		category,
	), s.setAttachment)

	s.mcp.AddTool(mcp.NewTool("open_node",
		mcp.WithDescription("Return the absolute file path of a data node (creating the file if missing) or the link of a url node."),
		nodePath("Node path"),
		category,
	), s.openNode)

	s.mcp.AddTool(mcp.NewTool("get_tree_format",
		mcp.WithDescription("Returns how trees are addressed and edited. Call this before changing a tree."),
	), s.getTreeFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Tree Format",
			mcp.WithResourceDescription("Path addressing, node kinds and editing rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTreeFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) scope(req mcp.CallToolRequest) (treeservice.Scope, error) {
	cat, err := treeservice.ParseCategory(req.GetString("category", ""))
	if err != nil {
		return treeservice.Scope{}, err
	}
	return treeservice.Scope{Cwd: s.cwd, Category: cat}, nil
}

// contentType reads the optional content_type argument. Empty leaves the
// configured default in place.
func contentType(req mcp.CallToolRequest) (tree.ContentType, error) {
	s := req.GetString("content_type", "")
	if s == "" {
		return "", nil
	}
	return tree.ParseContentType(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTrees(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trees, err := s.svc.Trees(ctx, s.cwd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(trees)
}

func (s *Server) showTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Tree(ctx, sc, req.GetString("path", ""), req.GetInt("depth", -1))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	if err := treeservice.RenderText(&b, v.Root, treeservice.RenderOptions{WithIDs: true}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listPaths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := tree.PathOptions{WithIDs: req.GetBool("ids", false)}
	if k := req.GetString("kind", ""); k != "" {
		kind, err := tree.ParseKind(k)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Kinds = []tree.Kind{kind}
	}
	paths, err := s.svc.Paths(ctx, sc, req.GetString("path", ""), opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Get(ctx, sc, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v)
}

func (s *Server) insertNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	anchor, err := req.RequireString("anchor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := tree.ParsePlacement(req.GetString("placement", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := tree.KindInternal
	if k := req.GetString("kind", ""); k != "" {
		if kind, err = tree.ParseKind(k); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	ct, err := contentType(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.svc.Insert(ctx, sc, treeservice.InsertRequest{
		Anchor:      anchor,
		Placement:   p,
		Text:        text,
		Icon:        req.GetString("icon", ""),
		Kind:        kind,
		Link:        req.GetString("link", ""),
		ContentType: ct,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) renameNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.nodeResult(req, func(sc treeservice.Scope) (*treeservice.NodeView, error) {
		return s.svc.Rename(ctx, sc, path, text)
	})
}

func (s *Server) setIcon(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.nodeResult(req, func(sc treeservice.Scope) (*treeservice.NodeView, error) {
		return s.svc.SetIcon(ctx, sc, path, req.GetString("icon", ""))
	})
}

func (s *Server) toggleNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.nodeResult(req, func(sc treeservice.Scope) (*treeservice.NodeView, error) {
		return s.svc.Toggle(ctx, sc, path)
	})
}

func (s *Server) moveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dest, err := req.RequireString("dest")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := tree.ParsePlacement(req.GetString("placement", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.nodeResult(req, func(sc treeservice.Scope) (*treeservice.NodeView, error) {
		return s.svc.Move(ctx, sc, path, dest, p)
	})
}

func (s *Server) removeNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !req.GetBool("confirm", false) {
		return mcp.NewToolResultError("removal requires confirm=true"), nil
	}
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Remove(ctx, sc, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %d node(s)", n)), nil
}

func (s *Server) setAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := tree.ParseKind(k)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ct, err := contentType(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ar := treeservice.AttachmentRequest{
		Kind:        kind,
		File:        req.GetString("file", ""),
		ContentType: ct,
		Link:        req.GetString("link", ""),
	}
	return s.nodeResult(req, func(sc treeservice.Scope) (*treeservice.NodeView, error) {
		return s.svc.SetAttachment(ctx, sc, path, ar)
	})
}

func (s *Server) openNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Open(ctx, sc, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if out.Link != "" {
		return mcp.NewToolResultText(out.Link), nil
	}
	return mcp.NewToolResultText(out.Path), nil
}

func (s *Server) nodeResult(req mcp.CallToolRequest, fn func(treeservice.Scope) (*treeservice.NodeView, error)) (*mcp.CallToolResult, error) {
	sc, err := s.scope(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := fn(sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v)
}

func (s *Server) getTreeFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TreeFormatContract), nil
}

func (s *Server) readTreeFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     TreeFormatContract,
		},
	}, nil
}
