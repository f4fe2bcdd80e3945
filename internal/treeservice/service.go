// Package treeservice exposes tree operations to the CLI, HTTP and MCP
// surfaces. Every mutation is a load, mutate, save cycle through the store.
package treeservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treestore"
)

// Scope picks the tree an operation applies to.
type Scope struct {
	// Cwd is the working directory used for selection.
	Cwd string
	// Category forces a tree category; empty applies the selection order.
	Category tree.Category
	// IfMatch, when set, must equal the checksum of the tree file or the
	// mutation fails with apperr.ErrConflict.
	IfMatch string
}

// ParseCategory maps a user-facing category name onto a tree category.
// Empty input yields an empty category, meaning the usual selection order.
func ParseCategory(s string) (tree.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "local", string(tree.CategoryLocalProject):
		return tree.CategoryLocalProject, nil
	case "project", string(tree.CategoryGlobalProject):
		return tree.CategoryGlobalProject, nil
	case string(tree.CategoryGlobal):
		return tree.CategoryGlobal, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, s)
	}
}

// Service coordinates selection, storage and the tree engine.
type Service struct {
	sel         *selector.Selector
	store       *treestore.Store
	templates   tree.Templates
	contentType tree.ContentType
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithContentType sets the content type of data nodes created without one.
func WithContentType(ct tree.ContentType) ServiceOption {
	return func(s *Service) { s.contentType = ct }
}

// NewService creates a new tree service.
func NewService(sel *selector.Selector, store *treestore.Store, templates tree.Templates, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{sel: sel, store: store, templates: templates, contentType: tree.ContentMarkdown, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the tree selection for scope.
func (s *Service) Select(ctx context.Context, sc Scope) (selector.Selection, error) {
	if sc.Category != "" {
		return s.sel.SelectCategory(ctx, sc.Cwd, sc.Category)
	}
	return s.sel.Select(ctx, sc.Cwd)
}

// Trees lists every tree reachable from cwd.
func (s *Service) Trees(ctx context.Context, cwd string) ([]TreeInfo, error) {
	infos, err := s.sel.ListTrees(ctx, cwd)
	if err != nil {
		return nil, err
	}
	out := make([]TreeInfo, len(infos))
	for i, in := range infos {
		out[i] = treeInfo(in)
	}
	return out, nil
}

// Init creates the tree selected by scope. Without a forced category a local
// tree is created.
func (s *Service) Init(ctx context.Context, sc Scope, name, icon string) (*TreeView, error) {
	if sc.Category == "" {
		sc.Category = tree.CategoryLocalProject
	}
	sel, err := s.Select(ctx, sc)
	if err != nil {
		return nil, err
	}
	h, err := s.store.Init(ctx, sel, name, icon)
	if err != nil {
		return nil, err
	}
	return view(h, h.Tree.Graph.Root(), -1)
}

// Tree returns the whole tree, or the subtree at path when path is not empty.
// depth limits the levels below the returned node; negative means unlimited.
func (s *Service) Tree(ctx context.Context, sc Scope, path string, depth int) (*TreeView, error) {
	h, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	id, err := h.Tree.Graph.Resolve(path)
	if err != nil {
		return nil, err
	}
	return view(h, id, depth)
}

// Get returns the node at path with its direct children.
func (s *Service) Get(ctx context.Context, sc Scope, path string) (*NodeView, error) {
	v, err := s.Tree(ctx, sc, path, 1)
	if err != nil {
		return nil, err
	}
	return &v.Root, nil
}

// Paths lists the paths below path in pre-order.
func (s *Service) Paths(ctx context.Context, sc Scope, path string, opts tree.PathOptions) ([]string, error) {
	h, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	id, err := h.Tree.Graph.Resolve(path)
	if err != nil {
		return nil, err
	}
	return h.Tree.Graph.Paths(id, opts)
}

// Prompt resolves interactive input. Blank input yields a cancelled
// resolution; otherwise the id-qualified path of the node is returned so that
// follow-up operations address it unambiguously.
func (s *Service) Prompt(ctx context.Context, sc Scope, input string) (tree.Resolution, string, error) {
	h, err := s.load(ctx, sc)
	if err != nil {
		return tree.Resolution{}, "", err
	}
	res, err := h.Tree.Graph.ResolveInput(input)
	if err != nil || res.Cancelled {
		return res, "", err
	}
	p, err := h.Tree.Graph.PathOf(res.ID, true)
	if err != nil {
		return tree.Resolution{}, "", err
	}
	return res, p, nil
}

// InsertRequest describes a node to create relative to an anchor path.
type InsertRequest struct {
	Anchor    string
	Placement tree.Placement
	Text      string
	Icon      string
	Kind      tree.Kind
	// Link is required for url nodes.
	Link string
	// File is the relative path of an existing data file. When empty for a
	// data node, data/<id><ext> is created from the configured template.
	File        string
	ContentType tree.ContentType
}

// Insert creates a node. A data file created for the node is removed again
// when the tree cannot be saved.
func (s *Service) Insert(ctx context.Context, sc Scope, req InsertRequest) (*Inserted, error) {
	if req.ContentType == "" {
		req.ContentType = s.contentType
	}
	var out Inserted
	var cleanup func()
	_, err := s.update(ctx, sc, func(h *treestore.Handle) error {
		g := h.Tree.Graph
		anchor, err := g.Resolve(req.Anchor)
		if err != nil {
			return err
		}

		var id tree.NodeID
		if req.Kind == tree.KindData && req.File == "" {
			id, out.File, err = g.InsertData(anchor, req.Placement, req.Text, req.ContentType, h.Files(), s.templates)
			if err != nil {
				return err
			}
			n, _ := g.Node(id)
			cleanup = func() { _ = h.Files().Delete(n.Attachment.Path) }
			if err := g.SetIcon(id, req.Icon); err != nil {
				return err
			}
		} else {
			ns := tree.NodeSpec{Text: req.Text, Icon: req.Icon, Kind: req.Kind}
			switch req.Kind {
			case tree.KindData:
				ns.Attachment = &tree.Attachment{Path: req.File, ContentType: req.ContentType}
			case tree.KindURL:
				ns.Attachment = &tree.Attachment{Link: req.Link}
			}
			if id, err = g.Insert(anchor, req.Placement, ns); err != nil {
				return err
			}
		}
		out.Node, err = nodeView(g, id, 0)
		return err
	})
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}
	s.logger.Debug("node inserted", slog.Uint64("id", out.Node.ID), slog.String("path", out.Node.Path))
	return &out, nil
}

// Remove deletes the node at path with its subtree and returns the number of
// removed nodes. Confirmation is the caller's job.
func (s *Service) Remove(ctx context.Context, sc Scope, path string) (int, error) {
	var n int
	_, err := s.update(ctx, sc, func(h *treestore.Handle) error {
		id, err := h.Tree.Graph.Resolve(path)
		if err != nil {
			return err
		}
		n, err = h.Tree.Graph.Delete(id)
		return err
	})
	return n, err
}

// Rename replaces the text of the node at path.
func (s *Service) Rename(ctx context.Context, sc Scope, path, text string) (*NodeView, error) {
	return s.mutateNode(ctx, sc, path, func(g *tree.Graph, id tree.NodeID) error {
		return g.Rename(id, text)
	})
}

// SetIcon replaces the icon of the node at path.
func (s *Service) SetIcon(ctx context.Context, sc Scope, path, icon string) (*NodeView, error) {
	return s.mutateNode(ctx, sc, path, func(g *tree.Graph, id tree.NodeID) error {
		return g.SetIcon(id, icon)
	})
}

// Toggle flips the fold state of the node at path.
func (s *Service) Toggle(ctx context.Context, sc Scope, path string) (*NodeView, error) {
	return s.mutateNode(ctx, sc, path, func(g *tree.Graph, id tree.NodeID) error {
		_, err := g.ToggleExpanded(id)
		return err
	})
}

// Move re-parents the node at src relative to the node at dest.
func (s *Service) Move(ctx context.Context, sc Scope, src, dest string, p tree.Placement) (*NodeView, error) {
	return s.mutateNode(ctx, sc, src, func(g *tree.Graph, id tree.NodeID) error {
		to, err := g.Resolve(dest)
		if err != nil {
			return err
		}
		return g.Move(id, to, p)
	})
}

// AttachmentRequest sets, converts or clears a node's payload.
type AttachmentRequest struct {
	Kind        tree.Kind
	File        string
	ContentType tree.ContentType
	Link        string
}

// SetAttachment applies req to the node at path. Kind internal clears the
// payload.
func (s *Service) SetAttachment(ctx context.Context, sc Scope, path string, req AttachmentRequest) (*NodeView, error) {
	if req.ContentType == "" {
		req.ContentType = s.contentType
	}
	return s.mutateNode(ctx, sc, path, func(g *tree.Graph, id tree.NodeID) error {
		return applyAttachment(g, id, req)
	})
}

func applyAttachment(g *tree.Graph, id tree.NodeID, req AttachmentRequest) error {
	switch req.Kind {
	case tree.KindData:
		return g.SetData(id, req.File, req.ContentType)
	case tree.KindURL:
		return g.SetURL(id, req.Link)
	case tree.KindInternal, "":
		return g.ClearAttachment(id)
	default:
		return fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidAttachment, req.Kind)
	}
}

// NodePatch lists node edits applied together in one save. Nil fields are
// left alone.
type NodePatch struct {
	Text       *string
	Icon       *string
	Expanded   *bool
	Attachment *AttachmentRequest
}

// Patch applies every set field of p to the node at path. Either all edits
// are saved or none.
func (s *Service) Patch(ctx context.Context, sc Scope, path string, p NodePatch) (*NodeView, error) {
	return s.mutateNode(ctx, sc, path, func(g *tree.Graph, id tree.NodeID) error {
		if p.Text != nil {
			if err := g.Rename(id, *p.Text); err != nil {
				return err
			}
		}
		if p.Icon != nil {
			if err := g.SetIcon(id, *p.Icon); err != nil {
				return err
			}
		}
		if p.Expanded != nil {
			n, err := g.Node(id)
			if err != nil {
				return err
			}
			if n.Expanded != *p.Expanded {
				if _, err := g.ToggleExpanded(id); err != nil {
					return err
				}
			}
		}
		if a := p.Attachment; a != nil {
			req := *a
			if req.ContentType == "" {
				req.ContentType = s.contentType
			}
			return applyAttachment(g, id, req)
		}
		return nil
	})
}

// Open returns the external target of the node at path, creating a missing
// data file first.
func (s *Service) Open(ctx context.Context, sc Scope, path string) (*Opened, error) {
	h, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	id, err := h.Tree.Graph.Resolve(path)
	if err != nil {
		return nil, err
	}
	t, err := h.Tree.Graph.OpenTarget(id, h.Files(), s.templates)
	if err != nil {
		return nil, err
	}
	if t.Created {
		s.logger.Info("data file created", slog.String("path", t.Path))
	}
	return &Opened{Kind: string(t.Kind), Path: t.Path, Link: t.Link, Created: t.Created}, nil
}

func (s *Service) mutateNode(ctx context.Context, sc Scope, path string, fn func(*tree.Graph, tree.NodeID) error) (*NodeView, error) {
	var v NodeView
	_, err := s.update(ctx, sc, func(h *treestore.Handle) error {
		g := h.Tree.Graph
		id, err := g.Resolve(path)
		if err != nil {
			return err
		}
		if err := fn(g, id); err != nil {
			return err
		}
		v, err = nodeView(g, id, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) load(ctx context.Context, sc Scope) (*treestore.Handle, error) {
	sel, err := s.Select(ctx, sc)
	if err != nil {
		return nil, err
	}
	return s.store.Load(ctx, sel)
}

func (s *Service) update(ctx context.Context, sc Scope, fn func(*treestore.Handle) error) (*treestore.Handle, error) {
	sel, err := s.Select(ctx, sc)
	if err != nil {
		return nil, err
	}
	ifMatch := strings.Trim(sc.IfMatch, `"`)
	return s.store.Update(ctx, sel, func(h *treestore.Handle) error {
		if ifMatch != "" && ifMatch != h.Checksum() {
			return apperr.ErrConflict
		}
		return fn(h)
	})
}

func view(h *treestore.Handle, id tree.NodeID, depth int) (*TreeView, error) {
	root, err := nodeView(h.Tree.Graph, id, depth)
	if err != nil {
		return nil, err
	}
	return &TreeView{
		Category: string(h.Tree.Category),
		Location: h.Tree.Location,
		Checksum: h.Checksum(),
		Root:     root,
	}, nil
}
