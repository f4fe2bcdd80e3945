package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mind/internal/sse"
	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treeservice"
)

const maxBody = 1 << 20

// Publisher receives node change events. *sse.Broker implements it.
type Publisher interface {
	Publish(sse.Event)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *treeservice.Service
	cwd    string
	events Publisher
}

// NewHandler creates a new Handler. cwd is the working directory used for
// tree selection when a request names none; events may be nil.
func NewHandler(svc *treeservice.Service, cwd string, events Publisher) *Handler {
	return &Handler{svc: svc, cwd: cwd, events: events}
}

// nodePath extracts the tree path from the URL (everything after the route
// prefix). Supports encoded slashes from generated clients.
func nodePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return "/" + decoded
}

// scope reads the tree selection from the query and the If-Match header.
func (h *Handler) scope(r *http.Request) (treeservice.Scope, error) {
	q := r.URL.Query()
	cat, err := treeservice.ParseCategory(q.Get("category"))
	if err != nil {
		return treeservice.Scope{}, err
	}
	cwd := q.Get("cwd")
	if cwd == "" {
		cwd = h.cwd
	}
	return treeservice.Scope{Cwd: cwd, Category: cat, IfMatch: r.Header.Get("If-Match")}, nil
}

func (h *Handler) publish(typ string, v *treeservice.NodeView) {
	if h.events == nil || v == nil {
		return
	}
	h.events.Publish(sse.Event{Type: typ, Data: map[string]any{"id": v.ID, "path": v.Path}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListTrees handles GET /api/trees.
//
//	@Summary	List the trees reachable from a directory
//	@Tags		trees
//	@Produce	json
//	@Param		cwd	query		string	false	"Working directory"
//	@Success	200	{object}	TreeListResponse
//	@Security	BearerAuth
//	@Router		/trees [get]
func (h *Handler) ListTrees(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "list trees", err)
		return
	}
	trees, err := h.svc.Trees(r.Context(), sc.Cwd)
	if err != nil {
		writeError(w, "list trees", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeListResponse{Trees: trees})
}

// InitTree handles POST /api/trees.
//
//	@Summary	Create a local or project tree
//	@Tags		trees
//	@Accept		json
//	@Produce	json
//	@Param		body	body		InitTreeRequest	true	"Tree to create"
//	@Success	201		{object}	treeservice.TreeView
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/trees [post]
func (h *Handler) InitTree(w http.ResponseWriter, r *http.Request) {
	var req InitTreeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "init tree", err)
		return
	}
	if req.Category != "" {
		if sc.Category, err = treeservice.ParseCategory(req.Category); err != nil {
			writeError(w, "init tree", err)
			return
		}
	}
	v, err := h.svc.Init(r.Context(), sc, req.Name, req.Icon)
	if err != nil {
		writeError(w, "init tree", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(v.Checksum))
	writeJSON(w, http.StatusCreated, v)
}

// GetTree handles GET /api/tree.
//
//	@Summary	Get the selected tree or a subtree
//	@Tags		trees
//	@Produce	json
//	@Param		path	query		string	false	"Subtree path"
//	@Param		depth	query		int		false	"Levels below the node; negative for all"
//	@Success	200		{object}	treeservice.TreeView
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/tree [get]
func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "get tree", err)
		return
	}
	depth := -1
	if s := r.URL.Query().Get("depth"); s != "" {
		if depth, err = strconv.Atoi(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
	}
	v, err := h.svc.Tree(r.Context(), sc, r.URL.Query().Get("path"), depth)
	if err != nil {
		writeError(w, "get tree", err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(v.Checksum))
	writeJSON(w, http.StatusOK, v)
}

// Paths handles GET /api/paths.
//
//	@Summary	List node paths in pre-order
//	@Tags		trees
//	@Produce	json
//	@Param		path	query		string	false	"Start path"
//	@Param		ids		query		bool	false	"Prefix segments with node ids"
//	@Param		kind	query		[]string	false	"Keep only these kinds"
//	@Success	200		{object}	PathListResponse
//	@Security	BearerAuth
//	@Router		/paths [get]
func (h *Handler) Paths(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "list paths", err)
		return
	}
	q := r.URL.Query()
	opts := tree.PathOptions{}
	opts.WithIDs, _ = strconv.ParseBool(q.Get("ids"))
	for _, k := range q["kind"] {
		kind, err := tree.ParseKind(k)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	paths, err := h.svc.Paths(r.Context(), sc, q.Get("path"), opts)
	if err != nil {
		writeError(w, "list paths", err)
		return
	}
	writeJSON(w, http.StatusOK, PathListResponse{Paths: paths})
}

// Resolve handles GET /api/resolve.
//
//	@Summary	Resolve interactive input to a node
//	@Tags		nodes
//	@Produce	json
//	@Param		input	query		string	false	"Path or id-qualified path; blank cancels"
//	@Success	200		{object}	ResolveResponse
//	@Security	BearerAuth
//	@Router		/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	res, path, err := h.svc.Prompt(r.Context(), sc, r.URL.Query().Get("input"))
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Cancelled: res.Cancelled, ID: uint64(res.ID), Path: path})
}

// GetNode handles GET /api/nodes/*.
//
//	@Summary	Get a node with its direct children
//	@Tags		nodes
//	@Produce	json
//	@Param		path	path		string	true	"Node path"
//	@Success	200		{object}	treeservice.NodeView
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/nodes/{path} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	v, err := h.svc.Get(r.Context(), sc, nodePath(r))
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// InsertNode handles POST /api/nodes/*. The URL names the anchor.
//
//	@Summary	Insert a node relative to an anchor
//	@Tags		nodes
//	@Accept		json
//	@Produce	json
//	@Param		path		path		string				true	"Anchor path"
//	@Param		If-Match	header		string				false	"Tree checksum"
//	@Param		body		body		InsertNodeRequest	true	"Node to insert"
//	@Success	201			{object}	treeservice.Inserted
//	@Failure	400			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Failure	422			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/nodes/{path} [post]
func (h *Handler) InsertNode(w http.ResponseWriter, r *http.Request) {
	var req InsertNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "insert node", err)
		return
	}
	out, err := h.svc.Insert(r.Context(), sc, req.toService(nodePath(r)))
	if err != nil {
		writeError(w, "insert node", err)
		return
	}
	h.publish(sse.TypeNodeCreated, &out.Node)
	writeJSON(w, http.StatusCreated, out)
}

// PatchNode handles PATCH /api/nodes/*.
//
//	@Summary	Rename, re-icon, fold or re-attach a node
//	@Tags		nodes
//	@Accept		json
//	@Produce	json
//	@Param		path		path		string				true	"Node path"
//	@Param		If-Match	header		string				false	"Tree checksum"
//	@Param		body		body		PatchNodeRequest	true	"Changes"
//	@Success	200			{object}	treeservice.NodeView
//	@Failure	400			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Failure	422			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/nodes/{path} [patch]
func (h *Handler) PatchNode(w http.ResponseWriter, r *http.Request) {
	var req PatchNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "patch node", err)
		return
	}
	v, err := h.svc.Patch(r.Context(), sc, nodePath(r), req.toService())
	if err != nil {
		writeError(w, "patch node", err)
		return
	}
	h.publish(sse.TypeNodeUpdated, v)
	writeJSON(w, http.StatusOK, v)
}

// DeleteNode handles DELETE /api/nodes/*. The subtree goes with the node,
// so the caller must pass confirm=true.
//
//	@Summary	Delete a node and its subtree
//	@Tags		nodes
//	@Produce	json
//	@Param		path		path		string	true	"Node path"
//	@Param		confirm		query		bool	true	"Must be true"
//	@Param		If-Match	header		string	false	"Tree checksum"
//	@Success	200			{object}	RemoveResponse
//	@Failure	400			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	422			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/nodes/{path} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("deletion requires confirm=true"))
		return
	}
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "delete node", err)
		return
	}
	path := nodePath(r)
	n, err := h.svc.Remove(r.Context(), sc, path)
	if err != nil {
		writeError(w, "delete node", err)
		return
	}
	if h.events != nil {
		h.events.Publish(sse.Event{Type: sse.TypeNodeDeleted, Data: map[string]any{"path": path, "removed": n}})
	}
	writeJSON(w, http.StatusOK, RemoveResponse{Removed: n})
}

// MoveNode handles POST /api/move.
//
//	@Summary	Move a node with its subtree
//	@Tags		nodes
//	@Accept		json
//	@Produce	json
//	@Param		If-Match	header		string			false	"Tree checksum"
//	@Param		body		body		MoveNodeRequest	true	"Move"
//	@Success	200			{object}	treeservice.NodeView
//	@Failure	400			{object}	errResponse
//	@Failure	422			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/move [post]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "move node", err)
		return
	}
	p, _ := tree.ParsePlacement(req.Placement)
	v, err := h.svc.Move(r.Context(), sc, req.Path, req.Dest, p)
	if err != nil {
		writeError(w, "move node", err)
		return
	}
	h.publish(sse.TypeNodeUpdated, v)
	writeJSON(w, http.StatusOK, v)
}

// OpenNode handles POST /api/open/*. It creates a missing data file and
// returns what an external opener needs; nothing is launched.
//
//	@Summary	Resolve the external target of a node
//	@Tags		nodes
//	@Produce	json
//	@Param		path	path		string	true	"Node path"
//	@Success	200		{object}	treeservice.Opened
//	@Failure	404		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/open/{path} [post]
func (h *Handler) OpenNode(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scope(r)
	if err != nil {
		writeError(w, "open node", err)
		return
	}
	out, err := h.svc.Open(r.Context(), sc, nodePath(r))
	if err != nil {
		writeError(w, "open node", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
