package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mind/internal/treeservice"
)

// RouterConfig wires the API router.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Cwd is the working directory used when a request carries no cwd.
	Cwd string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Publisher receives node change events; may be nil.
	Publisher Publisher
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *treeservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Cwd, cfg.Publisher)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(RequireJSON)

	// Trees.
	r.Get("/trees", h.ListTrees)
	r.Post("/trees", h.InitTree)
	r.Get("/tree", h.GetTree)
	r.Get("/paths", h.Paths)
	r.Get("/resolve", h.Resolve)

	// Nodes, addressed by path.
	r.Get("/nodes/*", h.GetNode)
	r.Post("/nodes/*", h.InsertNode)
	r.Patch("/nodes/*", h.PatchNode)
	r.Delete("/nodes/*", h.DeleteNode)
	r.Post("/move", h.MoveNode)
	r.Post("/open/*", h.OpenNode)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
