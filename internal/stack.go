package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/treeservice"
	"github.com/starford/mind/internal/treestore"
)

// Stack is the wired tree engine shared by the CLI, the HTTP server and the
// MCP server.
type Stack struct {
	Registry *registry.DB
	Selector *selector.Selector
	Store    *treestore.Store
	Service  *treeservice.Service
}

// Open creates the state directory, opens the project registry and wires the
// service on top of it. Close releases the registry.
func Open(cfg *Config, logger *slog.Logger) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.Persistence.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := registry.Open(cfg.Persistence.Registry())
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	sel := selector.New(cfg.Persistence.StateDir, db)
	store := treestore.New(
		treestore.WithLogger(logger),
		treestore.WithRegistrar(db),
		treestore.WithRoot(cfg.Tree.RootName, cfg.Tree.RootIcon),
	)
	svc := treeservice.NewService(sel, store, cfg.Data.TreeTemplates(), logger,
		treeservice.WithContentType(cfg.Data.DefaultContentType()))

	return &Stack{Registry: db, Selector: sel, Store: store, Service: svc}, nil
}

// Close releases the registry.
func (s *Stack) Close() error {
	return s.Registry.Close()
}

func (a *application) setup() (*Config, string, error) {
	if a.config == nil {
		return nil, "", fmt.Errorf("config is required")
	}
	dir := a.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("working directory: %w", err)
		}
		dir = wd
	}
	return a.config, dir, nil
}
