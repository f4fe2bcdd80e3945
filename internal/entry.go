// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mind/internal/api"
	"github.com/starford/mind/internal/mcpserver"
	"github.com/starford/mind/internal/sse"
	"github.com/starford/mind/internal/treeservice"
	"github.com/starford/mind/internal/treestore"
)

// Run starts the HTTP server for the tree selected from the working
// directory and streams changes of its file to SSE clients.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, dir, err := app.setup()
	if err != nil {
		return err
	}

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("state_dir", cfg.Persistence.StateDir),
		slog.String("registry_path", cfg.Persistence.Registry()),
		slog.String("work_dir", dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	stack, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	// Resolve the active tree up front; this also creates a missing global tree.
	sel, err := stack.Service.Select(ctx, treeservice.Scope{Cwd: dir})
	if err != nil {
		return fmt.Errorf("select tree: %w", err)
	}
	if _, err := stack.Store.Load(ctx, sel); err != nil {
		return fmt.Errorf("load tree: %w", err)
	}
	logger.Info("Serving tree",
		slog.String("category", string(sel.Category)),
		slog.String("path", sel.Path))

	broker := sse.NewBroker(0)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRouter(cfg, stack.Service, dir, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the served tree file. A failing watcher only disables events.
	g.Go(func() error {
		if err := treestore.Watch(gCtx, sel, logger, broker.PublishTreeEvent); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the run group once the server has been shut down, so
// the watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr because
// stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	cfg, dir, err := app.setup()
	if err != nil {
		return err
	}

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	stack, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("MCP server starting", slog.String("work_dir", dir))
	return mcpserver.New(stack.Service, dir, app.version).ServeStdio()
}

func newRouter(cfg *Config, svc *treeservice.Service, dir string, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", api.NewRouter(svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Cwd:         dir,
		Events:      broker,
		Publisher:   broker,
	}))

	return r
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}
