// Package testutil provides shared test helpers for building a tree service
// over temporary directories.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mind/internal/registry"
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treeservice"
	"github.com/starford/mind/internal/treestore"
)

// Env is a tree service rooted in a temporary state directory, plus a
// working directory to select trees from.
type Env struct {
	Work     string
	State    string
	Registry *registry.DB
	Service  *treeservice.Service
}

// Templates are the data file templates used by NewEnv.
var Templates = tree.Templates{
	tree.ContentMarkdown: "# ${text}\n",
	tree.ContentOrg:      "#+TITLE: ${text}\n",
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRegistry opens a project registry in a temporary directory that is
// closed automatically.
func TestRegistry(t *testing.T) *registry.DB {
	t.Helper()
	db, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewEnv wires selector, store and service the way the application does.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	base := t.TempDir()
	env := &Env{
		Work:     filepath.Join(base, "work"),
		State:    filepath.Join(base, "state"),
		Registry: TestRegistry(t),
	}
	if err := os.MkdirAll(env.Work, 0o755); err != nil {
		t.Fatal(err)
	}
	logger := Logger()
	sel := selector.New(env.State, env.Registry)
	store := treestore.New(treestore.WithLogger(logger), treestore.WithRegistrar(env.Registry))
	env.Service = treeservice.NewService(sel, store, Templates, logger)
	return env
}
