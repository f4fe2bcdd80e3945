package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mind/internal/sse"
	"github.com/starford/mind/internal/treeservice"
)

func testStack(t *testing.T) (*Config, *Stack, string) {
	t.Helper()
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Persistence.StateDir = filepath.Join(root, "state")
	stack, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })
	work := filepath.Join(root, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg, stack, work
}

func TestOpen_CreatesStateAndRegistry(t *testing.T) {
	cfg, _, _ := testStack(t)
	if _, err := os.Stat(cfg.Persistence.Registry()); err != nil {
		t.Fatalf("registry not created: %v", err)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Persistence.StateDir = ""
	if _, err := Open(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for empty state dir")
	}
}

func TestRouter_HealthAndAPI(t *testing.T) {
	cfg, stack, work := testStack(t)
	broker := sse.NewBroker(0)
	defer broker.Close()

	if _, err := stack.Service.Insert(context.Background(), treeservice.Scope{Cwd: work}, treeservice.InsertRequest{
		Anchor: "/",
		Text:   "Tasks",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	srv := httptest.NewServer(newRouter(cfg, stack.Service, work, broker))
	defer srv.Close()

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/api/paths")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("paths status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "/Tasks") {
		t.Errorf("paths body = %s", body)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}
