package reload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/registry"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
)

// lineCompiler emits one tool per non-empty line of the document
type lineCompiler struct {
	mu    sync.Mutex
	calls int
}

func (c *lineCompiler) Compile(_ context.Context, spec []byte) ([]openapi2mcp.CompiledTool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if strings.Contains(string(spec), "broken") {
		return nil, errors.New("broken spec")
	}
	var out []openapi2mcp.CompiledTool
	for _, line := range strings.Fields(string(spec)) {
		out = append(out, openapi2mcp.CompiledTool{
			Route: requester.RouteConfig{Path: "/" + line, Method: "GET"},
			Tool:  mcp.Tool{Name: line},
		})
	}
	return out, nil
}

func (c *lineCompiler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type nopBuilder struct{}

func (nopBuilder) BuildRouteExecutor(requester.RouteConfig) (requester.Executor, error) {
	return requester.ExecutorFunc(func(context.Context, json.RawMessage) (*requester.HttpResponse, error) {
		return &requester.HttpResponse{StatusCode: 200}, nil
	}), nil
}

type source struct {
	mu   sync.Mutex
	data string
	err  error
}

func (s *source) set(data string) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

func (s *source) read(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.data), nil
}

func newReloader(src *source, comp *lineCompiler) (*Reloader, *registry.Registry) {
	reg := registry.New(logger.Nop())
	r := New(Config{
		Source:   "db:test",
		Read:     src.read,
		Compiler: comp,
		Registry: reg,
		Builder:  nopBuilder{},
	}, logger.Nop())
	return r, reg
}

func TestReload(t *testing.T) {
	src := &source{data: "a b"}
	comp := &lineCompiler{}
	r, reg := newReloader(src, comp)
	ctx := context.Background()

	res, err := r.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !res.Changed || res.Tools != 2 || reg.Count() != 2 {
		t.Fatalf("first reload = %+v, registry %d", res, reg.Count())
	}

	res, err = r.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Changed || res.Tools != 2 {
		t.Errorf("unchanged reload = %+v", res)
	}
	if comp.Calls() != 1 {
		t.Errorf("compiled %d times, want 1", comp.Calls())
	}

	src.set("a b c")
	res, err = r.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !res.Changed || reg.Count() != 3 {
		t.Errorf("changed reload = %+v, registry %d", res, reg.Count())
	}
	if _, ok := reg.Get("c"); !ok {
		t.Error("tool c not registered")
	}
}

func TestReloadKeepsToolsOnFailure(t *testing.T) {
	src := &source{data: "a b"}
	r, reg := newReloader(src, &lineCompiler{})
	ctx := context.Background()
	if _, err := r.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	src.set("broken")
	res, err := r.Reload(ctx)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if res.Tools != 2 || reg.Count() != 2 {
		t.Errorf("registry changed after failed reload: %+v, %d", res, reg.Count())
	}

	src.mu.Lock()
	src.err = errors.New("db down")
	src.mu.Unlock()
	if _, err := r.Reload(ctx); err == nil || reg.Count() != 2 {
		t.Errorf("read failure: err=%v count=%d", err, reg.Count())
	}
}

func TestMarkLoaded(t *testing.T) {
	src := &source{data: "a"}
	comp := &lineCompiler{}
	r, _ := newReloader(src, comp)
	r.MarkLoaded([]byte("a"))

	res, err := r.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed || comp.Calls() != 0 {
		t.Errorf("reload after MarkLoaded = %+v, calls %d", res, comp.Calls())
	}
	if res.Hash != Hash([]byte("a")) {
		t.Errorf("hash = %s", res.Hash)
	}
}

func TestReloadFunc(t *testing.T) {
	r, _ := newReloader(&source{data: "x y z"}, &lineCompiler{})
	n, err := r.ReloadFunc(context.Background())()
	if err != nil || n != 3 {
		t.Errorf("ReloadFunc = %d, %v", n, err)
	}
}

func TestPoll(t *testing.T) {
	src := &source{data: "a"}
	r, reg := newReloader(src, &lineCompiler{})
	r.MarkLoaded([]byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Poll(ctx, 5*time.Millisecond) }()

	src.set("a b")
	deadline := time.After(2 * time.Second)
	for reg.Count() != 2 {
		select {
		case <-deadline:
			t.Fatalf("poll did not reload, registry %d", reg.Count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Poll = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not stop")
	}
}

func TestPollDisabled(t *testing.T) {
	r, _ := newReloader(&source{}, &lineCompiler{})
	if err := r.Poll(context.Background(), 0); err != nil {
		t.Errorf("Poll(0) = %v", err)
	}
}

const petsAndUsers = `openapi: 3.0.0
info: {title: t, version: "1"}
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200": {description: ok}
  /users:
    get:
      summary: List users
      responses:
        "200": {description: ok}
`

func TestReloadReplacesAdjustments(t *testing.T) {
	adjPath := filepath.Join(t.TempDir(), "adjustments.yaml")
	writeAdjustments := func(content string) {
		t.Helper()
		if err := os.WriteFile(adjPath, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	writeAdjustments("routes:\n  - path: /users\n    methods: [GET]\n")

	src := &source{data: petsAndUsers}
	adj := adjuster.New(logger.Nop())
	reg := registry.New(logger.Nop())
	r := New(Config{
		Source:          "spec.yaml",
		AdjustmentsFile: adjPath,
		Read:            src.read,
		Adjuster:        adj,
		Compiler:        openapi2mcp.NewCompiler(adj, logger.Nop()),
		Registry:        reg,
		Builder:         nopBuilder{},
	}, logger.Nop())
	ctx := context.Background()

	res, err := r.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Tools != 1 {
		t.Fatalf("tools = %d, want 1", res.Tools)
	}
	if _, ok := reg.Get("get_users"); !ok {
		t.Fatal("get_users not registered")
	}

	t.Run("failed compile keeps adjustments", func(t *testing.T) {
		writeAdjustments("routes:\n  - path: /pets\n    methods: [GET]\n")
		src.set("{not: [valid")
		if _, err := r.Reload(ctx); err == nil {
			t.Fatal("expected compile error")
		}
		if !adj.ExistsInMcp("/users", "GET") || adj.ExistsInMcp("/pets", "GET") {
			t.Error("adjuster changed although the registry was not replaced")
		}
		if reg.Count() != 1 {
			t.Errorf("registry = %d tools, want 1", reg.Count())
		}
	})

	t.Run("removed file allows all", func(t *testing.T) {
		if err := os.Remove(adjPath); err != nil {
			t.Fatal(err)
		}
		src.set(petsAndUsers)
		res, err := r.Reload(ctx)
		if err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if !res.Changed || res.Tools != 2 {
			t.Errorf("reload = %+v, want 2 changed tools", res)
		}
		if adj.RoutesCount() != 0 {
			t.Errorf("stale routes = %d", adj.RoutesCount())
		}
	})
}
