package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
)

func noopExecutor(status int) requester.Executor {
	return requester.ExecutorFunc(func(context.Context, json.RawMessage) (*requester.HttpResponse, error) {
		return &requester.HttpResponse{StatusCode: status}, nil
	})
}

func TestRegisterAndGet(t *testing.T) {
	r := New(logger.Nop())
	r.Register("b", &RegisteredTool{Metadata: mcp.Tool{Name: "b"}, Executor: noopExecutor(200)})
	r.Register("a", &RegisteredTool{Metadata: mcp.Tool{Name: "a"}, Executor: noopExecutor(200)})

	if r.Count() != 2 {
		t.Fatalf("Count = %d", r.Count())
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found something")
	}
	list := r.ListMetadata()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Errorf("ListMetadata = %v", list)
	}
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := New(logger.Nop())
	r.Register("x", &RegisteredTool{Metadata: mcp.Tool{Name: "x", Description: "first"}, Executor: noopExecutor(200)})
	r.Register("x", &RegisteredTool{Metadata: mcp.Tool{Name: "x", Description: "second"}, Executor: noopExecutor(201)})

	got, ok := r.Get("x")
	if !ok || got.Metadata.Description != "second" {
		t.Fatalf("Get(x) = %+v", got)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d", r.Count())
	}
}

type fakeBuilder struct {
	fail string
}

func (b fakeBuilder) BuildRouteExecutor(route requester.RouteConfig) (requester.Executor, error) {
	if route.Method == b.fail {
		return nil, errors.New("unsupported")
	}
	return noopExecutor(200), nil
}

func compiled(names ...string) []openapi2mcp.CompiledTool {
	var out []openapi2mcp.CompiledTool
	for _, n := range names {
		out = append(out, openapi2mcp.CompiledTool{
			Route: requester.RouteConfig{Path: "/" + n, Method: "GET"},
			Tool:  mcp.Tool{Name: n},
		})
	}
	return out
}

func TestPopulate(t *testing.T) {
	r := New(logger.Nop())
	if err := r.Populate(compiled("one", "two"), fakeBuilder{}); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d", r.Count())
	}

	bad := New(logger.Nop())
	if err := bad.Populate(compiled("one"), fakeBuilder{fail: "GET"}); err == nil {
		t.Fatal("expected wiring error")
	}
	if bad.Count() != 0 {
		t.Errorf("partial registration: %d", bad.Count())
	}
}

func TestReloadReplacesContents(t *testing.T) {
	r := New(logger.Nop())
	_ = r.Populate(compiled("old", "kept"), fakeBuilder{})
	if err := r.Reload(compiled("kept", "new"), fakeBuilder{}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := r.Get("old"); ok {
		t.Error("old tool survived reload")
	}
	if _, ok := r.Get("new"); !ok {
		t.Error("new tool missing")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New(logger.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tool_%d", i)
			r.Register(name, &RegisteredTool{Metadata: mcp.Tool{Name: name}, Executor: noopExecutor(200)})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.ListMetadata()
			_, _ = r.Get("tool_0")
		}()
	}
	wg.Wait()
	if r.Count() != 20 {
		t.Errorf("Count = %d", r.Count())
	}
}
