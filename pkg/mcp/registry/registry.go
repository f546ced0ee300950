// Package registry holds the tools served to MCP clients.
package registry

import (
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/requester"
)

// RegisteredTool is a tool definition with the executor that serves it.
// Handles returned by Get are never mutated.
type RegisteredTool struct {
	Metadata mcp.Tool
	Executor requester.Executor
}

// Registry is a concurrent map from tool name to RegisteredTool
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*RegisteredTool
	logger *log.Logger
}

// New creates an empty registry
func New(logger *log.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*RegisteredTool),
		logger: logger,
	}
}

// Register adds tool under name. An existing entry is replaced.
func (r *Registry) Register(name string, tool *RegisteredTool) {
	r.mu.Lock()
	_, exists := r.tools[name]
	r.tools[name] = tool
	r.mu.Unlock()

	if exists {
		r.logger.Warn().Str("tool", name).Msg("tool name collision, last registration wins")
	}
}

// Replace swaps the whole tool set at once
func (r *Registry) Replace(tools map[string]*RegisteredTool) {
	next := make(map[string]*RegisteredTool, len(tools))
	for name, tool := range tools {
		next[name] = tool
	}
	r.mu.Lock()
	r.tools = next
	r.mu.Unlock()
}

// Get looks a tool up by name
func (r *Registry) Get(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ListMetadata returns every tool definition sorted by name
func (r *Registry) ListMetadata() []mcp.Tool {
	r.mu.RLock()
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool.Metadata)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
