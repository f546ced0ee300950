package registry

import (
	"fmt"

	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
)

// ExecutorBuilder creates the executor for one route
type ExecutorBuilder interface {
	BuildRouteExecutor(route requester.RouteConfig) (requester.Executor, error)
}

// Populate builds an executor per compiled tool and registers the pair.
// A wiring failure aborts before anything is registered.
func (r *Registry) Populate(compiled []openapi2mcp.CompiledTool, builder ExecutorBuilder) error {
	built, err := r.build(compiled, builder)
	if err != nil {
		return err
	}
	for _, tool := range built {
		r.Register(tool.Metadata.Name, tool)
	}
	r.logger.Info().Int("tools", r.Count()).Msg("tools registered")
	return nil
}

// Reload replaces the registry contents with compiled
func (r *Registry) Reload(compiled []openapi2mcp.CompiledTool, builder ExecutorBuilder) error {
	built, err := r.build(compiled, builder)
	if err != nil {
		return err
	}
	next := make(map[string]*RegisteredTool, len(built))
	for _, tool := range built {
		if _, dup := next[tool.Metadata.Name]; dup {
			r.logger.Warn().Str("tool", tool.Metadata.Name).Msg("tool name collision, last registration wins")
		}
		next[tool.Metadata.Name] = tool
	}
	r.Replace(next)
	r.logger.Info().Int("tools", len(next)).Msg("tools reloaded")
	return nil
}

func (r *Registry) build(compiled []openapi2mcp.CompiledTool, builder ExecutorBuilder) ([]*RegisteredTool, error) {
	out := make([]*RegisteredTool, 0, len(compiled))
	for _, c := range compiled {
		exec, err := builder.BuildRouteExecutor(c.Route)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", c.Tool.Name, err)
		}
		out = append(out, &RegisteredTool{Metadata: c.Tool, Executor: exec})
	}
	return out, nil
}
