// Package adjuster filters OpenAPI routes and overrides their descriptions
// according to an optional YAML adjustments file.
package adjuster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// RouteFieldUpdate overrides the description of one method
type RouteFieldUpdate struct {
	Method         string `yaml:"method"`
	NewDescription string `yaml:"new_description"`
}

// RouteDescription groups the overrides for one path
type RouteDescription struct {
	Path    string             `yaml:"path"`
	Updates []RouteFieldUpdate `yaml:"updates"`
}

// RouteSelection allow-lists methods on a path
type RouteSelection struct {
	Path    string   `yaml:"path"`
	Methods []string `yaml:"methods"`
}

// Adjustments is the on-disk adjustments document
type Adjustments struct {
	Descriptions []RouteDescription `yaml:"descriptions,omitempty"`
	Routes       []RouteSelection   `yaml:"routes,omitempty"`
}

// Adjuster answers route inclusion and description queries
type Adjuster struct {
	mu          sync.RWMutex
	adjustments Adjustments
	logger      *log.Logger
}

// New creates an Adjuster with no adjustments
func New(logger *log.Logger) *Adjuster {
	return &Adjuster{logger: logger}
}

// NewFromAdjustments wraps an in-memory adjustments document
func NewFromAdjustments(logger *log.Logger, adj Adjustments) *Adjuster {
	return &Adjuster{logger: logger, adjustments: adj}
}

// Load replaces the adjustments with the contents of path. An empty path or
// a missing file clears them; malformed YAML is a config error and keeps the
// current ones.
func (a *Adjuster) Load(path string) error {
	if path == "" {
		a.logger.Info().Msg("no adjustments file provided")
		a.Set(Adjustments{})
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn().Str("path", path).Msg("adjustments file not found")
		a.Set(Adjustments{})
		return nil
	}
	if err != nil {
		return server.Wrap(err, server.ErrorTypeConfig, fmt.Sprintf("failed to read adjustments file %s", path))
	}

	var adj Adjustments
	if err := yaml.Unmarshal(data, &adj); err != nil {
		return server.Wrap(err, server.ErrorTypeConfig, fmt.Sprintf("failed to parse adjustments file %s", path))
	}

	a.Set(adj)
	a.logger.Info().
		Str("path", path).
		Int("routes", len(adj.Routes)).
		Int("descriptions", len(adj.Descriptions)).
		Msg("adjustments loaded")
	return nil
}

// ExistsInMcp reports whether the method on route should become a tool
func (a *Adjuster) ExistsInMcp(route, method string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.adjustments.Routes) == 0 {
		return true
	}

	normalized := strings.TrimSuffix(route, "/")
	for _, sel := range a.adjustments.Routes {
		if strings.TrimSuffix(sel.Path, "/") != normalized {
			continue
		}
		for _, m := range sel.Methods {
			if strings.EqualFold(m, method) {
				return true
			}
		}
		a.logger.Debug().Str("route", route).Str("method", method).Msg("method not selected")
		return false
	}

	a.logger.Debug().Str("route", route).Msg("route not selected")
	return false
}

// GetDescription returns the override for route and method, or original.
// Path and method must match exactly; only the first entry for a path is consulted.
func (a *Adjuster) GetDescription(route, method, original string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, desc := range a.adjustments.Descriptions {
		if desc.Path != route {
			continue
		}
		for _, u := range desc.Updates {
			if u.Method == method {
				return u.NewDescription
			}
		}
		break
	}
	return original
}

// RoutesCount returns the number of route selections
func (a *Adjuster) RoutesCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.adjustments.Routes)
}

// Adjustments returns the loaded document
func (a *Adjuster) Adjustments() Adjustments {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.adjustments
}

// Set replaces the adjustments wholesale
func (a *Adjuster) Set(adj Adjustments) {
	a.mu.Lock()
	a.adjustments = adj
	a.mu.Unlock()
}

// Save writes adj as YAML to path
func Save(path string, adj Adjustments) error {
	data, err := yaml.Marshal(adj)
	if err != nil {
		return server.Wrap(err, server.ErrorTypeInternal, "failed to encode adjustments")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return server.Wrap(err, server.ErrorTypeConfig, fmt.Sprintf("failed to write adjustments file %s", path))
	}
	return nil
}
