// Package loader reads OpenAPI documents from files, URLs and the spec store.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/memory"
	"github.com/ubermorgenland/yas-mcp/pkg/models"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// DBPrefix marks a source that names a spec in the store, e.g. db:petstore
const DBPrefix = "db:"

// maxSpecBytes caps a spec fetched over HTTP
const maxSpecBytes = 32 << 20

// SpecStore looks specs up by name
type SpecStore interface {
	GetByName(ctx context.Context, name string) (*models.OpenAPISpec, error)
}

// Option configures a SpecLoader
type Option func(*SpecLoader)

// WithStore enables db: sources
func WithStore(store SpecStore) Option {
	return func(l *SpecLoader) {
		l.store = store
	}
}

// WithHTTPClient replaces the client used for URL sources
func WithHTTPClient(client *http.Client) Option {
	return func(l *SpecLoader) {
		l.client = client
	}
}

// SpecLoader resolves a spec source to its raw bytes
type SpecLoader struct {
	store  SpecStore
	client *http.Client
	logger *log.Logger
}

// NewSpecLoader creates a loader for file and URL sources
func NewSpecLoader(logger *log.Logger, opts ...Option) *SpecLoader {
	l := &SpecLoader{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsDBSource reports whether source names a stored spec
func IsDBSource(source string) bool {
	return strings.HasPrefix(source, DBPrefix)
}

// IsURLSource reports whether source is an http(s) URL
func IsURLSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load returns the document named by source. It matches openapi2mcp.SpecReader.
func (l *SpecLoader) Load(ctx context.Context, source string) ([]byte, error) {
	switch {
	case IsDBSource(source):
		return l.loadFromStore(ctx, strings.TrimPrefix(source, DBPrefix))
	case IsURLSource(source):
		return l.loadFromURL(ctx, source)
	default:
		return l.loadFromFile(ctx, source)
	}
}

func (l *SpecLoader) loadFromStore(ctx context.Context, name string) ([]byte, error) {
	if l.store == nil {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeConfig,
			"spec store not configured", "set database.url to load "+DBPrefix+name)
	}
	spec, err := l.store.GetByName(ctx, name)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to load spec from store")
	}
	if !spec.IsActive {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeNotFound,
			"spec is not active", fmt.Sprintf("activate it with: spec-manager activate %s", name))
	}
	l.logger.Info().
		Str("name", spec.Name).
		Str("title", spec.DisplayTitle()).
		Str("format", spec.FileFormat).
		Msg("spec loaded from store")
	return []byte(spec.SpecContent), nil
}

func (l *SpecLoader) loadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to create request")
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to fetch spec from URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeNetwork,
			fmt.Sprintf("HTTP %d when fetching spec", resp.StatusCode), url)
	}

	data, err := memory.Default.ReadAll(resp.Body, maxSpecBytes)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to read spec body")
	}
	l.logger.Info().Str("url", url).Int("bytes", len(data)).Msg("spec fetched")
	return data, nil
}

func (l *SpecLoader) loadFromFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, server.NewErrorWithContext(ctx, server.ErrorTypeNotFound, "spec file not found", path)
		}
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeParse, "failed to read spec file")
	}
	return data, nil
}
