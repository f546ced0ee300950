// Package requester turns compiled routes into executors that call the
// backend REST API.
package requester

import (
	"context"
	"encoding/json"
)

// RouteConfig holds the configuration for a specific route
type RouteConfig struct {
	Path        string
	Method      string
	Description string
	Headers     map[string]string
	// Parameters holds the path parameter names with empty defaults
	Parameters   map[string]string
	MethodConfig MethodConfig
}

// MethodConfig holds method-specific placement rules. Names listed here are
// never sent in the body.
type MethodConfig struct {
	QueryParams  []string
	HeaderParams []string
	// FormFields lists body properties of form-encoded and multipart routes
	FormFields []string
	FileUpload *FileUploadConfig
	// BodyField names the argument that carries the request body, if any
	BodyField string
}

// FileUploadConfig describes the file part of a multipart route
type FileUploadConfig struct {
	FieldName    string
	AllowedTypes []string
	MaxSize      int64
}

// HttpResponse is the backend reply. Headers keep the first value of each header.
type HttpResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Executor performs the HTTP call of one route. Implementations are safe for
// concurrent use.
type Executor interface {
	Invoke(ctx context.Context, args json.RawMessage) (*HttpResponse, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (*HttpResponse, error)

// Invoke calls f
func (f ExecutorFunc) Invoke(ctx context.Context, args json.RawMessage) (*HttpResponse, error) {
	return f(ctx, args)
}
