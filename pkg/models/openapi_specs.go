package models

import (
	"bytes"
	"strings"
	"time"
)

// Spec file formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// OpenAPISpec is one row of the openapi_specs table
type OpenAPISpec struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Title        *string   `json:"title,omitempty" db:"title"`
	Version      *string   `json:"version,omitempty" db:"version"`
	SpecContent  string    `json:"spec_content" db:"spec_content"`
	EndpointPath string    `json:"endpoint_path" db:"endpoint_path"`
	FileFormat   string    `json:"file_format" db:"file_format"`
	FileSize     int       `json:"file_size" db:"file_size"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the OpenAPISpec model
func (OpenAPISpec) TableName() string {
	return "openapi_specs"
}

// NewOpenAPISpec builds an active spec row. An empty endpointPath defaults
// to "/<name>".
func NewOpenAPISpec(name, specContent, endpointPath string) *OpenAPISpec {
	if endpointPath == "" {
		endpointPath = "/" + name
	}
	return &OpenAPISpec{
		Name:         name,
		SpecContent:  specContent,
		EndpointPath: "/" + strings.TrimPrefix(endpointPath, "/"),
		FileFormat:   DetectFormat([]byte(specContent)),
		FileSize:     len(specContent),
		IsActive:     true,
	}
}

// DetectFormat guesses json or yaml from the first significant byte
func DetectFormat(content []byte) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// DisplayTitle returns the title or an empty string
func (s *OpenAPISpec) DisplayTitle() string {
	if s.Title == nil {
		return ""
	}
	return *s.Title
}

// DisplayVersion returns the version or an empty string
func (s *OpenAPISpec) DisplayVersion() string {
	if s.Version == nil {
		return ""
	}
	return *s.Version
}
