// Package services implements the spec-manager operations on top of the
// repository.
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/yas-mcp/pkg/models"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
)

// SpecStore is the persistence the service needs
type SpecStore interface {
	Create(ctx context.Context, spec *models.OpenAPISpec) error
	Upsert(ctx context.Context, spec *models.OpenAPISpec) error
	GetByName(ctx context.Context, name string) (*models.OpenAPISpec, error)
	List(ctx context.Context, activeOnly bool) ([]*models.OpenAPISpec, error)
	Delete(ctx context.Context, name string) error
	SetActive(ctx context.Context, name string, active bool) error
}

// SpecService validates documents before they enter the store
type SpecService struct {
	store  SpecStore
	logger *log.Logger
}

// NewSpecService creates a service over store
func NewSpecService(store SpecStore, logger *log.Logger) *SpecService {
	return &SpecService{store: store, logger: logger}
}

// ImportOptions controls how a document is stored
type ImportOptions struct {
	Name         string
	EndpointPath string
	Inactive     bool
	// Replace overwrites an existing spec of the same name
	Replace bool
}

// Import validates content as an OpenAPI 3 document and stores it
func (s *SpecService) Import(ctx context.Context, content []byte, opts ImportOptions) (*models.OpenAPISpec, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("spec name is required")
	}
	info, err := openapi2mcp.Inspect(content)
	if err != nil {
		return nil, fmt.Errorf("spec %s: %w", opts.Name, err)
	}

	spec := models.NewOpenAPISpec(opts.Name, string(content), opts.EndpointPath)
	spec.FileFormat = info.Format
	spec.IsActive = !opts.Inactive
	if info.Title != "" {
		spec.Title = &info.Title
	}
	if info.Version != "" {
		spec.Version = &info.Version
	}

	if opts.Replace {
		err = s.store.Upsert(ctx, spec)
	} else {
		err = s.store.Create(ctx, spec)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("name", spec.Name).
		Str("title", info.Title).
		Int("operations", info.Operations).
		Msg("spec imported")
	return spec, nil
}

// ImportFile reads path and imports it. An empty name defaults to the file
// name without extension.
func (s *SpecService) ImportFile(ctx context.Context, path string, opts ImportOptions) (*models.OpenAPISpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	if opts.Name == "" {
		opts.Name = NameFromPath(path)
	}
	return s.Import(ctx, content, opts)
}

// NameFromPath derives a spec name from a file name
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// isSpecFile reports whether name has a JSON or YAML extension
func isSpecFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ImportResult is the outcome for one file of a batch import
type ImportResult struct {
	File string
	Spec *models.OpenAPISpec
	Err  error
}

// ImportDir imports every JSON and YAML file in dir. Failures are reported
// per file and do not stop the batch.
func (s *SpecService) ImportDir(ctx context.Context, dir string, replace bool) ([]ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read specs directory: %w", err)
	}

	var results []ImportResult
	for _, e := range entries {
		if e.IsDir() || !isSpecFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		name := NameFromPath(path)
		spec, err := s.ImportFile(ctx, path, ImportOptions{
			Name:         name,
			EndpointPath: "/" + strings.ReplaceAll(name, "_", "-"),
			Replace:      replace,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("import failed")
		}
		results = append(results, ImportResult{File: path, Spec: spec, Err: err})
	}
	return results, nil
}

// SeedEntry describes one spec of a seed file
type SeedEntry struct {
	File         string `yaml:"file"`
	Name         string `yaml:"name"`
	EndpointPath string `yaml:"endpoint_path"`
	Active       *bool  `yaml:"active"`
}

// SeedConfig is the seed file layout
type SeedConfig struct {
	Specs []SeedEntry `yaml:"specs"`
}

// Seed imports the specs listed in a YAML seed file, replacing existing
// ones. Relative file paths are resolved against the seed file.
func (s *SpecService) Seed(ctx context.Context, seedPath string) ([]ImportResult, error) {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	base := filepath.Dir(seedPath)
	results := make([]ImportResult, 0, len(cfg.Specs))
	for _, entry := range cfg.Specs {
		path := entry.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		inactive := entry.Active != nil && !*entry.Active
		spec, err := s.ImportFile(ctx, path, ImportOptions{
			Name:         entry.Name,
			EndpointPath: entry.EndpointPath,
			Inactive:     inactive,
			Replace:      true,
		})
		if err == nil && inactive && spec.IsActive {
			// an upsert keeps the stored flag
			err = s.store.SetActive(ctx, spec.Name, false)
			spec.IsActive = false
		}
		results = append(results, ImportResult{File: path, Spec: spec, Err: err})
	}
	return results, nil
}

// List returns stored specs sorted by name
func (s *SpecService) List(ctx context.Context, activeOnly bool) ([]*models.OpenAPISpec, error) {
	specs, err := s.store.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// Get returns one spec
func (s *SpecService) Get(ctx context.Context, name string) (*models.OpenAPISpec, error) {
	return s.store.GetByName(ctx, name)
}

// Delete removes one spec
func (s *SpecService) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

// SetActive toggles whether a spec may be served
func (s *SpecService) SetActive(ctx context.Context, name string, active bool) error {
	return s.store.SetActive(ctx, name, active)
}
