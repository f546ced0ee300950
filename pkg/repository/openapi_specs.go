// Package repository stores OpenAPI documents in Postgres.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ubermorgenland/yas-mcp/pkg/models"
)

var (
	// ErrNotFound is returned when no spec matches
	ErrNotFound = errors.New("openapi spec not found")
	// ErrAlreadyExists is returned when a name or endpoint path is taken
	ErrAlreadyExists = errors.New("openapi spec already exists")
)

const specColumns = `id, name, title, version, spec_content, endpoint_path, file_format, file_size, is_active, created_at, updated_at`

// OpenAPISpecRepository handles database operations for OpenAPI specs
type OpenAPISpecRepository struct {
	db *sql.DB
}

// NewOpenAPISpecRepository creates a new repository instance
func NewOpenAPISpecRepository(db *sql.DB) *OpenAPISpecRepository {
	return &OpenAPISpecRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpec(row rowScanner) (*models.OpenAPISpec, error) {
	spec := &models.OpenAPISpec{}
	err := row.Scan(
		&spec.ID,
		&spec.Name,
		&spec.Title,
		&spec.Version,
		&spec.SpecContent,
		&spec.EndpointPath,
		&spec.FileFormat,
		&spec.FileSize,
		&spec.IsActive,
		&spec.CreatedAt,
		&spec.UpdatedAt,
	)
	return spec, err
}

// classify maps driver errors onto the package sentinels
func classify(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("%s (%s): %w", what, pqErr.Constraint, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Create inserts spec and fills in its id and timestamps
func (r *OpenAPISpecRepository) Create(ctx context.Context, spec *models.OpenAPISpec) error {
	query := `
		INSERT INTO openapi_specs (name, title, version, spec_content, endpoint_path, file_format, file_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.SpecContent,
		spec.EndpointPath,
		spec.FileFormat,
		spec.FileSize,
		spec.IsActive,
	).Scan(&spec.ID, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return classify(err, "failed to create openapi spec "+spec.Name)
	}
	return nil
}

// Upsert inserts spec or replaces the content of the spec with the same name
func (r *OpenAPISpecRepository) Upsert(ctx context.Context, spec *models.OpenAPISpec) error {
	query := `
		INSERT INTO openapi_specs (name, title, version, spec_content, endpoint_path, file_format, file_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			title = EXCLUDED.title,
			version = EXCLUDED.version,
			spec_content = EXCLUDED.spec_content,
			endpoint_path = EXCLUDED.endpoint_path,
			file_format = EXCLUDED.file_format,
			file_size = EXCLUDED.file_size
		RETURNING id, is_active, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.SpecContent,
		spec.EndpointPath,
		spec.FileFormat,
		spec.FileSize,
		spec.IsActive,
	).Scan(&spec.ID, &spec.IsActive, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return classify(err, "failed to upsert openapi spec "+spec.Name)
	}
	return nil
}

// GetByName retrieves a spec by its unique name
func (r *OpenAPISpecRepository) GetByName(ctx context.Context, name string) (*models.OpenAPISpec, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+specColumns+` FROM openapi_specs WHERE name = $1`, name)
	spec, err := scanSpec(row)
	if err != nil {
		return nil, classify(err, "openapi spec "+name)
	}
	return spec, nil
}

// List returns specs ordered by name, optionally only active ones
func (r *OpenAPISpecRepository) List(ctx context.Context, activeOnly bool) ([]*models.OpenAPISpec, error) {
	query := `SELECT ` + specColumns + ` FROM openapi_specs`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, "failed to list openapi specs")
	}
	defer rows.Close()

	var specs []*models.OpenAPISpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan openapi spec: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list openapi specs: %w", err)
	}
	return specs, nil
}

// Delete removes the spec called name
func (r *OpenAPISpecRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM openapi_specs WHERE name = $1`, name)
	return expectOneRow(result, err, "failed to delete openapi spec "+name)
}

// SetActive sets the is_active flag of the spec called name
func (r *OpenAPISpecRepository) SetActive(ctx context.Context, name string, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE openapi_specs SET is_active = $2 WHERE name = $1`, name, active)
	return expectOneRow(result, err, "failed to update openapi spec "+name)
}

func expectOneRow(result sql.Result, err error, what string) error {
	if err != nil {
		return classify(err, what)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
