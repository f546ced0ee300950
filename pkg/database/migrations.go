package database

import (
	"context"
	"database/sql"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

const createSpecsTable = `
CREATE TABLE IF NOT EXISTS openapi_specs (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) UNIQUE NOT NULL,
	title VARCHAR(500),
	version VARCHAR(100),
	spec_content TEXT NOT NULL,
	endpoint_path VARCHAR(255) UNIQUE NOT NULL,
	file_format VARCHAR(10) NOT NULL DEFAULT 'yaml',
	file_size INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_openapi_specs_is_active ON openapi_specs(is_active);

CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = NOW();
	RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
CREATE TRIGGER update_openapi_specs_updated_at
	BEFORE UPDATE ON openapi_specs
	FOR EACH ROW
	EXECUTE FUNCTION update_updated_at_column();
`

const dropSpecsTable = `
DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS openapi_specs CASCADE;
`

// Migrate creates the openapi_specs table, its index and update trigger
func Migrate(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	if _, err := db.ExecContext(ctx, createSpecsTable); err != nil {
		return server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to create openapi_specs table")
	}
	logger.Debug().Msg("database migrations applied")
	return nil
}

// Drop removes the openapi_specs table and its trigger
func Drop(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, dropSpecsTable); err != nil {
		return server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to drop openapi_specs table")
	}
	return nil
}
