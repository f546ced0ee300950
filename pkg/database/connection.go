// Package database opens the Postgres spec store and manages its schema.
package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// Pool limits
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// ValidateURL checks that url is a Postgres connection URL lib/pq accepts
func ValidateURL(url string) error {
	if url == "" {
		return server.NewError(server.ErrorTypeConfig, "database URL is not set",
			"set database.url or "+server.EnvPrefix+"DATABASE_URL")
	}
	if !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		return server.NewError(server.ErrorTypeConfig, "invalid database URL",
			"must start with postgres:// or postgresql://")
	}
	if _, err := pq.ParseURL(url); err != nil {
		return server.Wrap(err, server.ErrorTypeConfig, "invalid database URL")
	}
	return nil
}

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, url string, logger *log.Logger) (*sql.DB, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to open database connection")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to ping database")
	}

	logger.Info().Str("database_url", server.MaskSensitive(url)).Msg("database connected")
	return db, nil
}

// OpenAndMigrate opens the store and ensures its schema exists
func OpenAndMigrate(ctx context.Context, url string, logger *log.Logger) (*sql.DB, error) {
	db, err := Open(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
