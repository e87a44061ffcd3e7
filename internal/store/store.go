// Package store persists catalog snapshots and load history behind
// database/sql, supporting SQLite for local use and PostgreSQL for shared
// deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/observability"
)

// Common errors
var (
	ErrNotFound   = errors.New("record not found")
	ErrNoSnapshot = errors.New("no active snapshot")
)

// Store provides access to the catalog database.
type Store struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
}

// Open connects to the configured database and runs migrations.
func Open(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Store, error) {
	var driver string
	switch cfg.Database.Driver {
	case "sqlite":
		driver = "sqlite3"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := sql.Open(driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite serializes writers; a single connection avoids lock errors.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver, logger: logger.WithComponent("store")}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection. Used in tests.
func NewWithDB(db *sql.DB, driver string, logger *observability.Logger) *Store {
	return &Store{db: db, driver: driver, logger: logger.WithComponent("store")}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist. The DDL sticks to the
// type names SQLite and PostgreSQL interpret the same way.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			generation           BIGINT NOT NULL,
			identity_key         TEXT NOT NULL,
			name                 TEXT NOT NULL,
			set_number           TEXT NOT NULL DEFAULT '',
			theme                TEXT NOT NULL DEFAULT '',
			year                 INTEGER,
			piece_count          INTEGER,
			minifigures          INTEGER,
			price                DOUBLE PRECISION,
			rating               DOUBLE PRECISION,
			description          TEXT NOT NULL DEFAULT '',
			source_name          TEXT NOT NULL,
			contributing_sources TEXT NOT NULL,
			quality_score        DOUBLE PRECISION NOT NULL,
			embedding_text       TEXT NOT NULL,
			PRIMARY KEY (generation, identity_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_theme ON items (generation, theme)`,
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS load_history (
			job_id          TEXT PRIMARY KEY,
			generation      BIGINT NOT NULL,
			started_at      TIMESTAMP NOT NULL,
			finished_at     TIMESTAMP NOT NULL,
			records_in      INTEGER NOT NULL,
			records_deduped INTEGER NOT NULL,
			records_dropped INTEGER NOT NULL,
			source_errors   TEXT NOT NULL,
			status          TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
