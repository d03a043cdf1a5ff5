// Package duckdb persists orchestration run traces in an embedded DuckDB
// database.
package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// Repository wraps the DuckDB connection used by the trace store.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at path and ensures the
// schema exists.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %s: %w", path, err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id          VARCHAR PRIMARY KEY,
			question    VARCHAR NOT NULL,
			status      VARCHAR NOT NULL,
			tool_calls  INTEGER NOT NULL,
			start_time  TIMESTAMP NOT NULL,
			end_time    TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL,
			span_count  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			id          VARCHAR PRIMARY KEY,
			trace_id    VARCHAR NOT NULL,
			name        VARCHAR NOT NULL,
			kind        VARCHAR NOT NULL,
			status      VARCHAR NOT NULL,
			input       VARCHAR,
			output      VARCHAR,
			error       VARCHAR,
			start_time  TIMESTAMP NOT NULL,
			end_time    TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate trace schema: %w", err)
		}
	}
	return nil
}
