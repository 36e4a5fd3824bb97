// Package pgstore is the relational store: a pgx/v5 pool-backed
// implementation of the executor package's GuideStore/MatrixStore/
// GenerationStore ports, plus the Company read/write repo the HTTP
// ingress uses. Schema migrations are managed with pressly/goose/v3,
// grounded on the teacher's ecosystem-library conventions (see
// SPEC_FULL.md DOMAIN STACK) since the teacher itself has no relational
// store of its own to imitate directly.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects a pgx connection pool to dsn.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies every pending embedded migration using goose, driven
// through database/sql via pgx's stdlib adapter (imported for its "pgx"
// driver registration) since goose speaks database/sql, not pgx's native
// interface.
func Migrate(dsn string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
