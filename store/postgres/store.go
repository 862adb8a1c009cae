// Package postgres provides a PostgreSQL-backed Store implementation on pgx.
//
// The pending-delivery queue uses FOR UPDATE SKIP LOCKED so concurrent
// pollers never claim the same row; fan-out dedup and event idempotency ride
// on unique constraints; the delinquency bump is a single upsert statement.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	hookstore "github.com/hookpost/hookpost/store"
)

// compile-time interface check
var _ hookstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via pgx.
type Store struct {
	db *pgxpool.Pool
}

// New creates a new PostgreSQL store from an existing connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and returns a store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("hookpost/postgres: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// isNoRows checks if an error is the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation checks for a unique constraint violation, optionally on a
// specific constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
