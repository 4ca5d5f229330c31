// Package postgres implements the catalog store on pgx v5. Every repository
// runs against the pool, or against the enclosing transaction when reached
// through WithTx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

// queryer is the slice of pgx shared by pool and transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ catalog.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Events() catalog.EventRepository {
	return &EventRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Candidates() catalog.CandidateRepository {
	return &CandidateRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Fingerprints() catalog.FingerprintRepository {
	return &FingerprintRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Sources() catalog.SourceRepository {
	return &SourceRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Reference() catalog.ReferenceRepository {
	return &ReferenceRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Editorial() catalog.EditorialRepository {
	return &EditorialRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Runs() catalog.RunRepository {
	return &RunRepository{pool: s.pool, tx: s.tx}
}

// WithTx runs fn against a transactional view of the store. Nested calls
// reuse the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, catalog.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Store{pool: s.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type CandidateRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type FingerprintRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type SourceRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type ReferenceRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type EditorialRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type RunRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *CandidateRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *FingerprintRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *SourceRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ReferenceRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *EditorialRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *RunRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// NewPool opens a pgx pool against the database URL.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		cfg.MinConns = int32(minConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
