// Package postgres implements the storage.Repository interface on
// PostgreSQL via pgx.
//
// Two planes share this package but not their pools: the serving plane
// opens one Store per worker process, and each ingestion run opens its
// own small Store so long bulk writes never starve request queries.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagesearch/vantage/internal/storage"
)

// Config holds PostgreSQL connection and query tuning.
type Config struct {
	// ConnString is a pgx connection string or URL.
	ConnString string
	// PoolMin / PoolMax bound the pool; zero keeps the pgx default.
	PoolMin int32
	PoolMax int32
	// PoolIdleTimeout closes idle connections; zero keeps the pgx default.
	PoolIdleTimeout time.Duration
	// MaxCandidates caps the candidate set counted for pagination totals.
	MaxCandidates int
	// ShortQueryMaxLength is the term length at or below which the
	// optimized search degrades to an anchored prefix match.
	ShortQueryMaxLength int
}

// Store implements storage.Repository on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	closed atomic.Bool

	maxCandidates       int
	shortQueryMaxLength int
}

var _ storage.Repository = (*Store)(nil)

// querier is the method set shared by *pgxpool.Pool and pgx.Tx, so the
// statement helpers run identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// defaultConnectTimeout bounds how long a pool waits to establish one
// connection. Without it, a wedged database would hang callers on the
// request context indefinitely.
const defaultConnectTimeout = 60 * time.Second

// poolConfig translates cfg into pgx pool settings. A connect timeout
// already pinned in the connection string wins over the default.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolMin > 0 {
		pc.MinConns = cfg.PoolMin
	}
	if cfg.PoolMax > 0 {
		pc.MaxConns = cfg.PoolMax
	}
	if cfg.PoolIdleTimeout > 0 {
		pc.MaxConnIdleTime = cfg.PoolIdleTimeout
	}
	if pc.ConnConfig.ConnectTimeout == 0 {
		pc.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	return pc, nil
}

// New connects a Store. The pool is verified with a ping before it is
// returned so misconfiguration fails at startup, not on first query.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 5000
	}

	return &Store{
		pool:                pool,
		maxCandidates:       maxCandidates,
		shortQueryMaxLength: cfg.ShortQueryMaxLength,
	}, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool. Safe to call more than once.
func (s *Store) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
}

// begin opens a transaction, guarding against use-after-close.
func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}
