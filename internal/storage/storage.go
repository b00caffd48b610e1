// Package storage defines the persistence contract for the business
// register.
//
// The concrete implementation lives in the postgres sub-package. This
// package holds the interface and value types referenced by both the
// postgres implementation and its consumers (the HTTP layer, the
// ingestion pipeline, cmd/vantage).
package storage

import (
	"context"
	"errors"

	"github.com/vantagesearch/vantage/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("store is closed")

// UpsertStats reports how a bulk upsert landed: rows newly created vs
// rows merged into an existing ABN.
type UpsertStats struct {
	Inserted int
	Updated  int
}

// Submitted is the total number of rows the upsert touched.
func (s UpsertStats) Submitted() int { return s.Inserted + s.Updated }

// Add accumulates another batch's stats.
func (s *UpsertStats) Add(o UpsertStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
}

// Repository is the interface satisfied by *postgres.Store. Consumers
// depend on this interface (or a subset of it) rather than the concrete
// type so stubs can be substituted in tests.
type Repository interface {
	// Ingestion plane. Bulk operations chunk their statements so the
	// bound-parameter count stays under the wire-protocol cap.
	BulkUpsertBusinesses(ctx context.Context, rows []types.Business) (UpsertStats, error)
	BulkInsertNames(ctx context.Context, rows []types.BusinessName) error
	GetIDsByABNs(ctx context.Context, abns []string) (map[string]int64, error)
	DeleteNamesByBusinessIDs(ctx context.Context, ids []int64) error
	// IngestBatch runs the whole upsert-and-replace-names sequence for
	// one batch inside a single transaction.
	IngestBatch(ctx context.Context, businesses []types.Business, names []NameRow) (UpsertStats, error)

	// Serving plane.
	FindByABN(ctx context.Context, abn string) (*types.Business, int64, error)
	SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)
	SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)
	FindWithFilters(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)

	Ping(ctx context.Context) error
	Close()
}

// NameRow is a secondary name still keyed by ABN, as parsed from the
// source extract. The ingest transaction resolves ABNs to surrogate ids
// before the rows land in business_names.
type NameRow struct {
	ABN      string
	NameType string
	NameText string
}
