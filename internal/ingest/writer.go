package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/vantagesearch/vantage/internal/metrics"
	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// Writer defaults, applied when the corresponding option is zero.
// FlushDelay has no fallback: the caller supplies the pacing delay and
// zero disables it, so an operator's explicit 0 is honored.
const (
	defaultBatchSize  = 5000
	defaultRetryDelay = time.Second
	defaultRetries    = 3
)

// WriterOptions tunes the batch writer.
type WriterOptions struct {
	// BatchSize is the buffer length that triggers a flush.
	BatchSize int
	// FlushDelay is slept after each successful flush, capping write
	// throughput against rate-limited managed stores. Zero disables
	// pacing.
	FlushDelay time.Duration
	// RetryDelay is the base backoff delay; it doubles per attempt.
	RetryDelay time.Duration
	// RetryAttempts is the total number of tries per batch.
	RetryAttempts int
}

// BatchStore is the slice of the repository the writer needs: atomic
// batch landing plus teardown of the run-private pool.
type BatchStore interface {
	IngestBatch(ctx context.Context, businesses []types.Business, names []storage.NameRow) (storage.UpsertStats, error)
	Close()
}

// Writer buffers normalized records and lands them in single-transaction
// batches, retrying transient connection failures with exponential
// backoff. One Writer serves one ingestion run.
type Writer struct {
	store BatchStore
	log   zerolog.Logger

	batchSize     int
	flushDelay    time.Duration
	retryDelay    time.Duration
	retryAttempts int

	mu     sync.Mutex
	buffer []Record

	// flushMu serializes flush runs. Overlapping flushes would exhaust
	// the run-private pool and reorder name replacement relative to the
	// upserts it depends on.
	flushMu sync.Mutex
	stats   storage.UpsertStats
	batches int
}

// NewWriter builds a Writer over store. The store is owned by the
// writer from here on; Close tears it down.
func NewWriter(store BatchStore, opts WriterOptions, log zerolog.Logger) *Writer {
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushDelay < 0 {
		opts.FlushDelay = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = defaultRetries
	}
	return &Writer{
		store:         store,
		log:           log,
		batchSize:     opts.BatchSize,
		flushDelay:    opts.FlushDelay,
		retryDelay:    opts.RetryDelay,
		retryAttempts: opts.RetryAttempts,
		buffer:        make([]Record, 0, opts.BatchSize),
	}
}

// Add buffers one record; reaching the batch size flushes synchronously,
// so the buffer never grows past it.
func (w *Writer) Add(ctx context.Context, rec Record) error {
	w.mu.Lock()
	w.buffer = append(w.buffer, rec)
	n := len(w.buffer)
	w.mu.Unlock()

	metrics.IngestRecordsTotal.Inc()

	if n >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush drains the buffer into a local batch and lands it behind the
// flush mutex. An empty buffer is a no-op.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.buffer
	w.buffer = make([]Record, 0, w.batchSize)
	w.mu.Unlock()

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.flushBatch(ctx, batch)
}

// Close flushes what remains, waits out any in-flight flush, closes the
// store, and reports the accumulated insert/update counters.
func (w *Writer) Close(ctx context.Context) (storage.UpsertStats, error) {
	flushErr := w.Flush(ctx)

	w.flushMu.Lock()
	stats := w.stats
	w.flushMu.Unlock()

	w.store.Close()
	return stats, flushErr
}

func (w *Writer) flushBatch(ctx context.Context, batch []Record) error {
	batch = dedupeByABN(batch)
	businesses := make([]types.Business, 0, len(batch))
	var names []storage.NameRow
	for _, rec := range batch {
		businesses = append(businesses, rec.Business)
		names = append(names, rec.Names...)
	}

	var stats storage.UpsertStats
	attempt := 0
	op := func() error {
		attempt++
		s, err := w.store.IngestBatch(ctx, businesses, names)
		if err != nil {
			if isTransient(err) {
				metrics.IngestBatchRetriesTotal.Inc()
				w.log.Warn().
					Err(err).
					Int("attempt", attempt).
					Int("rows", len(businesses)).
					Msg("transient failure landing batch")
				return err
			}
			return backoff.Permanent(err)
		}
		stats = s
		return nil
	}

	bo := backoff.WithContext(newFlushBackoff(w.retryDelay, w.retryAttempts), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("failed to flush batch of %d: %w", len(batch), err)
	}

	w.stats.Add(stats)
	w.batches++
	metrics.IngestBatchesTotal.Inc()
	w.log.Debug().
		Int("rows", len(businesses)).
		Int("names", len(names)).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Msg("batch landed")

	if w.flushDelay > 0 {
		select {
		case <-time.After(w.flushDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dedupeByABN collapses repeated ABNs within one batch to their last
// occurrence. Source files can carry the same ABN more than once;
// last-wins keeps document order, and a single multi-row ON CONFLICT
// upsert must not touch the same row twice.
func dedupeByABN(batch []Record) []Record {
	seen := make(map[string]int, len(batch))
	out := make([]Record, 0, len(batch))
	for _, rec := range batch {
		if i, ok := seen[rec.Business.ABN]; ok {
			out[i] = rec
			continue
		}
		seen[rec.Business.ABN] = len(out)
		out = append(out, rec)
	}
	return out
}
