package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vantagesearch/vantage/internal/logging"
	"github.com/vantagesearch/vantage/internal/storage/postgres"
)

// Pool bounds for the run-private store. Ingestion never shares the
// serving pool; a handful of connections is enough for the serialized
// batch writer.
const (
	runPoolMin = 1
	runPoolMax = 4
)

// Event is one message from a running ingestion. Exactly one Done or
// Failed event terminates the stream; the channel closes after it.
type Event interface{ isEvent() }

// Progress reports the running record count, emitted every ten thousand
// parsed records.
type Progress struct {
	Processed int
}

// Done carries the final tallies of a completed run.
type Done struct {
	TotalProcessed int           `json:"totalProcessed"`
	TotalInserted  int           `json:"totalInserted"`
	TotalUpdated   int           `json:"totalUpdated"`
	Duration       time.Duration `json:"-"`
	DurationMs     int64         `json:"durationMs"`
}

// Failed reports a run that died. The message is the full error text.
type Failed struct {
	Message string
}

func (Progress) isEvent() {}
func (Done) isEvent()     {}
func (Failed) isEvent()   {}

// Options configures one ingestion run.
type Options struct {
	// FilePath is the register extract to ingest.
	FilePath string
	// ConnString is the database the run-private pool connects to.
	ConnString string
	// PoolIdleTimeout applies to the run-private pool.
	PoolIdleTimeout time.Duration
	// Writer tunes batching, retries and pacing.
	Writer WriterOptions
}

// Run is one in-flight ingestion. The pipeline goroutine owns its own
// store pool and never touches serving-plane state; callers observe it
// only through Events.
type Run struct {
	// ID tags every log line of this run and is returned to the caller
	// that triggered it.
	ID     string
	Events <-chan Event
}

// Start opens the extract file and launches the pipeline goroutine.
// Errors opening the file surface immediately; everything after that is
// reported through the event stream.
func Start(ctx context.Context, opts Options) (*Run, error) {
	f, err := os.Open(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract: %w", err)
	}

	id := uuid.NewString()
	events := make(chan Event, 16)
	run := &Run{ID: id, Events: events}

	go func() {
		defer close(events)
		defer func() { _ = f.Close() }()

		done, err := execute(ctx, f, opts, id, events)
		if err != nil {
			events <- Failed{Message: err.Error()}
			return
		}
		events <- done
	}()

	return run, nil
}

// Wait consumes the event stream until it terminates, discarding
// progress. It is the synchronous form used by the HTTP ingest handler
// and the seed command when no progress display is wanted.
func (r *Run) Wait() (Done, error) {
	return r.Drain(nil)
}

// Drain consumes the event stream until it terminates, passing each
// progress count to onProgress when non-nil.
func (r *Run) Drain(onProgress func(int)) (Done, error) {
	for ev := range r.Events {
		switch e := ev.(type) {
		case Progress:
			if onProgress != nil {
				onProgress(e.Processed)
			}
		case Done:
			return e, nil
		case Failed:
			return Done{}, fmt.Errorf("ingestion failed: %s", e.Message)
		}
	}
	return Done{}, fmt.Errorf("ingestion ended without a result")
}

// execute runs parse-normalize-write end to end against a run-private
// store.
func execute(ctx context.Context, f *os.File, opts Options, runID string, events chan<- Event) (Done, error) {
	log := logging.WithRunID(runID)
	start := time.Now()

	store, err := postgres.New(ctx, postgres.Config{
		ConnString:      opts.ConnString,
		PoolMin:         runPoolMin,
		PoolMax:         runPoolMax,
		PoolIdleTimeout: opts.PoolIdleTimeout,
	})
	if err != nil {
		return Done{}, fmt.Errorf("failed to open ingestion store: %w", err)
	}

	// The writer owns the store from here; Close tears it down even on
	// the error paths below.
	writer := NewWriter(store, opts.Writer, log)

	log.Info().Str("file", f.Name()).Msg("ingestion started")

	processed, parseErr := Parse(ctx, f, writer, func(n int) {
		log.Debug().Int("processed", n).Msg("ingestion progress")
		events <- Progress{Processed: n}
	})

	stats, closeErr := writer.Close(ctx)
	if parseErr != nil {
		return Done{}, parseErr
	}
	if closeErr != nil {
		return Done{}, closeErr
	}

	elapsed := time.Since(start)
	log.Info().
		Int("processed", processed).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Dur("elapsed", elapsed).
		Msg("ingestion finished")

	return Done{
		TotalProcessed: processed,
		TotalInserted:  stats.Inserted,
		TotalUpdated:   stats.Updated,
		Duration:       elapsed,
		DurationMs:     elapsed.Milliseconds(),
	}, nil
}
