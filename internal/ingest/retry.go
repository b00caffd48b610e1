package ingest

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// adminShutdownCode is PostgreSQL's admin_shutdown error, seen when a
// managed store restarts or fails over mid-run.
const adminShutdownCode = "57P01"

// isTransient reports whether err is a connection-level failure worth
// retrying. Everything else (constraint violations, bad SQL, context
// cancellation) surfaces immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	// A canceled or expired context is the caller giving up, not the
	// store flaking.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET,
		syscall.EPIPE,
		syscall.ETIMEDOUT,
		syscall.ECONNREFUSED,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == adminShutdownCode {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection terminated",
		"connection closed",
		"connection reset",
		"timeout acquiring a connection",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// newFlushBackoff builds the retry schedule for one batch: attempts
// total tries with delays of baseDelay x 2^(n-1) between them, no
// jitter. BackOff implementations are stateful; always return a fresh
// instance.
func newFlushBackoff(baseDelay time.Duration, attempts int) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	shift := uint(attempts)
	if shift > 16 {
		shift = 16
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = baseDelay << shift
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, uint64(attempts-1))
}
