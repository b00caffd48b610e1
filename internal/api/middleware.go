package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vantagesearch/vantage/internal/metrics"
)

type contextKey int

const startTimeKey contextKey = iota

// timed is the outermost middleware: it stamps the request's arrival
// time into the context so handlers can report totalTimeMs, and logs
// method, path, status and duration once the response is written.
func (s *Server) timed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), startTimeKey, start)))

		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

// recovered converts handler panics into the standard 500 envelope
// instead of a dropped connection.
func (s *Server) recovered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: internalErrorMessage})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestElapsedMs reads the arrival stamp planted by timed. Requests
// that bypass the middleware (direct handler tests) report zero.
func requestElapsedMs(r *http.Request) int64 {
	start, ok := r.Context().Value(startTimeKey).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}
