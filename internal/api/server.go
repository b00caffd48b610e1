// Package api is the per-worker HTTP front end: routing, middleware,
// query-parameter normalization, response envelopes, and the terminal
// error mapper. All domain work is delegated to the repository, the
// search selector, and the ingestion pipeline.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vantagesearch/vantage/internal/ingest"
	"github.com/vantagesearch/vantage/internal/logging"
	"github.com/vantagesearch/vantage/internal/metrics"
	"github.com/vantagesearch/vantage/internal/search"
	"github.com/vantagesearch/vantage/internal/storage"
)

// IngestStarter launches an ingestion run for the given extract file.
// cmd/vantage binds this to ingest.Start with the process configuration
// baked in; tests substitute stubs.
type IngestStarter func(ctx context.Context, filePath string) (*ingest.Run, error)

// Config holds the HTTP-surface tunables.
type Config struct {
	// CORSOrigins lists the allowed origins for browser callers.
	CORSOrigins []string
}

// Server is one worker's HTTP front end.
type Server struct {
	repo        storage.Repository
	selector    *search.Selector
	startIngest IngestStarter
	log         zerolog.Logger

	httpServer *http.Server
	started    time.Time
}

// New wires a Server over its collaborators.
func New(repo storage.Repository, startIngest IngestStarter, cfg Config) *Server {
	s := &Server{
		repo:        repo,
		selector:    search.NewSelector(repo),
		startIngest: startIngest,
		log:         logging.WithComponent("api"),
		started:     time.Now(),
	}

	r := chi.NewRouter()
	r.Use(s.timed)
	r.Use(chimw.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))
	r.Use(s.recovered)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/businesses/search", s.handleSearch)
		r.Get("/businesses/{abn}", s.handleFindByABN)
		r.Post("/ingest", s.handleIngest)
	})
	r.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the server on l until Shutdown. The listener is provided
// by the caller because the cluster layer opens it with SO_REUSEPORT.
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires. The repository pool is closed by the caller after
// the drain completes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
