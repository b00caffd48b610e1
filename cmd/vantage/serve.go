package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagesearch/vantage/internal/api"
	"github.com/vantagesearch/vantage/internal/cluster"
	"github.com/vantagesearch/vantage/internal/config"
	"github.com/vantagesearch/vantage/internal/ingest"
	"github.com/vantagesearch/vantage/internal/logging"
	"github.com/vantagesearch/vantage/internal/storage/postgres"
)

// shutdownGrace bounds the in-flight request drain on SIGTERM.
const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP search API",
	Long: "Runs the search API as a primary process that forks one worker per CPU\n" +
		"(cluster.workers overrides the count). Every worker binds the same address\n" +
		"and holds its own database pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		workers := cfg.Cluster.WorkerCount()
		if cluster.IsWorker() || workers <= 1 {
			return serveWorker(ctx, cfg)
		}
		return cluster.Supervise(ctx, workers, logging.WithComponent("cluster"))
	},
}

// serveWorker runs one serving process end to end: pool, listener,
// request loop, drain on shutdown.
func serveWorker(ctx context.Context, cfg *config.Config) error {
	log := logging.WithComponent("serve")

	store, err := postgres.New(ctx, postgres.Config{
		ConnString:          cfg.Database.ConnString(),
		PoolMin:             int32(cfg.Database.PoolMin),
		PoolMax:             int32(cfg.Database.PoolMax),
		MaxCandidates:       cfg.Search.MaxCandidates,
		ShortQueryMaxLength: cfg.Search.ShortQueryMaxLength,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.New(store, ingestStarter(cfg), api.Config{
		CORSOrigins: cfg.CORS.Origins,
	})

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	listener, err := cluster.Listen(ctx, addr)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	if worker := cluster.WorkerIndex(); worker >= 0 {
		log.Info().Str("addr", addr).Int("worker", worker).Msg("listening")
	} else {
		log.Info().Str("addr", addr).Msg("listening")
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("draining in-flight requests")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("failed to drain requests: %w", err)
	}
	return nil
}

// ingestStarter binds the process configuration into the HTTP ingest
// endpoint's pipeline launcher. Each run opens its own pool; the
// serving store is never involved.
func ingestStarter(cfg *config.Config) api.IngestStarter {
	return func(ctx context.Context, filePath string) (*ingest.Run, error) {
		return ingest.Start(ctx, ingestOptions(cfg, filePath))
	}
}

func ingestOptions(cfg *config.Config, filePath string) ingest.Options {
	return ingest.Options{
		FilePath:        filePath,
		ConnString:      cfg.Database.ConnString(),
		PoolIdleTimeout: time.Duration(cfg.ETL.PoolIdleTimeoutMs) * time.Millisecond,
		Writer: ingest.WriterOptions{
			BatchSize:     cfg.ETL.BatchSize,
			FlushDelay:    time.Duration(cfg.ETL.FlushDelayMs) * time.Millisecond,
			RetryDelay:    time.Duration(cfg.ETL.RetryDelayMs) * time.Millisecond,
			RetryAttempts: cfg.ETL.RetryAttempts,
		},
	}
}
