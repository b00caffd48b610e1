package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesearch/vantage/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vantage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://localhost:5432/abr\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 0, cfg.Cluster.Workers)
	assert.Equal(t, 5000, cfg.ETL.BatchSize)
	assert.Equal(t, 3, cfg.ETL.RetryAttempts)
	assert.Equal(t, 1000, cfg.ETL.RetryDelayMs)
	assert.Equal(t, 200, cfg.ETL.FlushDelayMs)
	assert.Equal(t, 240000, cfg.ETL.PoolIdleTimeoutMs)
	assert.Equal(t, 5000, cfg.Search.MaxCandidates)
	assert.Equal(t, 10, cfg.Database.PoolMax)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 8080
cluster:
  workers: 4
database:
  url: postgres://db:5432/abr
  pool:
    min: 2
    max: 20
etl:
  batchSize: 1000
  flushDelayMs: 0
search:
  maxCandidates: 10000
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.Cluster.Workers)
	assert.Equal(t, 2, cfg.Database.PoolMin)
	assert.Equal(t, 20, cfg.Database.PoolMax)
	assert.Equal(t, 1000, cfg.ETL.BatchSize)
	assert.Equal(t, 0, cfg.ETL.FlushDelayMs)
	assert.Equal(t, 10000, cfg.Search.MaxCandidates)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing database url",
			yaml: "port: 3000\n",
			want: "database.url: required",
		},
		{
			name: "port out of range",
			yaml: "port: 70000\ndatabase:\n  url: postgres://x/abr\n",
			want: "port: 70000 is out of range",
		},
		{
			name: "cap below floor",
			yaml: "database:\n  url: postgres://x/abr\nsearch:\n  maxCandidates: 50\n",
			want: "search.maxCandidates: 50 is out of range",
		},
		{
			name: "cap above ceiling",
			yaml: "database:\n  url: postgres://x/abr\nsearch:\n  maxCandidates: 100000\n",
			want: "search.maxCandidates: 100000 is out of range",
		},
		{
			name: "zero batch size",
			yaml: "database:\n  url: postgres://x/abr\netl:\n  batchSize: 0\n",
			want: "etl.batchSize: 0 is invalid",
		},
		{
			name: "pool min exceeds max",
			yaml: "database:\n  url: postgres://x/abr\n  pool:\n    min: 20\n    max: 5\n",
			want: "database.pool: min 20 exceeds max 5",
		},
		{
			name: "bad log level",
			yaml: "database:\n  url: postgres://x/abr\nlog:\n  level: loud\n",
			want: `log.level: "loud" is invalid`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		db   config.DatabaseConfig
		want string
	}{
		{
			name: "ssl disabled",
			db:   config.DatabaseConfig{URL: "postgres://db:5432/abr"},
			want: "postgres://db:5432/abr?sslmode=disable",
		},
		{
			name: "ssl enabled",
			db:   config.DatabaseConfig{URL: "postgres://db:5432/abr", SSL: true},
			want: "postgres://db:5432/abr?sslmode=require",
		},
		{
			name: "existing query string",
			db:   config.DatabaseConfig{URL: "postgres://db:5432/abr?application_name=vantage", SSL: true},
			want: "postgres://db:5432/abr?application_name=vantage&sslmode=require",
		},
		{
			name: "explicit sslmode wins",
			db:   config.DatabaseConfig{URL: "postgres://db:5432/abr?sslmode=verify-full", SSL: false},
			want: "postgres://db:5432/abr?sslmode=verify-full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.db.ConnString())
		})
	}
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 4, config.ClusterConfig{Workers: 4}.WorkerCount())
	assert.Positive(t, config.ClusterConfig{Workers: 0}.WorkerCount())
}
