// Package config loads and validates vantage configuration from a YAML
// file and VANTAGE_-prefixed environment variables, with documented
// defaults for everything except the database URL.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for the tunables. These match the values the ingestion and
// search planes were sized for; overriding them is supported but the
// validation ranges below still apply.
const (
	DefaultPort              = 3000
	DefaultBatchSize         = 5000
	DefaultRetryAttempts     = 3
	DefaultRetryDelayMs      = 1000
	DefaultFlushDelayMs      = 200
	DefaultPoolIdleTimeoutMs = 240000
	DefaultMaxCandidates     = 5000
	DefaultPoolMax           = 10
)

// Config is the full runtime configuration.
type Config struct {
	Host     string
	Port     int
	Cluster  ClusterConfig
	Database DatabaseConfig
	ETL      ETLConfig
	Search   SearchConfig
	Log      LogConfig
	CORS     CORSConfig
}

// ClusterConfig controls the serving-plane process topology.
type ClusterConfig struct {
	// Workers is the worker process count; 0 means one per CPU.
	Workers int
}

// WorkerCount resolves the configured worker count, expanding 0 to the
// CPU count.
func (c ClusterConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	URL     string
	SSL     bool
	PoolMin int
	PoolMax int
}

// ConnString returns the pgx connection string, folding the SSL flag in
// when the URL does not already pin an sslmode. SSL uses sslmode=require,
// which encrypts without verifying the server certificate.
func (d DatabaseConfig) ConnString() string {
	if strings.Contains(d.URL, "sslmode=") {
		return d.URL
	}
	mode := "disable"
	if d.SSL {
		mode = "require"
	}
	sep := "?"
	if strings.Contains(d.URL, "?") {
		sep = "&"
	}
	return d.URL + sep + "sslmode=" + mode
}

// ETLConfig tunes the ingestion pipeline.
type ETLConfig struct {
	BatchSize         int
	RetryAttempts     int
	RetryDelayMs      int
	FlushDelayMs      int
	PoolIdleTimeoutMs int
}

// SearchConfig tunes the search plane.
type SearchConfig struct {
	// MaxCandidates caps the candidate set used to report pagination
	// totals. Reported totals saturate here.
	MaxCandidates int
	// ShortQueryMaxLength is the term length at or below which the
	// optimized path degrades to a prefix-only query.
	ShortQueryMaxLength int
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string
	JSON  bool
}

// CORSConfig lists the allowed origins for browser callers.
type CORSConfig struct {
	Origins []string
}

// Load reads configuration from the given file (optional; empty path
// means defaults + environment only) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("cluster.workers", 0)
	v.SetDefault("database.url", "")
	v.SetDefault("database.ssl", false)
	v.SetDefault("database.pool.min", 0)
	v.SetDefault("database.pool.max", DefaultPoolMax)
	v.SetDefault("etl.batchSize", DefaultBatchSize)
	v.SetDefault("etl.retryAttempts", DefaultRetryAttempts)
	v.SetDefault("etl.retryDelayMs", DefaultRetryDelayMs)
	v.SetDefault("etl.flushDelayMs", DefaultFlushDelayMs)
	v.SetDefault("etl.poolIdleTimeoutMs", DefaultPoolIdleTimeoutMs)
	v.SetDefault("search.maxCandidates", DefaultMaxCandidates)
	v.SetDefault("search.shortQueryMaxLength", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("cors.origins", []string{"*"})

	v.SetEnvPrefix("VANTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Host: v.GetString("host"),
		Port: v.GetInt("port"),
		Cluster: ClusterConfig{
			Workers: v.GetInt("cluster.workers"),
		},
		Database: DatabaseConfig{
			URL:     v.GetString("database.url"),
			SSL:     v.GetBool("database.ssl"),
			PoolMin: v.GetInt("database.pool.min"),
			PoolMax: v.GetInt("database.pool.max"),
		},
		ETL: ETLConfig{
			BatchSize:         v.GetInt("etl.batchSize"),
			RetryAttempts:     v.GetInt("etl.retryAttempts"),
			RetryDelayMs:      v.GetInt("etl.retryDelayMs"),
			FlushDelayMs:      v.GetInt("etl.flushDelayMs"),
			PoolIdleTimeoutMs: v.GetInt("etl.poolIdleTimeoutMs"),
		},
		Search: SearchConfig{
			MaxCandidates:       v.GetInt("search.maxCandidates"),
			ShortQueryMaxLength: v.GetInt("search.shortQueryMaxLength"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		CORS: CORSConfig{
			Origins: v.GetStringSlice("cors.origins"),
		},
	}

	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(issues, "\n  "))
	}
	return cfg, nil
}

// Validate checks every field against its documented range and returns
// one issue string per violation.
func (c *Config) Validate() []string {
	var issues []string

	if c.Port < 1 || c.Port > 65535 {
		issues = append(issues, fmt.Sprintf("port: %d is out of range (1-65535)", c.Port))
	}
	if c.Cluster.Workers < 0 {
		issues = append(issues, fmt.Sprintf("cluster.workers: %d is invalid (0 means one per CPU)", c.Cluster.Workers))
	}
	if c.Database.URL == "" {
		issues = append(issues, "database.url: required")
	}
	if c.Database.PoolMin < 0 {
		issues = append(issues, fmt.Sprintf("database.pool.min: %d is invalid", c.Database.PoolMin))
	}
	if c.Database.PoolMax < 1 {
		issues = append(issues, fmt.Sprintf("database.pool.max: %d is invalid (must be at least 1)", c.Database.PoolMax))
	}
	if c.Database.PoolMax >= 1 && c.Database.PoolMin > c.Database.PoolMax {
		issues = append(issues, fmt.Sprintf("database.pool: min %d exceeds max %d", c.Database.PoolMin, c.Database.PoolMax))
	}
	if c.ETL.BatchSize < 1 {
		issues = append(issues, fmt.Sprintf("etl.batchSize: %d is invalid (must be at least 1)", c.ETL.BatchSize))
	}
	if c.ETL.RetryAttempts < 1 {
		issues = append(issues, fmt.Sprintf("etl.retryAttempts: %d is invalid (must be at least 1)", c.ETL.RetryAttempts))
	}
	if c.ETL.RetryDelayMs < 0 {
		issues = append(issues, fmt.Sprintf("etl.retryDelayMs: %d is invalid", c.ETL.RetryDelayMs))
	}
	if c.ETL.FlushDelayMs < 0 {
		issues = append(issues, fmt.Sprintf("etl.flushDelayMs: %d is invalid", c.ETL.FlushDelayMs))
	}
	if c.ETL.PoolIdleTimeoutMs < 0 {
		issues = append(issues, fmt.Sprintf("etl.poolIdleTimeoutMs: %d is invalid", c.ETL.PoolIdleTimeoutMs))
	}
	if c.Search.MaxCandidates < 100 || c.Search.MaxCandidates > 50000 {
		issues = append(issues, fmt.Sprintf("search.maxCandidates: %d is out of range (100-50000)", c.Search.MaxCandidates))
	}
	if c.Search.ShortQueryMaxLength < 0 {
		issues = append(issues, fmt.Sprintf("search.shortQueryMaxLength: %d is invalid", c.Search.ShortQueryMaxLength))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level: %q is invalid (valid values: debug, info, warn, error)", c.Log.Level))
	}

	return issues
}
