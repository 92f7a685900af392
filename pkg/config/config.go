// Package config provides the unified configuration system for Zenith.
// It defines a single BaseConfig structure that the trainer, the workflows,
// and all connectors use, ensuring consistent configuration across the tool.
//
// The configuration is organized into logical sections:
//   - GCP: project, dataset, location, bucket, credentials
//   - Source: the query or file the pipeline reads from
//   - Sink: where and how exported CSV shards are written
//   - Performance: batch sizes, workers, concurrency
//   - Timeouts: connection and operation timeouts
//   - Reliability: retry logic, circuit breakers, rate limiting
//   - Observability: metrics, tracing, logging
//
// Example usage:
//
//	cfg := config.NewBaseConfig("taxi-export", "pipeline")
//	cfg.GCP.ProjectID = "my-project"
//	cfg.Performance.BatchSize = 5000
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"regexp"
	"runtime"
	"time"
)

// BaseConfig is the single unified configuration structure used across
// Zenith. Workflows and connectors read the sections relevant to them.
type BaseConfig struct {
	// Name identifies the job or connector instance
	Name string `yaml:"name" json:"name"`
	// Type specifies what the config drives (e.g., "bigquery", "gcs", "pipeline")
	Type string `yaml:"type" json:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// GCP holds Google Cloud project and credential settings
	GCP GCPConfig `yaml:"gcp" json:"gcp"`

	// Source describes what the pipeline reads
	Source SourceConfig `yaml:"source" json:"source"`

	// Sink describes where exported data is written
	Sink SinkConfig `yaml:"sink" json:"sink"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// GCPConfig contains Google Cloud settings shared by the trainer,
// the BigQuery source, and the GCS sink.
type GCPConfig struct {
	// ProjectID is the billing/query project
	ProjectID string `yaml:"project_id" json:"project_id"`
	// Dataset is the default BigQuery dataset for models and tables
	Dataset string `yaml:"dataset" json:"dataset"`
	// Location is the BigQuery/GCS location (e.g., "US")
	Location string `yaml:"location" json:"location"`
	// Bucket is the default Cloud Storage bucket for exports
	Bucket string `yaml:"bucket" json:"bucket"`
	// CredentialsFile points at a service-account key; ADC when empty
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// SourceConfig describes the input of an export pipeline.
type SourceConfig struct {
	// SQL is the query a BigQuery source runs
	SQL string `yaml:"sql" json:"sql"`
	// Priority is the BigQuery job priority ("interactive" or "batch")
	Priority string `yaml:"priority" json:"priority"`
	// MaxRows caps the number of rows read (0 = unlimited)
	MaxRows int64 `yaml:"max_rows" json:"max_rows"`
	// Path is the input file for file-based sources
	Path string `yaml:"path" json:"path"`
	// HasHeader indicates the first row of a CSV file is a header
	HasHeader bool `yaml:"has_header" json:"has_header"`
	// Delimiter is the field separator for CSV files
	Delimiter string `yaml:"delimiter" json:"delimiter"`
}

// SinkConfig describes the output of an export pipeline.
type SinkConfig struct {
	// Bucket overrides GCP.Bucket for a GCS sink
	Bucket string `yaml:"bucket" json:"bucket"`
	// Prefix is the object or file name prefix (e.g., "taxifare/ch4")
	Prefix string `yaml:"prefix" json:"prefix"`
	// LocalDir is the output directory for the local CSV sink
	LocalDir string `yaml:"local_dir" json:"local_dir"`
	// Shards is the number of output files per split
	Shards int `yaml:"shards" json:"shards"`
	// Compression selects output compression ("none", "gzip", "snappy")
	Compression string `yaml:"compression" json:"compression"`
	// Delimiter is the CSV field separator
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// WriteHeader controls whether shards start with a header row
	WriteHeader bool `yaml:"write_header" json:"write_header"`
	// DefaultSplit names shards for records that carry no split tag
	DefaultSplit string `yaml:"default_split" json:"default_split"`
	// Columns fixes the column order of the output
	Columns []string `yaml:"columns" json:"columns"`
}

// PerformanceConfig contains all performance-related settings.
type PerformanceConfig struct {
	// BatchSize controls the number of records processed together
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sets the size of internal channels
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// Workers defines the number of concurrent transform workers
	Workers int `yaml:"workers" json:"workers"`
	// MaxConcurrency limits concurrent uploads/operations
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	// FlushInterval triggers periodic batch flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual operations
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing clients
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Job timeout for long-running BigQuery / ML Engine jobs
	Job time.Duration `yaml:"job" json:"job"`
	// PollInterval between job status checks
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed operations
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables circuit breaker protection
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec limits operations per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// HealthCheck enables periodic health checks
	HealthCheck bool `yaml:"health_check" json:"health_check"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates OpenTelemetry tracing
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsInterval sets how often metrics are collected
	MetricsInterval time.Duration `yaml:"metrics_interval" json:"metrics_interval"`
}

// identifierPattern matches valid BigQuery dataset/table/model identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewBaseConfig creates a new BaseConfig with sensible defaults.
// Specific workflows can override the defaults as needed.
func NewBaseConfig(name, configType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    configType,
		Version: "1.0.0",
		GCP: GCPConfig{
			Location: "US",
		},
		Source: SourceConfig{
			Priority:  "interactive",
			Delimiter: ",",
		},
		Sink: SinkConfig{
			Shards:      1,
			Compression: "none",
			Delimiter:   ",",
			WriteHeader: true,
		},
		Performance: PerformanceConfig{
			BatchSize:      1000,
			BufferSize:     10000,
			Workers:        runtime.NumCPU(),
			MaxConcurrency: 10,
			FlushInterval:  10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Request:      30 * time.Second,
			Connection:   10 * time.Second,
			Job:          30 * time.Minute,
			PollInterval: 5 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   60 * time.Second,
			CircuitBreaker:  true,
			RateLimitPerSec: 0,
			HealthCheck:     true,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:   true,
			EnableTracing:   false,
			LogLevel:        "info",
			MetricsInterval: 30 * time.Second,
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if bc.Performance.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if bc.Performance.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if bc.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if bc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	if bc.Sink.Shards < 0 {
		return fmt.Errorf("shards cannot be negative")
	}
	if bc.GCP.Dataset != "" && !identifierPattern.MatchString(bc.GCP.Dataset) {
		return fmt.Errorf("dataset %q is not a valid BigQuery identifier", bc.GCP.Dataset)
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}

// IsValidIdentifier reports whether s is usable as a BigQuery
// dataset, table, or model name.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
