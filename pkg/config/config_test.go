package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseConfigDefaults(t *testing.T) {
	cfg := NewBaseConfig("taxi-export", "pipeline")

	assert.Equal(t, "taxi-export", cfg.Name)
	assert.Equal(t, "pipeline", cfg.Type)
	assert.Equal(t, "US", cfg.GCP.Location)
	assert.Equal(t, 1000, cfg.Performance.BatchSize)
	assert.Equal(t, 1, cfg.Sink.Shards)
	assert.True(t, cfg.Sink.WriteHeader)
	assert.True(t, cfg.Reliability.CircuitBreaker)
	assert.NoError(t, cfg.Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BaseConfig)
	}{
		{"empty name", func(c *BaseConfig) { c.Name = "" }},
		{"empty type", func(c *BaseConfig) { c.Type = "" }},
		{"zero batch size", func(c *BaseConfig) { c.Performance.BatchSize = 0 }},
		{"negative retries", func(c *BaseConfig) { c.Reliability.RetryAttempts = -1 }},
		{"negative shards", func(c *BaseConfig) { c.Sink.Shards = -1 }},
		{"bad dataset identifier", func(c *BaseConfig) { c.GCP.Dataset = "demo;drop" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBaseConfig("test", "pipeline")
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, IsValidIdentifier("babyweight_model"))
	assert.True(t, IsValidIdentifier("_private"))
	assert.False(t, IsValidIdentifier(""))
	assert.False(t, IsValidIdentifier("1model"))
	assert.False(t, IsValidIdentifier("demo.model"))
	assert.False(t, IsValidIdentifier("x; DROP TABLE y"))
	assert.False(t, IsValidIdentifier("model`"))
}

func TestLoadYAML(t *testing.T) {
	content := `
name: babyweight-train
type: training
gcp:
  project_id: my-project
  dataset: demo
  location: US
  bucket: my-bucket
source:
  priority: batch
  max_rows: 1000
sink:
  prefix: babyweight/export
  shards: 4
  compression: gzip
performance:
  batch_size: 5000
  workers: 8
timeouts:
  job: 45m
  poll_interval: 10s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "babyweight-train", cfg.Name)
	assert.Equal(t, "my-project", cfg.GCP.ProjectID)
	assert.Equal(t, "demo", cfg.GCP.Dataset)
	assert.Equal(t, "batch", cfg.Source.Priority)
	assert.Equal(t, int64(1000), cfg.Source.MaxRows)
	assert.Equal(t, 4, cfg.Sink.Shards)
	assert.Equal(t, "gzip", cfg.Sink.Compression)
	assert.Equal(t, 5000, cfg.Performance.BatchSize)
	assert.Equal(t, 8, cfg.Performance.Workers)
	assert.Equal(t, 45*time.Minute, cfg.Timeouts.Job)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.PollInterval)

	// Defaults survive for keys the file omits
	assert.Equal(t, 10000, cfg.Performance.BufferSize)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_ZENITH_PROJECT", "env-project")

	content := `
name: env-test
type: pipeline
gcp:
  project_id: ${TEST_ZENITH_PROJECT}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.GCP.ProjectID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := NewBaseConfig("roundtrip", "pipeline")
	cfg.GCP.ProjectID = "my-project"
	cfg.GCP.Dataset = "demo"
	cfg.Sink.Columns = []string{"fare_amount", "passengers"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.GCP.ProjectID, loaded.GCP.ProjectID)
	assert.Equal(t, cfg.Sink.Columns, loaded.Sink.Columns)
}
