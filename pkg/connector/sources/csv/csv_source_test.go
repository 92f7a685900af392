package csv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/pool"
	"github.com/zenithml/zenith/pkg/testutil"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sourceConfig(path string, hasHeader bool) *config.BaseConfig {
	cfg := config.NewBaseConfig("test-source", "source")
	cfg.Source.Path = path
	cfg.Source.HasHeader = hasHeader
	cfg.Reliability.HealthCheck = false
	return cfg
}

func drain(t *testing.T, s *CSVSource) []*pool.Record {
	t.Helper()
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	stream, err := s.Read(ctx)
	require.NoError(t, err)

	var records []*pool.Record
	for record := range stream.Records {
		records = append(records, record)
	}
	for err := range stream.Errors {
		require.NoError(t, err)
	}
	return records
}

func TestCSVSourceWithHeader(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	path := writeTestFile(t, "fare_amount,passengers\n8.5,1\n12.0,2\n")
	cfg := sourceConfig(path, true)

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, cfg))
	defer s.Close(ctx)

	records := drain(t, s)
	require.Len(t, records, 2)

	v, ok := records[0].GetData("fare_amount")
	require.True(t, ok)
	assert.Equal(t, "8.5", v)

	v, ok = records[1].GetData("passengers")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	for _, r := range records {
		r.Release()
	}
}

func TestCSVSourceWithoutHeader(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	path := writeTestFile(t, "8.5,1\n12.0,2\n")
	cfg := sourceConfig(path, false)

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, cfg))
	defer s.Close(ctx)

	records := drain(t, s)
	require.Len(t, records, 2)

	v, ok := records[0].GetData("col_0")
	require.True(t, ok)
	assert.Equal(t, "8.5", v)

	for _, r := range records {
		r.Release()
	}
}

func TestCSVSourceMaxRows(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	path := writeTestFile(t, "a\n1\n2\n3\n4\n5\n")
	cfg := sourceConfig(path, true)
	cfg.Source.MaxRows = 2

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, cfg))
	defer s.Close(ctx)

	records := drain(t, s)
	assert.Len(t, records, 2)
	for _, r := range records {
		r.Release()
	}
}

func TestCSVSourceDiscover(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	path := writeTestFile(t, "fare_amount,passengers\n8.5,1\n")
	cfg := sourceConfig(path, true)

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, cfg))
	defer s.Close(ctx)

	schema, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, "fare_amount", schema.Fields[0].Name)
	assert.Equal(t, "passengers", schema.Fields[1].Name)
}

func TestCSVSourceMissingFile(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	cfg := sourceConfig(filepath.Join(t.TempDir(), "nope.csv"), true)

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	assert.Error(t, s.Initialize(ctx, cfg))
}

func TestCSVSourceRaggedRowFails(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	path := writeTestFile(t, "a,b\n1,2\n3\n")
	cfg := sourceConfig(path, true)

	s, err := NewCSVSource(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, cfg))
	defer s.Close(ctx)

	stream, err := s.Read(ctx)
	require.NoError(t, err)

	var records []*pool.Record
	var streamErr error
	for record := range stream.Records {
		records = append(records, record)
	}
	for err := range stream.Errors {
		if err != nil {
			streamErr = err
		}
	}

	assert.Len(t, records, 1)
	assert.Error(t, streamErr)
	for _, r := range records {
		r.Release()
	}
}
