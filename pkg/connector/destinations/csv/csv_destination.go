// Package csv implements a local filesystem destination that writes
// records as sharded CSV files. It is the offline twin of the Cloud
// Storage destination, useful for development runs and tests.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/zenithml/zenith/pkg/compression"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/base"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/dataset"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/metrics"
	"github.com/zenithml/zenith/pkg/models"
	"github.com/zenithml/zenith/pkg/pool"
)

type shardFile struct {
	path       string
	file       *os.File
	compressed io.WriteCloser
	csvWriter  *stdcsv.Writer
	records    int64
}

// CSVDestination writes records to sharded CSV files under a local
// directory.
type CSVDestination struct {
	*base.BaseConnector

	dir          string
	shards       int
	algorithm    compression.Algorithm
	delimiter    rune
	writeHeader  bool
	columns      []string
	defaultSplit string

	writers map[string][]*shardFile
	counter map[string]int64
	mu      sync.Mutex

	recordsWritten int64
}

// NewCSVDestination creates a local CSV destination from the sink
// configuration.
func NewCSVDestination(cfg *config.BaseConfig) (*CSVDestination, error) {
	if cfg.Sink.LocalDir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sink local_dir is required")
	}

	shards := cfg.Sink.Shards
	if shards <= 0 {
		shards = 1
	}

	algorithm, err := compression.ParseAlgorithm(cfg.Sink.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sink compression")
	}

	delimiter := ','
	if cfg.Sink.Delimiter != "" {
		delimiter = rune(cfg.Sink.Delimiter[0])
	}

	defaultSplit := cfg.Sink.DefaultSplit
	if defaultSplit == "" {
		defaultSplit = "data"
	}

	return &CSVDestination{
		BaseConnector: base.NewBaseConnector("csv", core.ConnectorTypeDestination, "1.0.0"),
		dir:           cfg.Sink.LocalDir,
		shards:        shards,
		algorithm:     algorithm,
		delimiter:     delimiter,
		writeHeader:   cfg.Sink.WriteHeader,
		columns:       cfg.Sink.Columns,
		defaultSplit:  defaultSplit,
		writers:       make(map[string][]*shardFile),
		counter:       make(map[string]int64),
	}, nil
}

// Initialize creates the output directory.
func (d *CSVDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			"failed to create output directory "+d.dir)
	}

	d.Logger().Info("csv destination initialized",
		zap.String("dir", d.dir),
		zap.Int("shards", d.shards))

	return nil
}

// CreateSchema is a no-op for local CSV output.
func (d *CSVDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	return nil
}

// Write consumes a record stream until it closes.
func (d *CSVDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}

	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return nil
			}
			if err := d.writeRecord(record); err != nil {
				return err
			}

		case err := <-stream.Errors:
			if err != nil {
				d.Logger().Error("stream error", zap.Error(err))
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WriteBatch consumes a batch stream until it closes.
func (d *CSVDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}

	for {
		select {
		case batch, ok := <-stream.Batches:
			if !ok {
				return nil
			}

			for _, record := range batch {
				if err := d.writeRecord(record); err != nil {
					pool.PutBatchSlice(batch)
					return err
				}
			}
			pool.PutBatchSlice(batch)

		case err := <-stream.Errors:
			if err != nil {
				d.Logger().Error("batch stream error", zap.Error(err))
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *CSVDestination) writeRecord(record *models.Record) error {
	defer record.Release()

	split := record.GetSplit()
	if split == "" {
		split = d.defaultSplit
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.columns == nil {
		return errors.New(errors.ErrorTypeConfig, "sink columns not configured")
	}

	sf, err := d.shardFor(split)
	if err != nil {
		return err
	}

	row, err := dataset.ToCSVRow(record, d.columns)
	if err != nil {
		return err
	}

	if err := sf.csvWriter.Write(row); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExport, "failed to write CSV row")
	}

	sf.records++
	d.counter[split]++
	d.recordsWritten++
	metrics.RecordsExported.WithLabelValues("csv", split, "success").Inc()

	return nil
}

// shardFor returns the next shard file for a split, opening it lazily.
// Caller must hold d.mu.
func (d *CSVDestination) shardFor(split string) (*shardFile, error) {
	fs, ok := d.writers[split]
	if !ok {
		fs = make([]*shardFile, d.shards)
		d.writers[split] = fs
	}

	shard := int(d.counter[split] % int64(d.shards))
	if fs[shard] != nil {
		return fs[shard], nil
	}

	path := filepath.Join(d.dir, fmt.Sprintf("%s-%05d-of-%05d.csv%s",
		split, shard, d.shards, d.algorithm.Extension()))

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExport, "failed to create shard file "+path)
	}

	compressed, err := compression.WrapWriter(file, d.algorithm)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeExport, "failed to create compressor")
	}

	csvWriter := stdcsv.NewWriter(compressed)
	csvWriter.Comma = d.delimiter

	sf := &shardFile{
		path:       path,
		file:       file,
		compressed: compressed,
		csvWriter:  csvWriter,
	}

	if d.writeHeader {
		if err := csvWriter.Write(d.columns); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExport, "failed to write CSV header")
		}
	}

	fs[shard] = sf
	d.Logger().Debug("opened shard", zap.String("path", path))

	return sf, nil
}

// Close flushes and closes every open shard file.
func (d *CSVDestination) Close(ctx context.Context) error {
	d.mu.Lock()

	var firstErr error

	// A run with zero records still emits shard 0 with the header
	if d.recordsWritten == 0 && d.writeHeader && len(d.columns) > 0 {
		if _, err := d.shardFor(d.defaultSplit); err != nil {
			firstErr = err
		}
	}

	for split, fs := range d.writers {
		for _, sf := range fs {
			if sf == nil {
				continue
			}

			sf.csvWriter.Flush()
			if err := sf.csvWriter.Error(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to flush "+sf.path)
			}
			if err := sf.compressed.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to close compressor for "+sf.path)
			}
			if err := sf.file.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to close "+sf.path)
			}

			d.Logger().Info("shard closed",
				zap.String("path", sf.path),
				zap.String("split", split),
				zap.Int64("records", sf.records))
		}
	}
	d.mu.Unlock()

	d.Logger().Info("csv destination closed",
		zap.Int64("records_written", d.recordsWritten))

	if err := d.BaseConnector.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// RecordsWritten returns the total rows written so far.
func (d *CSVDestination) RecordsWritten() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordsWritten
}

// SupportsBatch returns true, the preferred write mode
func (d *CSVDestination) SupportsBatch() bool { return true }

// SupportsStreaming returns true
func (d *CSVDestination) SupportsStreaming() bool { return true }
