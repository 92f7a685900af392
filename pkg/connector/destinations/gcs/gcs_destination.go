// Package gcs implements the Cloud Storage destination. It writes
// records as sharded CSV objects named the way distributed text sinks
// shard their output:
//
//	<prefix>/<split>-00000-of-00004.csv.gz
//
// Shard count is fixed up front; records are routed to shards
// round-robin so shard sizes stay balanced.
package gcs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/zenithml/zenith/pkg/compression"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/base"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/dataset"
	"github.com/zenithml/zenith/pkg/errors"
	jsonutil "github.com/zenithml/zenith/pkg/json"
	"github.com/zenithml/zenith/pkg/metrics"
	"github.com/zenithml/zenith/pkg/models"
	"github.com/zenithml/zenith/pkg/pool"
)

const defaultSplitName = "data"

// shardWriter is one open CSV shard: a GCS object writer wrapped by an
// optional compressor and a CSV encoder.
type shardWriter struct {
	objectName string
	gcsWriter  *storage.Writer
	compressed io.WriteCloser
	csvWriter  *csv.Writer
	records    int64
}

// GCSDestination streams records into sharded CSV objects on Cloud Storage.
type GCSDestination struct {
	*base.BaseConnector

	bucket          string
	prefix          string
	credentialsFile string
	shards          int
	algorithm       compression.Algorithm
	delimiter       rune
	writeHeader     bool
	columns         []string
	defaultSplit    string
	runID           string

	client       *storage.Client
	bucketHandle *storage.BucketHandle

	writers map[string][]*shardWriter
	counter map[string]int64
	mu      sync.Mutex

	recordsWritten int64
	bytesWritten   int64
}

// NewGCSDestination creates a GCS destination from the sink configuration.
func NewGCSDestination(cfg *config.BaseConfig) (*GCSDestination, error) {
	bucket := cfg.Sink.Bucket
	if bucket == "" {
		bucket = cfg.GCP.Bucket
	}
	if bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bucket is required")
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
		defaultSplit = defaultSplitName
	}

	return &GCSDestination{
		BaseConnector:   base.NewBaseConnector("gcs", core.ConnectorTypeDestination, "1.0.0"),
		bucket:          bucket,
		prefix:          cfg.Sink.Prefix,
		credentialsFile: cfg.GCP.CredentialsFile,
		shards:          shards,
		algorithm:       algorithm,
		delimiter:       delimiter,
		writeHeader:     cfg.Sink.WriteHeader,
		columns:         cfg.Sink.Columns,
		defaultSplit:    defaultSplit,
		runID:           uuid.NewString(),
		writers:         make(map[string][]*shardWriter),
		counter:         make(map[string]int64),
	}, nil
}

// Initialize creates the storage client and verifies bucket access.
func (d *GCSDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	var opts []option.ClientOption
	if d.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(d.credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create storage client")
	}
	d.client = client
	d.bucketHandle = client.Bucket(d.bucket)

	if _, err := d.bucketHandle.Attrs(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection,
			"failed to access bucket "+d.bucket)
	}

	d.SetHealthCheckFunc(func(ctx context.Context) error {
		_, err := d.bucketHandle.Attrs(ctx)
		return err
	})

	d.Logger().Info("gcs destination initialized",
		zap.String("bucket", d.bucket),
		zap.String("prefix", d.prefix),
		zap.Int("shards", d.shards),
		zap.String("compression", string(d.algorithm)))

	return nil
}

// CreateSchema writes a schema metadata object alongside the shards.
func (d *GCSDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	if schema == nil {
		return nil
	}

	data, err := jsonutil.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to marshal schema")
	}

	objectName := d.prefix + "/_schema.json"
	w := d.bucketHandle.Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write schema object")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close schema object")
	}

	d.Logger().Info("schema metadata written", zap.String("object", objectName))
	return nil
}

// Write consumes a record stream until it closes.
func (d *GCSDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	if stream == nil {
		return errors.New(errors.ErrorTypeValidation, "stream cannot be nil")
	}

	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return nil
			}
			if err := d.writeRecord(ctx, record); err != nil {
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

// WriteBatch consumes a batch stream until it closes. Batch slices are
// returned to the pool; the records they carry are released after
// encoding.
func (d *GCSDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
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
				if err := d.writeRecord(ctx, record); err != nil {
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

// writeRecord routes a record to its shard and encodes it as a CSV row.
func (d *GCSDestination) writeRecord(ctx context.Context, record *models.Record) error {
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

	sw, err := d.shardFor(ctx, split)
	if err != nil {
		return err
	}

	row, err := dataset.ToCSVRow(record, d.columns)
	if err != nil {
		return err
	}

	if err := sw.csvWriter.Write(row); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExport, "failed to write CSV row")
	}

	sw.records++
	d.counter[split]++
	d.recordsWritten++
	metrics.RecordsExported.WithLabelValues("gcs", split, "success").Inc()

	return nil
}

// shardFor returns the next shard writer for a split, opening it lazily.
// Caller must hold d.mu.
func (d *GCSDestination) shardFor(ctx context.Context, split string) (*shardWriter, error) {
	ws, ok := d.writers[split]
	if !ok {
		ws = make([]*shardWriter, d.shards)
		d.writers[split] = ws
	}

	shard := int(d.counter[split] % int64(d.shards))
	if ws[shard] != nil {
		return ws[shard], nil
	}

	if err := d.RateLimit(ctx); err != nil {
		return nil, err
	}

	objectName := d.objectName(split, shard)

	gcsWriter := d.bucketHandle.Object(objectName).NewWriter(ctx)
	gcsWriter.ContentType = "text/csv"
	gcsWriter.Metadata = map[string]string{
		"split":       split,
		"shard":       strconv.Itoa(shard),
		"run_id":      d.runID,
		"compression": string(d.algorithm),
		"created":     time.Now().UTC().Format(time.RFC3339),
	}

	compressed, err := compression.WrapWriter(gcsWriter, d.algorithm)
	if err != nil {
		_ = gcsWriter.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeExport, "failed to create compressor")
	}

	csvWriter := csv.NewWriter(compressed)
	csvWriter.Comma = d.delimiter

	sw := &shardWriter{
		objectName: objectName,
		gcsWriter:  gcsWriter,
		compressed: compressed,
		csvWriter:  csvWriter,
	}

	if d.writeHeader {
		if err := csvWriter.Write(d.columns); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExport, "failed to write CSV header")
		}
	}

	ws[shard] = sw
	d.Logger().Debug("opened shard", zap.String("object", objectName))

	return sw, nil
}

// objectName builds the deterministic shard object name.
func (d *GCSDestination) objectName(split string, shard int) string {
	return fmt.Sprintf("%s/%s-%05d-of-%05d.csv%s",
		d.prefix, split, shard, d.shards, d.algorithm.Extension())
}

// Close flushes and closes every open shard, then writes a run manifest.
func (d *GCSDestination) Close(ctx context.Context) error {
	d.mu.Lock()

	var firstErr error

	// A run with zero records still emits shard 0 with the header
	if d.recordsWritten == 0 && d.writeHeader && len(d.columns) > 0 {
		if _, err := d.shardFor(ctx, d.defaultSplit); err != nil {
			firstErr = err
		}
	}

	for split, ws := range d.writers {
		for _, sw := range ws {
			if sw == nil {
				continue
			}

			sw.csvWriter.Flush()
			if err := sw.csvWriter.Error(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to flush shard "+sw.objectName)
			}
			if err := sw.compressed.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to close compressor for "+sw.objectName)
			}
			if err := sw.gcsWriter.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrorTypeExport, "failed to close shard "+sw.objectName)
			}

			// Attrs is nil until a successful Close
			if attrs := sw.gcsWriter.Attrs(); attrs != nil {
				d.bytesWritten += attrs.Size
			}
			d.Logger().Info("shard closed",
				zap.String("object", sw.objectName),
				zap.String("split", split),
				zap.Int64("records", sw.records))
		}
	}
	d.mu.Unlock()

	if firstErr == nil {
		if err := d.writeManifest(ctx); err != nil {
			firstErr = err
		}
	}

	metrics.BytesWritten.WithLabelValues("gcs").Add(float64(d.bytesWritten))

	d.Logger().Info("gcs destination closed",
		zap.Int64("records_written", d.recordsWritten),
		zap.Int64("bytes_written", d.bytesWritten))

	if err := d.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.BaseConnector.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// writeManifest records per-split row counts for downstream consumers.
func (d *GCSDestination) writeManifest(ctx context.Context) error {
	manifest := map[string]interface{}{
		"run_id":  d.runID,
		"shards":  d.shards,
		"columns": d.columns,
		"counts":  d.counter,
		"created": time.Now().UTC().Format(time.RFC3339),
	}

	data, err := jsonutil.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to marshal manifest")
	}

	w := d.bucketHandle.Object(d.prefix + "/_manifest.json").NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write manifest")
	}
	return w.Close()
}

// SupportsBatch returns true, the preferred write mode
func (d *GCSDestination) SupportsBatch() bool { return true }

// SupportsStreaming returns true
func (d *GCSDestination) SupportsStreaming() bool { return true }
