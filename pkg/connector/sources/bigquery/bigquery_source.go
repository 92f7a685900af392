// Package bigquery implements the BigQuery source connector. It runs
// the configured SQL and streams result rows as records, one map per
// row keyed by column name.
package bigquery

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/base"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/metrics"
	"github.com/zenithml/zenith/pkg/pool"
)

// BigQuerySource streams the result of a SQL query.
type BigQuerySource struct {
	*base.BaseConnector

	projectID       string
	location        string
	dataset         string
	credentialsFile string
	sql             string
	priority        string
	maxRows         int64
	bufferSize      int

	client *bigquery.Client

	rowsRead int64
}

// NewBigQuerySource creates a BigQuery source from the source
// configuration.
func NewBigQuerySource(cfg *config.BaseConfig) (*BigQuerySource, error) {
	if cfg.GCP.ProjectID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcp project_id is required")
	}
	if strings.TrimSpace(cfg.Source.SQL) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source sql is required")
	}

	bufferSize := cfg.Performance.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	return &BigQuerySource{
		BaseConnector:   base.NewBaseConnector("bigquery", core.ConnectorTypeSource, "1.0.0"),
		projectID:       cfg.GCP.ProjectID,
		location:        cfg.GCP.Location,
		dataset:         cfg.GCP.Dataset,
		credentialsFile: cfg.GCP.CredentialsFile,
		sql:             cfg.Source.SQL,
		priority:        cfg.Source.Priority,
		maxRows:         cfg.Source.MaxRows,
		bufferSize:      bufferSize,
	}, nil
}

// Initialize creates the BigQuery client and validates the query with a
// dry run.
func (s *BigQuerySource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	var opts []option.ClientOption
	if s.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, s.projectID, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}
	s.client = client

	if _, err := s.dryRun(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "query dry run failed")
	}

	s.SetHealthCheckFunc(func(ctx context.Context) error {
		_, err := s.dryRun(ctx)
		return err
	})

	s.Logger().Info("bigquery source initialized",
		zap.String("project", s.projectID),
		zap.String("location", s.location),
		zap.String("priority", s.priority))

	return nil
}

// Discover dry-runs the query and returns the result schema.
func (s *BigQuerySource) Discover(ctx context.Context) (*core.Schema, error) {
	bqSchema, err := s.dryRun(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "schema discovery failed")
	}

	schema := &core.Schema{
		Name:      "query_result",
		Fields:    make([]core.Field, 0, len(bqSchema)),
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	for _, f := range bqSchema {
		schema.Fields = append(schema.Fields, core.Field{
			Name:     f.Name,
			Type:     mapFieldType(f.Type),
			Nullable: !f.Required,
		})
	}

	return schema, nil
}

// Read starts the query and streams rows as records.
func (s *BigQuerySource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *pool.Record, s.bufferSize)
	errs := make(chan error, 10)

	go func() {
		defer close(records)
		defer close(errs)

		timer := metrics.NewTimer("source_read")
		defer func() {
			metrics.QueryLatency.WithLabelValues("source_read").Observe(timer.Stop().Seconds())
		}()

		it, err := s.runQuery(ctx)
		if err != nil {
			errs <- err
			return
		}

		var count int64
		for {
			if s.maxRows > 0 && count >= s.maxRows {
				s.Logger().Info("row limit reached", zap.Int64("max_rows", s.maxRows))
				return
			}

			row := make(map[string]bigquery.Value)
			err := it.Next(&row)
			if err == iterator.Done {
				s.Logger().Info("query exhausted", zap.Int64("rows", count))
				return
			}
			if err != nil {
				errs <- errors.Wrap(err, errors.ErrorTypeQuery, "failed to read query row")
				return
			}

			record := pool.GetRecord()
			record.Metadata.Source = s.Name()
			record.Metadata.Offset = count
			record.Data = make(map[string]interface{}, len(row))
			for k, v := range row {
				record.Data[k] = v
			}

			select {
			case records <- record:
				count++
				s.rowsRead++
				metrics.RowsRead.WithLabelValues("bigquery", s.dataset).Inc()
			case <-ctx.Done():
				record.Release()
				return
			}
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

// ReadBatch streams rows grouped into batches of batchSize.
func (s *BigQuerySource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	recordStream, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}

	batches := make(chan []*pool.Record, 10)
	errs := make(chan error, 10)

	go func() {
		defer close(batches)
		defer close(errs)

		batch := pool.GetBatchSlice(batchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			select {
			case batches <- batch:
				batch = pool.GetBatchSlice(batchSize)
			case <-ctx.Done():
			}
		}

		for {
			select {
			case record, ok := <-recordStream.Records:
				if !ok {
					flush()
					return
				}
				batch = append(batch, record)
				if len(batch) >= batchSize {
					flush()
				}

			case err := <-recordStream.Errors:
				if err != nil {
					errs <- err
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return &core.BatchStream{Batches: batches, Errors: errs}, nil
}

// Close releases the BigQuery client.
func (s *BigQuerySource) Close(ctx context.Context) error {
	var firstErr error
	if s.client != nil {
		firstErr = s.client.Close()
	}
	if err := s.BaseConnector.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// runQuery starts the configured query and returns its row iterator.
func (s *BigQuerySource) runQuery(ctx context.Context) (*bigquery.RowIterator, error) {
	if err := s.RateLimit(ctx); err != nil {
		return nil, err
	}

	q := s.newQuery()

	var it *bigquery.RowIterator
	err := s.ExecuteWithCircuitBreaker(func() error {
		var err error
		it, err = q.Read(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query execution failed")
	}
	return it, nil
}

// dryRun validates the query without running it and returns the result
// schema.
func (s *BigQuerySource) dryRun(ctx context.Context) (bigquery.Schema, error) {
	q := s.newQuery()
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}

	stats, ok := job.LastStatus().Statistics.Details.(*bigquery.QueryStatistics)
	if !ok || stats == nil {
		return nil, errors.New(errors.ErrorTypeQuery, "dry run returned no query statistics")
	}
	return stats.Schema, nil
}

func (s *BigQuerySource) newQuery() *bigquery.Query {
	q := s.client.Query(s.sql)
	q.Location = s.location
	if strings.EqualFold(s.priority, "batch") {
		q.Priority = bigquery.BatchPriority
	}
	return q
}

func mapFieldType(t bigquery.FieldType) core.FieldType {
	switch t {
	case bigquery.StringFieldType:
		return core.FieldTypeString
	case bigquery.IntegerFieldType:
		return core.FieldTypeInt
	case bigquery.FloatFieldType, bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return core.FieldTypeFloat
	case bigquery.BooleanFieldType:
		return core.FieldTypeBool
	case bigquery.TimestampFieldType:
		return core.FieldTypeTimestamp
	case bigquery.DateFieldType, bigquery.DateTimeFieldType:
		return core.FieldTypeDate
	default:
		return core.FieldTypeJSON
	}
}

// SupportsBatch returns true
func (s *BigQuerySource) SupportsBatch() bool { return true }

// SupportsStreaming returns true
func (s *BigQuerySource) SupportsStreaming() bool { return true }
