// Package csv implements a local CSV file source, mainly used to feed
// pipelines in development and tests without a BigQuery round trip.
// Compressed inputs are detected by file extension.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zenithml/zenith/pkg/compression"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/base"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/metrics"
	"github.com/zenithml/zenith/pkg/pool"
)

// CSVSource streams rows from a local CSV file. Values are delivered as
// strings; downstream transforms convert types where needed.
type CSVSource struct {
	*base.BaseConnector

	path       string
	hasHeader  bool
	delimiter  rune
	maxRows    int64
	bufferSize int

	header []string
}

// NewCSVSource creates a CSV source from the source configuration.
func NewCSVSource(cfg *config.BaseConfig) (*CSVSource, error) {
	if cfg.Source.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source path is required")
	}

	delimiter := ','
	if cfg.Source.Delimiter != "" {
		delimiter = rune(cfg.Source.Delimiter[0])
	}

	bufferSize := cfg.Performance.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	return &CSVSource{
		BaseConnector: base.NewBaseConnector("csv", core.ConnectorTypeSource, "1.0.0"),
		path:          cfg.Source.Path,
		hasHeader:     cfg.Source.HasHeader,
		delimiter:     delimiter,
		maxRows:       cfg.Source.MaxRows,
		bufferSize:    bufferSize,
	}, nil
}

// Initialize verifies the file exists and reads the header when
// configured.
func (s *CSVSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to stat "+s.path)
	}
	if info.IsDir() {
		return errors.New(errors.ErrorTypeConfig, s.path+" is a directory")
	}

	if s.hasHeader {
		header, err := s.readHeader()
		if err != nil {
			return err
		}
		s.header = header
	}

	s.SetHealthCheckFunc(func(ctx context.Context) error {
		_, err := os.Stat(s.path)
		return err
	})

	s.Logger().Info("csv source initialized",
		zap.String("path", s.path),
		zap.Bool("has_header", s.hasHeader),
		zap.Int64("size_bytes", info.Size()))

	return nil
}

// Discover returns the schema derived from the header row. All fields
// are typed as strings.
func (s *CSVSource) Discover(ctx context.Context) (*core.Schema, error) {
	if !s.hasHeader {
		return nil, errors.New(errors.ErrorTypeValidation,
			"schema discovery requires a header row")
	}

	schema := &core.Schema{
		Name:      filepath.Base(s.path),
		Fields:    make([]core.Field, 0, len(s.header)),
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	for _, name := range s.header {
		schema.Fields = append(schema.Fields, core.Field{
			Name:     name,
			Type:     core.FieldTypeString,
			Nullable: true,
		})
	}
	return schema, nil
}

// Read streams rows as records. Column names come from the header, or
// col_0..col_N when the file has none.
func (s *CSVSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *pool.Record, s.bufferSize)
	errs := make(chan error, 10)

	go func() {
		defer close(records)
		defer close(errs)

		file, reader, err := s.open()
		if err != nil {
			errs <- err
			return
		}
		defer file.Close()

		csvReader := stdcsv.NewReader(reader)
		csvReader.Comma = s.delimiter
		csvReader.ReuseRecord = false

		columns := s.header
		if s.hasHeader {
			// Skip the header row; columns were captured at Initialize
			if _, err := csvReader.Read(); err != nil {
				errs <- errors.Wrap(err, errors.ErrorTypeData, "failed to read header")
				return
			}
		}

		var count int64
		for {
			if s.maxRows > 0 && count >= s.maxRows {
				return
			}

			row, err := csvReader.Read()
			if err == io.EOF {
				s.Logger().Info("csv exhausted", zap.Int64("rows", count))
				return
			}
			if err != nil {
				errs <- errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV row")
				return
			}

			if columns == nil {
				columns = make([]string, len(row))
				for i := range row {
					columns[i] = fmt.Sprintf("col_%d", i)
				}
			}
			if len(row) != len(columns) {
				errs <- errors.Newf(errors.ErrorTypeData,
					"row %d has %d fields, expected %d", count, len(row), len(columns))
				return
			}

			record := pool.GetRecord()
			record.Metadata.Source = s.Name()
			record.Metadata.Offset = count
			record.Data = make(map[string]interface{}, len(columns))
			for i, col := range columns {
				record.Data[col] = row[i]
			}

			select {
			case records <- record:
				count++
				metrics.RowsRead.WithLabelValues("csv", filepath.Base(s.path)).Inc()
			case <-ctx.Done():
				record.Release()
				return
			}
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

// ReadBatch streams rows grouped into batches of batchSize.
func (s *CSVSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
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

// open opens the file and wraps it in a decompressor when the extension
// calls for one.
func (s *CSVSource) open() (*os.File, io.Reader, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open "+s.path)
	}

	algorithm := compression.None
	switch {
	case strings.HasSuffix(s.path, ".gz"):
		algorithm = compression.Gzip
	case strings.HasSuffix(s.path, ".snappy"):
		algorithm = compression.Snappy
	}

	reader, err := compression.WrapReader(file, algorithm)
	if err != nil {
		_ = file.Close()
		return nil, nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open decompressor")
	}
	return file, reader, nil
}

// readHeader reads just the header row.
func (s *CSVSource) readHeader() ([]string, error) {
	file, reader, err := s.open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	csvReader := stdcsv.NewReader(reader)
	csvReader.Comma = s.delimiter

	header, err := csvReader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read header")
	}
	return header, nil
}

// SupportsBatch returns true
func (s *CSVSource) SupportsBatch() bool { return true }

// SupportsStreaming returns true
func (s *CSVSource) SupportsStreaming() bool { return true }
