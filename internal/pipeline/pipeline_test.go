package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/models"
	"github.com/zenithml/zenith/pkg/pool"
	"github.com/zenithml/zenith/pkg/testutil"
)

// memSource streams pre-built records.
type memSource struct {
	rows []map[string]interface{}
}

func (s *memSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (s *memSource) Discover(ctx context.Context) (*core.Schema, error)           { return nil, nil }
func (s *memSource) Close(ctx context.Context) error                              { return nil }
func (s *memSource) SupportsBatch() bool                                          { return true }
func (s *memSource) SupportsStreaming() bool                                      { return true }
func (s *memSource) Health(ctx context.Context) error                             { return nil }
func (s *memSource) Metrics() map[string]interface{}                              { return nil }

func (s *memSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *pool.Record, len(s.rows))
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)
		for i, row := range s.rows {
			record := pool.NewRecord("mem", row)
			record.Metadata.Offset = int64(i)
			select {
			case records <- record:
			case <-ctx.Done():
				record.Release()
				return
			}
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

func (s *memSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	return nil, nil
}

// memDestination collects written rows.
type memDestination struct {
	mu   sync.Mutex
	rows []map[string]interface{}
}

func (d *memDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (d *memDestination) CreateSchema(ctx context.Context, schema *core.Schema) error  { return nil }
func (d *memDestination) Close(ctx context.Context) error                              { return nil }
func (d *memDestination) SupportsBatch() bool                                          { return true }
func (d *memDestination) SupportsStreaming() bool                                      { return true }
func (d *memDestination) Health(ctx context.Context) error                             { return nil }
func (d *memDestination) Metrics() map[string]interface{}                              { return nil }

func (d *memDestination) Write(ctx context.Context, stream *core.RecordStream) error { return nil }

func (d *memDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	for {
		select {
		case batch, ok := <-stream.Batches:
			if !ok {
				return nil
			}
			d.mu.Lock()
			for _, record := range batch {
				row := make(map[string]interface{}, len(record.Data))
				for k, v := range record.Data {
					row[k] = v
				}
				d.rows = append(d.rows, row)
				record.Release()
			}
			d.mu.Unlock()
			pool.PutBatchSlice(batch)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *memDestination) collected() []map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows
}

func testRows(n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"fare_amount": float64(i) + 2.5,
			"passengers":  1.0,
			"internal_id": i,
		}
	}
	return rows
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	source := &memSource{rows: testRows(250)}
	dest := &memDestination{}

	p := New(source, dest, &Config{
		BatchSize:     50,
		WorkerCount:   4,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, int64(250), p.RecordsProcessed())
	assert.Len(t, dest.collected(), 250)
}

func TestPipelineProjectionTransform(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	source := &memSource{rows: testRows(20)}
	dest := &memDestination{}

	p := New(source, dest, &Config{
		BatchSize:     10,
		WorkerCount:   2,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))
	p.AddTransform(ProjectionTransform([]string{"fare_amount", "passengers"}))

	require.NoError(t, p.Run(ctx))

	for _, row := range dest.collected() {
		assert.Len(t, row, 2)
		assert.Contains(t, row, "fare_amount")
		assert.NotContains(t, row, "internal_id")
	}
}

func TestPipelineProjectionMissingColumnFails(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	source := &memSource{rows: testRows(5)}
	dest := &memDestination{}

	p := New(source, dest, &Config{
		BatchSize:     10,
		WorkerCount:   1,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))
	p.AddTransform(ProjectionTransform([]string{"no_such_column"}))

	err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_column")
}

// A transform that fails after the context is cancelled must not find
// the error channel already closed.
func TestPipelineCancelDuringFailingTransform(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &memSource{rows: testRows(1)}
	dest := &memDestination{}

	p := New(source, dest, &Config{
		BatchSize:     10,
		WorkerCount:   2,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))

	p.AddTransform(func(ctx context.Context, r *models.Record) (*models.Record, error) {
		cancel()
		time.Sleep(200 * time.Millisecond)
		return nil, fmt.Errorf("conversion failed")
	})

	err := p.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(1), p.recordsFailed)
}

func TestPipelineFilterTransform(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	source := &memSource{rows: testRows(100)}
	dest := &memDestination{}

	p := New(source, dest, &Config{
		BatchSize:     10,
		WorkerCount:   2,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))
	p.AddTransform(FilterTransform(func(r *models.Record) bool {
		fare, _ := r.GetData("fare_amount")
		return fare.(float64) >= 52.5 // keeps the back half
	}))

	require.NoError(t, p.Run(ctx))
	assert.Len(t, dest.collected(), 50)
}

func TestPipelineSplitTagTransform(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	source := &memSource{rows: testRows(10)}

	var splits []string
	var mu sync.Mutex
	dest := &tagCapturingDestination{onRecord: func(r *models.Record) {
		mu.Lock()
		splits = append(splits, r.GetSplit())
		mu.Unlock()
	}}

	p := New(source, dest, &Config{
		BatchSize:     5,
		WorkerCount:   1,
		FlushInterval: DefaultConfig().FlushInterval,
	}, testutil.TestLogger(t))
	p.AddTransform(SplitTagTransform("train"))

	require.NoError(t, p.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, splits, 10)
	for _, s := range splits {
		assert.Equal(t, "train", s)
	}
}

// tagCapturingDestination invokes a callback per record.
type tagCapturingDestination struct {
	memDestination
	onRecord func(*models.Record)
}

func (d *tagCapturingDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	for {
		select {
		case batch, ok := <-stream.Batches:
			if !ok {
				return nil
			}
			for _, record := range batch {
				d.onRecord(record)
				record.Release()
			}
			pool.PutBatchSlice(batch)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestFieldMapperTransform(t *testing.T) {
	record := pool.NewRecord("test", map[string]interface{}{
		"pickup_longitude": -73.98,
		"fare_amount":      9.0,
	})
	defer record.Release()

	transform := FieldMapperTransform(map[string]string{"pickup_longitude": "pickuplon"})
	out, err := transform(context.Background(), record)
	require.NoError(t, err)

	_, hasOld := out.GetData("pickup_longitude")
	assert.False(t, hasOld)

	v, ok := out.GetData("pickuplon")
	require.True(t, ok)
	assert.Equal(t, -73.98, v)

	v, ok = out.GetData("fare_amount")
	require.True(t, ok)
	assert.Equal(t, 9.0, v)
}

func TestTypeConverterTransform(t *testing.T) {
	record := pool.NewRecord("test", map[string]interface{}{"passengers": "2"})
	defer record.Release()

	transform := TypeConverterTransform("passengers", func(v interface{}) (interface{}, error) {
		return 2.0, nil
	})
	out, err := transform(context.Background(), record)
	require.NoError(t, err)

	v, _ := out.GetData("passengers")
	assert.Equal(t, 2.0, v)
}
