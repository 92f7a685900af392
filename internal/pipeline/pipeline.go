// Package pipeline provides the streaming engine that moves query
// results from a source connector into a destination connector. It is
// the read -> map -> write core of the dataset export workflow:
// records stream through parallel transform workers, are grouped into
// batches, and are written out as sharded CSV files.
//
// Basic usage:
//
//	p := pipeline.New(source, destination, &pipeline.Config{
//	    BatchSize:   5000,
//	    WorkerCount: 4,
//	}, logger)
//
//	p.AddTransform(pipeline.ProjectionTransform(ds.Columns()))
//	err := p.Run(ctx)
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/models"
	"github.com/zenithml/zenith/pkg/pool"
)

// Transform modifies records in-flight. Returning a nil record drops
// the row. Transforms are applied sequentially in the order added.
type Transform func(ctx context.Context, record *models.Record) (*models.Record, error)

// Config contains pipeline tuning parameters.
type Config struct {
	// BatchSize is the number of records per output batch
	BatchSize int
	// WorkerCount is the number of parallel transform workers
	WorkerCount int
	// FlushInterval bounds how long a partial batch may wait
	FlushInterval time.Duration
}

// DefaultConfig returns configuration suited to BigQuery export volumes.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:     5000,
		WorkerCount:   4,
		FlushInterval: 10 * time.Second,
	}
}

// Pipeline streams records from a source to a destination with
// transformations applied by parallel workers.
type Pipeline struct {
	source      core.Source
	destination core.Destination
	transforms  []Transform

	batchSize     int
	workerCount   int
	flushInterval time.Duration

	recordsProcessed int64
	recordsFailed    int64
	startTime        time.Time

	logger *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a pipeline. The pipeline is initialized but not started;
// call Run to begin processing.
func New(source core.Source, destination core.Destination, config *Config, logger *zap.Logger) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}

	return &Pipeline{
		source:        source,
		destination:   destination,
		batchSize:     config.BatchSize,
		workerCount:   config.WorkerCount,
		flushInterval: config.FlushInterval,
		logger:        logger,
	}
}

// AddTransform appends a transformation to the pipeline.
func (p *Pipeline) AddTransform(transform Transform) {
	p.transforms = append(p.transforms, transform)
}

// Run executes the pipeline until the source is exhausted or the
// context is cancelled. The flow is:
//
//  1. source reader streams records
//  2. transform workers apply transforms in parallel
//  3. batch collector groups records
//  4. destination writer persists batches
//
// Run blocks until all in-flight records have drained to the destination.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	p.startTime = time.Now()
	p.logger.Info("starting pipeline",
		zap.Int("batch_size", p.batchSize),
		zap.Int("worker_count", p.workerCount),
		zap.Int("transforms", len(p.transforms)))

	recordChan := make(chan *models.Record, p.batchSize*2)
	transformedChan := make(chan *models.Record, p.batchSize*2)
	batchChan := make(chan []*models.Record, 10)
	errorChan := make(chan error, 100)

	p.wg.Add(1)
	go p.readSource(ctx, recordChan, errorChan)

	// Workers join p.wg too so errorChan stays open until every sender
	// has exited
	transformWg := &sync.WaitGroup{}
	for i := 0; i < p.workerCount; i++ {
		transformWg.Add(1)
		p.wg.Add(1)
		go func(id int) {
			defer transformWg.Done()
			defer p.wg.Done()
			p.transformWorker(ctx, id, recordChan, transformedChan, errorChan)
		}(i)
	}

	// Close the transformed channel once every worker has drained
	go func() {
		transformWg.Wait()
		close(transformedChan)
	}()

	p.wg.Add(1)
	go p.batchCollector(ctx, transformedChan, batchChan)

	p.wg.Add(1)
	go p.writeDestination(ctx, batchChan, errorChan)

	// Error collector runs outside the wait group so producers never
	// block on a full error channel during shutdown
	var firstErr error
	errorDone := make(chan struct{})
	go func() {
		defer close(errorDone)
		for err := range errorChan {
			if err == nil {
				continue
			}
			p.logger.Error("pipeline error", zap.Error(err))
			p.mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			p.mu.Unlock()
		}
	}()

	p.wg.Wait()
	close(errorChan)
	<-errorDone

	duration := time.Since(p.startTime)
	throughput := float64(p.recordsProcessed) / duration.Seconds()

	p.logger.Info("pipeline completed",
		zap.Int64("records_processed", p.recordsProcessed),
		zap.Int64("records_failed", p.recordsFailed),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", throughput))

	return firstErr
}

// Stop cancels the pipeline and waits for goroutines to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// RecordsProcessed returns the number of records delivered so far.
func (p *Pipeline) RecordsProcessed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordsProcessed
}

// Metrics returns pipeline metrics.
func (p *Pipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := time.Since(p.startTime)
	throughput := float64(p.recordsProcessed) / duration.Seconds()

	return map[string]interface{}{
		"records_processed": p.recordsProcessed,
		"records_failed":    p.recordsFailed,
		"duration":          duration.String(),
		"throughput_rps":    throughput,
		"worker_count":      p.workerCount,
		"batch_size":        p.batchSize,
		"transform_count":   len(p.transforms),
	}
}

// readSource streams records from the source into recordChan.
func (p *Pipeline) readSource(ctx context.Context, recordChan chan<- *models.Record, errorChan chan<- error) {
	defer p.wg.Done()
	defer close(recordChan)

	stream, err := p.source.Read(ctx)
	if err != nil {
		errorChan <- fmt.Errorf("failed to start source read: %w", err)
		return
	}

	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				p.logger.Debug("source stream closed")
				return
			}

			select {
			case recordChan <- record:
			case <-ctx.Done():
				return
			}

		case err := <-stream.Errors:
			if err != nil {
				errorChan <- fmt.Errorf("source error: %w", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// transformWorker applies the transform chain to records.
func (p *Pipeline) transformWorker(ctx context.Context, id int, in <-chan *models.Record, out chan<- *models.Record, errorChan chan<- error) {
	logger := p.logger.With(zap.Int("worker", id))

	for {
		select {
		case record, ok := <-in:
			if !ok {
				logger.Debug("transform worker exiting")
				return
			}

			transformed := record
			for i, transform := range p.transforms {
				result, err := transform(ctx, transformed)
				if err != nil {
					errorChan <- fmt.Errorf("transform %d failed: %w", i, err)
					p.mu.Lock()
					p.recordsFailed++
					p.mu.Unlock()
					transformed.Release()
					transformed = nil
					break
				}
				transformed = result
				if transformed == nil {
					break
				}
			}

			if transformed == nil {
				continue
			}

			select {
			case out <- transformed:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// batchCollector groups transformed records into batches.
func (p *Pipeline) batchCollector(ctx context.Context, in <-chan *models.Record, out chan<- []*models.Record) {
	defer p.wg.Done()
	defer close(out)

	batch := pool.GetBatchSlice(p.batchSize)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The consumer owns the batch slice and returns it to the pool
		select {
		case out <- batch:
			batch = pool.GetBatchSlice(p.batchSize)
		case <-ctx.Done():
		}
	}

	for {
		select {
		case record, ok := <-in:
			if !ok {
				flush()
				return
			}

			batch = append(batch, record)
			if len(batch) >= p.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
}

// writeDestination forwards batches to the destination's batch stream.
func (p *Pipeline) writeDestination(ctx context.Context, batchChan <-chan []*models.Record, errorChan chan<- error) {
	defer p.wg.Done()

	destBatchChan := make(chan []*models.Record, 10)
	destErrorChan := make(chan error, 10)

	batchStream := &core.BatchStream{
		Batches: destBatchChan,
		Errors:  destErrorChan,
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := p.destination.WriteBatch(ctx, batchStream); err != nil {
			errorChan <- fmt.Errorf("destination write failed: %w", err)
		}
	}()

	// shutdown stops the destination and drains any error it raced in
	// during teardown
	shutdown := func() {
		close(destBatchChan)
		<-writeDone
		for {
			select {
			case err := <-destErrorChan:
				if err != nil {
					errorChan <- err
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case batch, ok := <-batchChan:
			if !ok {
				shutdown()
				return
			}

			select {
			case destBatchChan <- batch:
				p.mu.Lock()
				p.recordsProcessed += int64(len(batch))
				p.mu.Unlock()

			case <-ctx.Done():
				shutdown()
				return
			}

		case err := <-destErrorChan:
			if err != nil {
				errorChan <- err
			}

		case <-ctx.Done():
			shutdown()
			return
		}
	}
}
