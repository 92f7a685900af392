package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenithml/zenith/internal/pipeline"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/registry"
	"github.com/zenithml/zenith/pkg/dataset"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/logger"
)

// ExportOptions select what to export and where.
type ExportOptions struct {
	// DatasetName is a registered dataset
	DatasetName string
	// SourceName is the source connector, normally "bigquery"
	SourceName string
	// DestinationName is "gcs" or "csv"
	DestinationName string
	// Splits to export; defaults to train and eval
	Splits []dataset.Split
	// SampleEveryN keeps one row in N per split (0 = all)
	SampleEveryN int
	// Limit caps rows per split (0 = unlimited)
	Limit int64
}

// ExportResult reports rows delivered per split.
type ExportResult struct {
	Dataset string                  `json:"dataset"`
	Counts  map[dataset.Split]int64 `json:"counts"`
}

// Export streams each requested split of a dataset through the pipeline
// into sharded CSV output. Each split runs as its own pipeline so shard
// files never mix splits.
func Export(ctx context.Context, cfg *config.BaseConfig, opts *ExportOptions) (*ExportResult, error) {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return nil, err
	}

	sourceName := opts.SourceName
	if sourceName == "" {
		sourceName = "bigquery"
	}
	destinationName := opts.DestinationName
	if destinationName == "" {
		destinationName = "gcs"
	}

	splits := opts.Splits
	if len(splits) == 0 {
		splits = []dataset.Split{dataset.SplitTrain, dataset.SplitEval}
	}

	log := logger.Get().With(
		zap.String("dataset", ds.Name()),
		zap.String("destination", destinationName))

	result := &ExportResult{
		Dataset: ds.Name(),
		Counts:  make(map[dataset.Split]int64, len(splits)),
	}

	for _, split := range splits {
		count, err := exportSplit(ctx, cfg, ds, sourceName, destinationName, split, opts)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExport,
				"export of split "+string(split)+" failed")
		}
		result.Counts[split] = count
		log.Info("split exported",
			zap.String("split", string(split)),
			zap.Int64("records", count))
	}

	return result, nil
}

// exportSplit runs one read -> transform -> write pipeline for a split.
func exportSplit(ctx context.Context, cfg *config.BaseConfig, ds dataset.Dataset,
	sourceName, destinationName string, split dataset.Split, opts *ExportOptions) (int64, error) {

	// Per-split config copy so SQL and columns don't leak across runs
	splitCfg := *cfg
	splitCfg.Source.SQL = ds.Query(split, dataset.QueryOptions{
		SampleEveryN: opts.SampleEveryN,
		Limit:        opts.Limit,
	})
	splitCfg.Sink.Columns = ds.Columns()
	splitCfg.Sink.DefaultSplit = string(split)
	if splitCfg.Sink.Prefix == "" {
		splitCfg.Sink.Prefix = ds.Name()
	}

	source, err := registry.CreateSource(sourceName, &splitCfg)
	if err != nil {
		return 0, err
	}
	if err := source.Initialize(ctx, &splitCfg); err != nil {
		return 0, err
	}
	defer source.Close(ctx)

	destination, err := registry.CreateDestination(destinationName, &splitCfg)
	if err != nil {
		return 0, err
	}
	if err := destination.Initialize(ctx, &splitCfg); err != nil {
		return 0, err
	}

	if err := destination.CreateSchema(ctx, ds.Schema()); err != nil {
		return 0, err
	}

	pipelineCfg := pipeline.DefaultConfig()
	if splitCfg.Performance.BatchSize > 0 {
		pipelineCfg.BatchSize = splitCfg.Performance.BatchSize
	}
	if splitCfg.Performance.Workers > 0 {
		pipelineCfg.WorkerCount = splitCfg.Performance.Workers
	}
	if splitCfg.Performance.FlushInterval > 0 {
		pipelineCfg.FlushInterval = splitCfg.Performance.FlushInterval
	}

	p := pipeline.New(source, destination, pipelineCfg, logger.Get())

	p.AddTransform(pipeline.ProjectionTransform(ds.Columns()))
	p.AddTransform(pipeline.SplitTagTransform(string(split)))

	runErr := p.Run(ctx)
	closeErr := destination.Close(ctx)

	if runErr != nil {
		return 0, runErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	return p.RecordsProcessed(), nil
}
