package bqml

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/logger"
	"github.com/zenithml/zenith/pkg/metrics"
	"github.com/zenithml/zenith/pkg/observability"
)

// TrainingIteration is one row of ML.TRAINING_INFO.
type TrainingIteration struct {
	Iteration    int64                `bigquery:"iteration"`
	Loss         float64              `bigquery:"loss"`
	EvalLoss     bigquery.NullFloat64 `bigquery:"eval_loss"`
	LearningRate bigquery.NullFloat64 `bigquery:"learning_rate"`
	DurationMs   int64                `bigquery:"duration_ms"`
}

// RegressionEvaluation is the ML.EVALUATE output for a linear model.
type RegressionEvaluation struct {
	MeanAbsoluteError   float64 `bigquery:"mean_absolute_error" json:"mean_absolute_error"`
	MeanSquaredError    float64 `bigquery:"mean_squared_error" json:"mean_squared_error"`
	MeanSquaredLogError float64 `bigquery:"mean_squared_log_error" json:"mean_squared_log_error"`
	MedianAbsoluteError float64 `bigquery:"median_absolute_error" json:"median_absolute_error"`
	R2Score             float64 `bigquery:"r2_score" json:"r2_score"`
	ExplainedVariance   float64 `bigquery:"explained_variance" json:"explained_variance"`
}

// ModelWeight is one learned coefficient from ML.WEIGHTS. Weight is
// NULL for categorical inputs, whose weights live in category_weights.
type ModelWeight struct {
	ProcessedInput string               `bigquery:"processed_input"`
	Weight         bigquery.NullFloat64 `bigquery:"weight"`
}

// PredictRow is one ML.PREDICT output row keyed by column name.
type PredictRow map[string]bigquery.Value

// Trainer runs BQML statements through the BigQuery client.
type Trainer struct {
	client   *bigquery.Client
	location string
	logger   *zap.Logger
}

// NewTrainer creates a trainer for the configured project. Credentials
// come from the configured service-account file, or application default
// credentials when none is set.
func NewTrainer(ctx context.Context, cfg *config.BaseConfig) (*Trainer, error) {
	var opts []option.ClientOption
	if cfg.GCP.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.GCP.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}

	return &Trainer{
		client:   client,
		location: cfg.GCP.Location,
		logger:   logger.Get().With(zap.String("component", "bqml_trainer")),
	}, nil
}

// Close releases the BigQuery client.
func (t *Trainer) Close() error {
	return t.client.Close()
}

// Train runs CREATE OR REPLACE MODEL on sourceQuery and blocks until
// the training job finishes.
func (t *Trainer) Train(ctx context.Context, spec *ModelSpec, sourceQuery string) error {
	sql, err := CreateModelSQL(spec, sourceQuery)
	if err != nil {
		return err
	}

	return observability.TraceOperation(ctx, "bqml.train", func(ctx context.Context) error {
		t.logger.Info("starting model training",
			zap.String("model", spec.Dataset+"."+spec.Name),
			zap.String("model_type", string(spec.Type)))

		start := time.Now()

		q := t.client.Query(sql)
		q.Location = t.location

		job, err := q.Run(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTraining, "failed to start training job")
		}

		t.logger.Info("training job submitted", zap.String("job_id", job.ID()))

		status, err := job.Wait(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTraining, "training job wait failed")
		}
		if err := status.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTraining, "training job failed")
		}

		elapsed := time.Since(start)
		metrics.TrainingDuration.WithLabelValues(spec.Name).Observe(elapsed.Seconds())

		t.logger.Info("model training complete",
			zap.String("model", spec.Dataset+"."+spec.Name),
			zap.Duration("elapsed", elapsed))

		return nil
	})
}

// TrainingInfo returns the per-iteration loss curve of a trained model.
func (t *Trainer) TrainingInfo(ctx context.Context, spec *ModelSpec) ([]TrainingIteration, error) {
	sql, err := TrainingInfoSQL(spec)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer("training_info")
	defer func() {
		metrics.QueryLatency.WithLabelValues("training_info").Observe(timer.Stop().Seconds())
	}()

	it, err := t.read(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ML.TRAINING_INFO query failed")
	}

	var iterations []TrainingIteration
	for {
		var row TrainingIteration
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read training info row")
		}
		iterations = append(iterations, row)
	}

	return iterations, nil
}

// Evaluate runs ML.EVALUATE and returns the regression metrics. An
// empty evalQuery evaluates on the held-out training split.
func (t *Trainer) Evaluate(ctx context.Context, spec *ModelSpec, evalQuery string) (*RegressionEvaluation, error) {
	sql, err := EvaluateSQL(spec, evalQuery)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer("evaluate")
	defer func() {
		metrics.QueryLatency.WithLabelValues("evaluate").Observe(timer.Stop().Seconds())
	}()

	it, err := t.read(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ML.EVALUATE query failed")
	}

	var eval RegressionEvaluation
	if err := it.Next(&eval); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read evaluation row")
	}

	return &eval, nil
}

// Predict runs ML.PREDICT over inputQuery and returns all output rows.
func (t *Trainer) Predict(ctx context.Context, spec *ModelSpec, inputQuery string) ([]PredictRow, error) {
	sql, err := PredictSQL(spec, inputQuery)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer("predict")
	defer func() {
		metrics.QueryLatency.WithLabelValues("predict").Observe(timer.Stop().Seconds())
	}()

	it, err := t.read(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ML.PREDICT query failed")
	}

	var rows []PredictRow
	for {
		row := make(PredictRow)
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read prediction row")
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Weights returns the learned coefficients of a linear model.
func (t *Trainer) Weights(ctx context.Context, spec *ModelSpec) ([]ModelWeight, error) {
	sql, err := WeightsSQL(spec)
	if err != nil {
		return nil, err
	}

	it, err := t.read(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ML.WEIGHTS query failed")
	}

	var weights []ModelWeight
	for {
		var w ModelWeight
		err := it.Next(&w)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read weight row")
		}
		weights = append(weights, w)
	}

	return weights, nil
}

// read runs a query and returns its row iterator.
func (t *Trainer) read(ctx context.Context, sql string) (*bigquery.RowIterator, error) {
	q := t.client.Query(sql)
	q.Location = t.location
	return q.Read(ctx)
}
