// Package workflow wires datasets, the BQML trainer, connectors, and
// the export pipeline into the operations the CLI exposes: train a
// model, inspect it, evaluate it, export its dataset, and hand training
// off to the managed training service.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/zenithml/zenith/pkg/bqml"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/dataset"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/evaluate"
	"github.com/zenithml/zenith/pkg/logger"
)

// TrainOptions select the dataset and model for a training run.
type TrainOptions struct {
	// DatasetName is a registered dataset, e.g. "natality"
	DatasetName string
	// ModelName names the model inside cfg.GCP.Dataset
	ModelName string
	// ModelType defaults to linear_reg when empty
	ModelType string
	// SampleEveryN keeps one row in N of the training split (0 = all)
	SampleEveryN int
	// Limit caps training rows (0 = unlimited)
	Limit int64
	// ModelOptions are extra OPTIONS() entries passed to CREATE MODEL
	ModelOptions map[string]string
	// InputSQL replaces the prediction input with an arbitrary SELECT
	InputSQL string
	// Features is an inline single-row prediction input (column -> value)
	Features map[string]string
}

// modelSpec builds the BQML model spec for a dataset and options pair.
func modelSpec(cfg *config.BaseConfig, ds dataset.Dataset, opts *TrainOptions) (*bqml.ModelSpec, error) {
	modelType, err := bqml.ParseModelType(opts.ModelType)
	if err != nil {
		return nil, err
	}

	spec := &bqml.ModelSpec{
		Dataset:     cfg.GCP.Dataset,
		Name:        opts.ModelName,
		Type:        modelType,
		LabelColumn: ds.Label(),
		Options:     opts.ModelOptions,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Train creates or replaces a model trained on the dataset's training
// split.
func Train(ctx context.Context, cfg *config.BaseConfig, opts *TrainOptions) error {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return err
	}

	spec, err := modelSpec(cfg, ds, opts)
	if err != nil {
		return err
	}

	trainer, err := bqml.NewTrainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer trainer.Close()

	query := ds.Query(dataset.SplitTrain, dataset.QueryOptions{
		SampleEveryN: opts.SampleEveryN,
		Limit:        opts.Limit,
	})

	logger.Get().Info("training model",
		zap.String("dataset", ds.Name()),
		zap.String("model", spec.FQName()),
		zap.Int("sample_every_n", opts.SampleEveryN))

	return trainer.Train(ctx, spec, query)
}

// TrainingInfo returns the loss curve of a trained model.
func TrainingInfo(ctx context.Context, cfg *config.BaseConfig, opts *TrainOptions) ([]bqml.TrainingIteration, error) {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return nil, err
	}

	spec, err := modelSpec(cfg, ds, opts)
	if err != nil {
		return nil, err
	}

	trainer, err := bqml.NewTrainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer trainer.Close()

	return trainer.TrainingInfo(ctx, spec)
}

// EvaluationResult pairs the server-side metrics with an optional
// client-side recomputation over the same rows.
type EvaluationResult struct {
	Server *bqml.RegressionEvaluation `json:"server"`
	Client *evaluate.Metrics          `json:"client,omitempty"`
}

// Evaluate runs ML.EVALUATE against the dataset's evaluation split.
// When crossCheck is set, predictions for the same split are pulled
// back and MAE/MSE/RMSE/R2 are recomputed locally as a sanity check on
// the export path.
func Evaluate(ctx context.Context, cfg *config.BaseConfig, opts *TrainOptions, crossCheck bool) (*EvaluationResult, error) {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return nil, err
	}

	spec, err := modelSpec(cfg, ds, opts)
	if err != nil {
		return nil, err
	}

	trainer, err := bqml.NewTrainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer trainer.Close()

	evalQuery := ds.Query(dataset.SplitEval, dataset.QueryOptions{
		SampleEveryN: opts.SampleEveryN,
		Limit:        opts.Limit,
	})

	server, err := trainer.Evaluate(ctx, spec, evalQuery)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{Server: server}
	if !crossCheck {
		return result, nil
	}

	rows, err := trainer.Predict(ctx, spec, evalQuery)
	if err != nil {
		return nil, err
	}

	client, err := clientMetrics(rows, ds.Label())
	if err != nil {
		return nil, err
	}
	result.Client = client

	return result, nil
}

// Predict runs ML.PREDICT. Input rows come from, in order of
// precedence: an arbitrary SELECT (InputSQL), a single inline feature
// row (Features), or the dataset's evaluation split.
func Predict(ctx context.Context, cfg *config.BaseConfig, opts *TrainOptions) ([]bqml.PredictRow, error) {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return nil, err
	}

	spec, err := modelSpec(cfg, ds, opts)
	if err != nil {
		return nil, err
	}

	trainer, err := bqml.NewTrainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer trainer.Close()

	inputQuery := strings.TrimSpace(opts.InputSQL)
	if inputQuery == "" && len(opts.Features) > 0 {
		inputQuery, err = inlineFeatureSelect(opts.Features)
		if err != nil {
			return nil, err
		}
	}
	if inputQuery == "" {
		inputQuery = ds.Query(dataset.SplitEval, dataset.QueryOptions{
			SampleEveryN: opts.SampleEveryN,
			Limit:        opts.Limit,
		})
	}

	return trainer.Predict(ctx, spec, inputQuery)
}

// inlineFeatureSelect renders a single-row SELECT from literal feature
// values. Column names must be valid identifiers; non-numeric values
// are escaped and quoted.
func inlineFeatureSelect(features map[string]string) (string, error) {
	cols := make([]string, 0, len(features))
	for col := range features {
		if !config.IsValidIdentifier(col) {
			return "", errors.Newf(errors.ErrorTypeValidation, "invalid feature column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, fmt.Sprintf("%s AS %s", sqlLiteral(features[col]), col))
	}
	return "SELECT " + strings.Join(parts, ", "), nil
}

// sqlLiteral renders a flag value as a SQL literal.
func sqlLiteral(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	switch strings.ToLower(v) {
	case "true", "false":
		return strings.ToLower(v)
	}
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// Weights returns the learned coefficients of a trained model.
func Weights(ctx context.Context, cfg *config.BaseConfig, opts *TrainOptions) ([]bqml.ModelWeight, error) {
	ds, err := dataset.Get(opts.DatasetName)
	if err != nil {
		return nil, err
	}

	spec, err := modelSpec(cfg, ds, opts)
	if err != nil {
		return nil, err
	}

	trainer, err := bqml.NewTrainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer trainer.Close()

	return trainer.Weights(ctx, spec)
}

// clientMetrics extracts label and prediction columns from ML.PREDICT
// output and recomputes regression metrics locally.
func clientMetrics(rows []bqml.PredictRow, label string) (*evaluate.Metrics, error) {
	predictedCol := "predicted_" + label

	yTrue := make([]float64, 0, len(rows))
	yPred := make([]float64, 0, len(rows))
	for _, row := range rows {
		truth, err := asFloat(row[label])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "bad label value")
		}
		pred, err := asFloat(row[predictedCol])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "bad prediction value")
		}
		yTrue = append(yTrue, truth)
		yPred = append(yPred, pred)
	}

	return evaluate.Regression(yTrue, yPred)
}

func asFloat(v bigquery.Value) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "value %v is not numeric", v)
	}
}
