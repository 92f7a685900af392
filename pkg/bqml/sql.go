package bqml

import (
	"fmt"
	"sort"
	"strings"
)

// CreateModelSQL renders the CREATE OR REPLACE MODEL statement that
// trains the model on sourceQuery. The label column is declared through
// input_label_cols; extra options are appended in sorted order so the
// rendered statement is deterministic.
func CreateModelSQL(spec *ModelSpec, sourceQuery string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE MODEL %s\n", spec.FQName())
	fmt.Fprintf(&b, "OPTIONS(model_type='%s', input_label_cols=['%s']", spec.Type, spec.LabelColumn)

	keys := make([]string, 0, len(spec.Options))
	for k := range spec.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=%s", k, spec.Options[k])
	}

	b.WriteString(") AS\n")
	b.WriteString(sourceQuery)

	return b.String(), nil
}

// TrainingInfoSQL renders the ML.TRAINING_INFO query for a model,
// ordered by iteration so callers see the loss curve in training order.
func TrainingInfoSQL(spec *ModelSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT iteration, loss, eval_loss, learning_rate, duration_ms\nFROM ML.TRAINING_INFO(MODEL %s)\nORDER BY iteration",
		spec.FQName()), nil
}

// EvaluateSQL renders the ML.EVALUATE query against evalQuery. When
// evalQuery is empty, BQML evaluates on the data split held out during
// training.
func EvaluateSQL(spec *ModelSpec, evalQuery string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if evalQuery == "" {
		return fmt.Sprintf("SELECT * FROM ML.EVALUATE(MODEL %s)", spec.FQName()), nil
	}
	return fmt.Sprintf("SELECT * FROM ML.EVALUATE(MODEL %s, (\n%s\n))", spec.FQName(), evalQuery), nil
}

// PredictSQL renders the ML.PREDICT query over inputQuery. The result
// carries the input columns plus a predicted_<label> column.
func PredictSQL(spec *ModelSpec, inputQuery string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM ML.PREDICT(MODEL %s, (\n%s\n))", spec.FQName(), inputQuery), nil
}

// WeightsSQL renders the ML.WEIGHTS query exposing the learned
// coefficients of a linear model.
func WeightsSQL(spec *ModelSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT processed_input, weight FROM ML.WEIGHTS(MODEL %s)", spec.FQName()), nil
}
