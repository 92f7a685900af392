package bqml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *ModelSpec {
	return &ModelSpec{
		Dataset:     "demo",
		Name:        "babyweight_model",
		Type:        ModelTypeLinearRegression,
		LabelColumn: "weight_pounds",
	}
}

func TestParseModelType(t *testing.T) {
	mt, err := ParseModelType("")
	require.NoError(t, err)
	assert.Equal(t, ModelTypeLinearRegression, mt)

	mt, err = ParseModelType("logistic_reg")
	require.NoError(t, err)
	assert.Equal(t, ModelTypeLogisticRegression, mt)

	_, err = ParseModelType("dnn_regressor")
	assert.Error(t, err)
}

func TestCreateModelSQL(t *testing.T) {
	sql, err := CreateModelSQL(validSpec(), "SELECT weight_pounds, is_male FROM src")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "CREATE OR REPLACE MODEL `demo.babyweight_model`"))
	assert.Contains(t, sql, "model_type='linear_reg'")
	assert.Contains(t, sql, "input_label_cols=['weight_pounds']")
	assert.True(t, strings.HasSuffix(sql, ") AS\nSELECT weight_pounds, is_male FROM src"))
}

func TestCreateModelSQLOptionsSorted(t *testing.T) {
	spec := validSpec()
	spec.Options = map[string]string{
		"max_iterations": "10",
		"l2_reg":         "0.1",
	}

	sql, err := CreateModelSQL(spec, "SELECT 1")
	require.NoError(t, err)

	// Options render in sorted key order for deterministic statements
	l2 := strings.Index(sql, "l2_reg=0.1")
	maxIter := strings.Index(sql, "max_iterations=10")
	require.NotEqual(t, -1, l2)
	require.NotEqual(t, -1, maxIter)
	assert.Less(t, l2, maxIter)
}

func TestCreateModelSQLRejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelSpec)
	}{
		{"dataset injection", func(s *ModelSpec) { s.Dataset = "demo`; DROP TABLE x; --" }},
		{"model injection", func(s *ModelSpec) { s.Name = "m; DELETE" }},
		{"label injection", func(s *ModelSpec) { s.LabelColumn = "weight'] , ['x" }},
		{"empty dataset", func(s *ModelSpec) { s.Dataset = "" }},
		{"leading digit", func(s *ModelSpec) { s.Name = "1model" }},
		{"bad option key", func(s *ModelSpec) { s.Options = map[string]string{"a b": "1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			_, err := CreateModelSQL(spec, "SELECT 1")
			assert.Error(t, err)
		})
	}
}

func TestTrainingInfoSQL(t *testing.T) {
	sql, err := TrainingInfoSQL(validSpec())
	require.NoError(t, err)

	assert.Contains(t, sql, "ML.TRAINING_INFO(MODEL `demo.babyweight_model`)")
	assert.Contains(t, sql, "iteration, loss, eval_loss, learning_rate, duration_ms")
	assert.Contains(t, sql, "ORDER BY iteration")
}

func TestEvaluateSQL(t *testing.T) {
	sql, err := EvaluateSQL(validSpec(), "SELECT * FROM eval_rows")
	require.NoError(t, err)
	assert.Contains(t, sql, "ML.EVALUATE(MODEL `demo.babyweight_model`, (")
	assert.Contains(t, sql, "SELECT * FROM eval_rows")
}

func TestEvaluateSQLHeldOut(t *testing.T) {
	sql, err := EvaluateSQL(validSpec(), "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM ML.EVALUATE(MODEL `demo.babyweight_model`)", sql)
}

func TestPredictSQL(t *testing.T) {
	sql, err := PredictSQL(validSpec(), "SELECT * FROM input_rows")
	require.NoError(t, err)
	assert.Contains(t, sql, "ML.PREDICT(MODEL `demo.babyweight_model`, (")
	assert.Contains(t, sql, "SELECT * FROM input_rows")
}

func TestWeightsSQL(t *testing.T) {
	sql, err := WeightsSQL(validSpec())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT processed_input, weight FROM ML.WEIGHTS(MODEL `demo.babyweight_model`)", sql)
}
