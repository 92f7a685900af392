package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/bqml"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/dataset"
)

func TestModelSpecFromOptions(t *testing.T) {
	cfg := config.NewBaseConfig("test", "training")
	cfg.GCP.Dataset = "demo"

	ds, err := dataset.Get("natality")
	require.NoError(t, err)

	spec, err := modelSpec(cfg, ds, &TrainOptions{
		DatasetName: "natality",
		ModelName:   "babyweight_model",
	})
	require.NoError(t, err)

	assert.Equal(t, "demo", spec.Dataset)
	assert.Equal(t, "babyweight_model", spec.Name)
	assert.Equal(t, bqml.ModelTypeLinearRegression, spec.Type)
	assert.Equal(t, "weight_pounds", spec.LabelColumn)
}

func TestModelSpecRejectsBadModelName(t *testing.T) {
	cfg := config.NewBaseConfig("test", "training")
	cfg.GCP.Dataset = "demo"

	ds, err := dataset.Get("natality")
	require.NoError(t, err)

	_, err = modelSpec(cfg, ds, &TrainOptions{
		DatasetName: "natality",
		ModelName:   "m; DROP TABLE x",
	})
	assert.Error(t, err)
}

func TestClientMetrics(t *testing.T) {
	rows := []bqml.PredictRow{
		{"weight_pounds": 7.5, "predicted_weight_pounds": 7.0},
		{"weight_pounds": 6.0, "predicted_weight_pounds": 6.5},
		{"weight_pounds": 8.0, "predicted_weight_pounds": 8.0},
	}

	m, err := clientMetrics(rows, "weight_pounds")
	require.NoError(t, err)

	assert.Equal(t, 3, m.Count)
	assert.InDelta(t, 1.0/3.0, m.MeanAbsoluteError, 1e-12)
}

func TestClientMetricsRejectsNonNumericLabel(t *testing.T) {
	rows := []bqml.PredictRow{
		{"weight_pounds": "heavy", "predicted_weight_pounds": 7.0},
	}

	_, err := clientMetrics(rows, "weight_pounds")
	assert.Error(t, err)
}

func TestInlineFeatureSelect(t *testing.T) {
	sql, err := inlineFeatureSelect(map[string]string{
		"pickuplat":  "40.75",
		"pickuplon":  "-73.99",
		"passengers": "2",
		"is_male":    "true",
		"city":       "New York",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT 'New York' AS city, true AS is_male, 2 AS passengers, 40.75 AS pickuplat, -73.99 AS pickuplon",
		sql)
}

func TestInlineFeatureSelectRejectsBadColumn(t *testing.T) {
	_, err := inlineFeatureSelect(map[string]string{"a b": "1"})
	assert.Error(t, err)
}

func TestSQLLiteralEscapes(t *testing.T) {
	assert.Equal(t, `'it\'s'`, sqlLiteral("it's"))
	assert.Equal(t, `'a\\b'`, sqlLiteral(`a\b`))
	assert.Equal(t, "1.5", sqlLiteral("1.5"))
	assert.Equal(t, "false", sqlLiteral("FALSE"))
}

func TestAsFloat(t *testing.T) {
	v, err := asFloat(float64(1.5))
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = asFloat(int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = asFloat("nope")
	assert.Error(t, err)
}
