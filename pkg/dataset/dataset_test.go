package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/pool"
)

func TestRegistryHasBuiltinDatasets(t *testing.T) {
	names := List()
	assert.Contains(t, names, "natality")
	assert.Contains(t, names, "taxifare")
}

func TestGetUnknownDataset(t *testing.T) {
	_, err := Get("does-not-exist")
	require.Error(t, err)
}

func TestNatalityColumns(t *testing.T) {
	ds, err := Get("natality")
	require.NoError(t, err)

	assert.Equal(t, "weight_pounds", ds.Label())
	assert.Equal(t,
		[]string{"weight_pounds", "is_male", "mother_age", "plurality", "gestation_weeks"},
		ds.Columns())
}

func TestNatalityQueryTrainSplit(t *testing.T) {
	ds, err := Get("natality")
	require.NoError(t, err)

	q := ds.Query(SplitTrain, QueryOptions{})

	assert.Contains(t, q, "publicdata.samples.natality")
	assert.Contains(t, q, "FARM_FINGERPRINT(CONCAT(CAST(year AS STRING), CAST(month AS STRING)))")
	assert.Contains(t, q, "year > 2000")
	assert.Contains(t, q, "weight_pounds > 0")
	assert.Contains(t, q, "gestation_weeks > 0")
	assert.Contains(t, q, "ABS(MOD(hashmonth, 4)) < 3")
	assert.NotContains(t, q, "LIMIT")
}

func TestNatalityQueryEvalSplit(t *testing.T) {
	ds, err := Get("natality")
	require.NoError(t, err)

	q := ds.Query(SplitEval, QueryOptions{})
	assert.Contains(t, q, "ABS(MOD(hashmonth, 4)) >= 3")
}

func TestNatalityQuerySamplingSharesSplitHash(t *testing.T) {
	ds, err := Get("natality")
	require.NoError(t, err)

	train := ds.Query(SplitTrain, QueryOptions{SampleEveryN: 100})
	eval := ds.Query(SplitEval, QueryOptions{SampleEveryN: 100})

	// Both splits sample on the same hash so the subsets stay disjoint
	assert.Contains(t, train, "MOD(ABS(hashmonth), 100) = 0")
	assert.Contains(t, eval, "MOD(ABS(hashmonth), 100) = 0")
	assert.Contains(t, train, "< 3")
	assert.Contains(t, eval, ">= 3")
}

func TestNatalityQueryLimit(t *testing.T) {
	ds, err := Get("natality")
	require.NoError(t, err)

	q := ds.Query(SplitAll, QueryOptions{Limit: 500})
	assert.True(t, strings.HasSuffix(q, "LIMIT 500"))
	assert.NotContains(t, q, "ABS(MOD")
}

func TestTaxifareColumns(t *testing.T) {
	ds, err := Get("taxifare")
	require.NoError(t, err)

	assert.Equal(t, "fare_amount", ds.Label())
	assert.Equal(t,
		[]string{"fare_amount", "pickuplon", "pickuplat", "dropofflon", "dropofflat", "passengers"},
		ds.Columns())
}

func TestTaxifareQueryFilters(t *testing.T) {
	ds, err := Get("taxifare")
	require.NoError(t, err)

	q := ds.Query(SplitTrain, QueryOptions{})

	assert.Contains(t, q, "nyc-tlc.yellow.trips")
	assert.Contains(t, q, "FARM_FINGERPRINT(CAST(pickup_datetime AS STRING))")
	assert.Contains(t, q, "trip_distance > 0")
	assert.Contains(t, q, "fare_amount >= 2.5")
	assert.Contains(t, q, "passenger_count > 0")
	// Fare includes tolls
	assert.Contains(t, q, "tolls_amount + fare_amount")
	assert.Contains(t, q, "ABS(MOD(hashvalue, 4)) < 3")
}

func TestTaxifareToCSV(t *testing.T) {
	ds, err := Get("taxifare")
	require.NoError(t, err)

	record := pool.NewRecord("test", map[string]interface{}{
		"fare_amount": 9.5,
		"pickuplon":   -73.98,
		"pickuplat":   40.75,
		"dropofflon":  -73.97,
		"dropofflat":  40.76,
		"passengers":  2.0,
	})
	defer record.Release()

	row, err := ds.ToCSV(record)
	require.NoError(t, err)
	assert.Equal(t, []string{"9.5", "-73.98", "40.75", "-73.97", "40.76", "2"}, row)
}
