// Package evaluate computes regression metrics client-side. It mirrors
// the ML.EVALUATE columns so exported predictions can be checked
// against the server-side numbers without another BigQuery round trip.
package evaluate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/zenithml/zenith/pkg/errors"
)

// Metrics holds regression quality metrics for predictions against
// ground truth.
type Metrics struct {
	MeanAbsoluteError float64 `json:"mean_absolute_error"`
	MeanSquaredError  float64 `json:"mean_squared_error"`
	RootMeanSquared   float64 `json:"root_mean_squared_error"`
	R2Score           float64 `json:"r2_score"`
	Count             int     `json:"count"`
}

// Regression computes MAE, MSE, RMSE, and R2 for the given predictions.
func Regression(yTrue, yPred []float64) (*Metrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"length mismatch: %d labels vs %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "empty input")
	}

	n := float64(len(yTrue))

	var sumAbs, sumSq float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
	}

	mse := sumSq / n

	return &Metrics{
		MeanAbsoluteError: sumAbs / n,
		MeanSquaredError:  mse,
		RootMeanSquared:   math.Sqrt(mse),
		R2Score:           r2Score(yTrue, sumSq),
		Count:             len(yTrue),
	}, nil
}

// r2Score computes the coefficient of determination from the residual
// sum of squares. A constant label vector yields R2 = 0 by convention.
func r2Score(yTrue []float64, residualSS float64) float64 {
	mean := stat.Mean(yTrue, nil)

	var totalSS float64
	for _, y := range yTrue {
		d := y - mean
		totalSS += d * d
	}

	if totalSS == 0 {
		return 0
	}
	return 1 - residualSS/totalSS
}
