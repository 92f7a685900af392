// Package bqml renders and runs BigQuery ML statements. It covers the
// linear-regression workflow: CREATE MODEL training, ML.TRAINING_INFO
// inspection, ML.EVALUATE, ML.PREDICT, and ML.WEIGHTS.
package bqml

import (
	"fmt"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/errors"
)

// ModelType is a BQML model type accepted by the model_type option.
type ModelType string

const (
	// ModelTypeLinearRegression is BQML linear regression
	ModelTypeLinearRegression ModelType = "linear_reg"
	// ModelTypeLogisticRegression is BQML logistic regression
	ModelTypeLogisticRegression ModelType = "logistic_reg"
)

// ParseModelType converts a string into a ModelType.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(s) {
	case "", ModelTypeLinearRegression:
		return ModelTypeLinearRegression, nil
	case ModelTypeLogisticRegression:
		return ModelTypeLogisticRegression, nil
	default:
		return "", errors.Newf(errors.ErrorTypeValidation, "unsupported model type: %s", s)
	}
}

// ModelSpec identifies a BQML model and its training options.
type ModelSpec struct {
	// Dataset is the BigQuery dataset holding the model
	Dataset string
	// Name is the model name within the dataset
	Name string
	// Type selects the BQML model type
	Type ModelType
	// LabelColumn is the column the model predicts
	LabelColumn string
	// Options holds extra OPTIONS entries rendered verbatim,
	// e.g. {"max_iterations": "10"}
	Options map[string]string
}

// Validate checks that all identifiers are safe to interpolate into SQL.
// BigQuery identifiers cannot be bound as query parameters, so they are
// restricted to [A-Za-z_][A-Za-z0-9_]* instead.
func (s *ModelSpec) Validate() error {
	if !config.IsValidIdentifier(s.Dataset) {
		return errors.Newf(errors.ErrorTypeValidation, "invalid dataset identifier: %q", s.Dataset)
	}
	if !config.IsValidIdentifier(s.Name) {
		return errors.Newf(errors.ErrorTypeValidation, "invalid model identifier: %q", s.Name)
	}
	if !config.IsValidIdentifier(s.LabelColumn) {
		return errors.Newf(errors.ErrorTypeValidation, "invalid label column: %q", s.LabelColumn)
	}
	if _, err := ParseModelType(string(s.Type)); err != nil {
		return err
	}
	for k := range s.Options {
		if !config.IsValidIdentifier(k) {
			return errors.Newf(errors.ErrorTypeValidation, "invalid option name: %q", k)
		}
	}
	return nil
}

// FQName returns the backtick-quoted dataset.model path.
func (s *ModelSpec) FQName() string {
	return fmt.Sprintf("`%s.%s`", s.Dataset, s.Name)
}
