// Package dataset defines the training datasets Zenith works with.
// Each dataset names a BigQuery source, a label column, feature
// columns, a deterministic train/eval split, and a pure row-to-CSV
// transform used by the export pipeline.
package dataset

import (
	"sort"
	"sync"

	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/pool"
)

// QueryOptions tune the rendered source query.
type QueryOptions struct {
	// SampleEveryN keeps roughly one row in N (0 disables sampling).
	// Sampling uses the same row hash as the split, so the sampled
	// subsets of train and eval stay disjoint.
	SampleEveryN int
	// Limit caps the number of rows returned (0 = unlimited)
	Limit int64
}

// Dataset describes a training dataset end to end.
type Dataset interface {
	// Name is the registry key (e.g., "natality", "taxifare")
	Name() string
	// Description is a one-line human-readable summary
	Description() string
	// Label is the target column the model predicts
	Label() string
	// Features are the input columns, in training order
	Features() []string
	// Columns is the CSV column order: label first, then features
	Columns() []string
	// Schema describes the exported rows
	Schema() *core.Schema
	// SplitSpec is the deterministic train/eval split
	SplitSpec() SplitSpec
	// Query renders the BigQuery Standard SQL source query for a split
	Query(split Split, opts QueryOptions) string
	// ToCSV projects a record onto Columns() as CSV fields
	ToCSV(record *pool.Record) ([]string, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dataset)
)

// Register adds a dataset to the global registry. Called from init
// functions of dataset definitions.
func Register(d Dataset) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name()] = d
}

// Get returns a registered dataset by name.
func Get(name string) (Dataset, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "dataset %s not registered", name)
	}
	return d, nil
}

// List returns the names of all registered datasets, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
