// Package models provides the data models shared by connectors and the
// pipeline engine. The record types are re-exported from the pool
// package so hot-path code and public APIs use the same pooled type.
package models

import (
	"github.com/zenithml/zenith/pkg/pool"
)

// Record is the unified row type moved through pipelines.
type Record = pool.Record

// RecordMetadata carries provenance and routing information.
type RecordMetadata = pool.RecordMetadata

// NewRecord creates a pooled record with the given source and data.
var NewRecord = pool.NewRecord

// GetRecord retrieves an empty record from the pool.
var GetRecord = pool.GetRecord

// RecordBatch groups records for bulk processing with minimal
// allocations.
type RecordBatch struct {
	// Records holds the actual record pointers
	Records []*Record
	size    int
}

// NewRecordBatch creates a batch with the given capacity.
func NewRecordBatch(capacity int) *RecordBatch {
	return &RecordBatch{
		Records: make([]*Record, 0, capacity),
	}
}

// AddRecord appends a record to the batch.
func (rb *RecordBatch) AddRecord(r *Record) {
	rb.Records = append(rb.Records, r)
	rb.size++
}

// Reset clears the batch for reuse without deallocating memory.
func (rb *RecordBatch) Reset() {
	rb.Records = rb.Records[:0]
	rb.size = 0
}

// Size returns the current number of records in the batch.
func (rb *RecordBatch) Size() int {
	return rb.size
}
