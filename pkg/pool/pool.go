// Package pool provides typed object pooling for the hot path of the
// export pipeline. Records flow from the BigQuery source through the
// transform workers to the CSV sinks at high volume, so they are
// recycled rather than allocated per row.
//
// Example usage:
//
//	record := pool.GetRecord()
//	defer record.Release()
//
//	record.SetData("fare_amount", 11.3)
package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a generic object pool with type safety. It wraps sync.Pool
// with statistics tracking and automatic reset. Safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
	}
}

// New creates a typed pool. The new function is called when the pool is
// empty; the optional reset function is called before an object is
// returned to the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   newFn,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one if necessary.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	obj := p.pool.Get().(T)
	atomic.AddInt64(&p.stats.hits, 1)
	return obj
}

// Put returns an object to the pool, resetting it first when a reset
// function was configured.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns allocation and usage counters for monitoring.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits)
}

// RecordMetadata carries provenance and routing information for a record
// as it moves through an export pipeline. All fields are optional.
type RecordMetadata struct {
	// Source identifies the originating connector (e.g., "bigquery")
	Source string `json:"source,omitempty"`
	// Table is the source table or query label
	Table string `json:"table,omitempty"`
	// Split is the dataset split the record belongs to ("train", "eval")
	Split string `json:"split,omitempty"`
	// Offset is the row position within the source stream
	Offset int64 `json:"offset,omitempty"`
	// Timestamp when the record was read
	Timestamp time.Time `json:"timestamp"`
	// Custom metadata fields for extensibility
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is the unified row type moved through pipelines. It is obtained
// from the global pool with GetRecord and returned with Release.
type Record struct {
	// ID is a unique identifier for the record
	ID string `json:"id"`
	// Data contains the row values keyed by column name
	Data map[string]interface{} `json:"data"`
	// Metadata contains source, split, and timing information
	Metadata RecordMetadata `json:"metadata"`
}

// RecordPool recycles Record objects. Records are pre-allocated with a
// 16-capacity data map and fully cleared before reuse.
var RecordPool = New(
	func() *Record {
		return &Record{
			Data: make(map[string]interface{}, 16),
		}
	},
	func(r *Record) {
		r.ID = ""
		for k := range r.Data {
			delete(r.Data, k)
		}
		if r.Metadata.Custom != nil {
			for k := range r.Metadata.Custom {
				delete(r.Metadata.Custom, k)
			}
		}
		r.Metadata = RecordMetadata{}
	},
)

// BatchSlicePool recycles []*Record slices used by the batch collector.
// Slices are truncated by the caller before Put.
var BatchSlicePool = New[[]*Record](
	func() []*Record {
		return make([]*Record, 0, 1000)
	},
	nil,
)

// GetRecord retrieves a Record from the global pool.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now()
	return r
}

// NewRecord retrieves a pooled Record and populates it with the given
// source and data map. The map contents are copied into the pooled map.
func NewRecord(source string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.Metadata.Source = source
	for k, v := range data {
		r.Data[k] = v
	}
	return r
}

// GetBatchSlice retrieves a record slice with at least the given capacity.
func GetBatchSlice(capacity int) []*Record {
	s := BatchSlicePool.Get()
	if cap(s) < capacity {
		s = make([]*Record, 0, capacity)
	}
	return s[:0]
}

// PutBatchSlice returns a record slice to the pool. The records it
// holds are not released; the caller owns them.
func PutBatchSlice(s []*Record) {
	BatchSlicePool.Put(s[:0])
}

// SetData sets a data value on the record.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = make(map[string]interface{}, 16)
	}
	r.Data[key] = value
}

// GetData retrieves a data value from the record.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	v, ok := r.Data[key]
	return v, ok
}

// SetSplit tags the record with a dataset split name.
func (r *Record) SetSplit(split string) {
	r.Metadata.Split = split
}

// GetSplit returns the record's dataset split name.
func (r *Record) GetSplit() string {
	return r.Metadata.Split
}

// SetCustom sets a custom metadata value.
func (r *Record) SetCustom(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = make(map[string]interface{}, 4)
	}
	r.Metadata.Custom[key] = value
}

// Release returns the record to the global pool. The record must not be
// used after Release.
func (r *Record) Release() {
	RecordPool.Put(r)
}
