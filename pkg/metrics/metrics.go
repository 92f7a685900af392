// Package metrics provides Prometheus-backed observability for Zenith:
// rows read from BigQuery, records exported to Cloud Storage, query and
// training durations, and pipeline throughput.
//
// Example usage:
//
//	metrics.RowsRead.WithLabelValues("bigquery", "taxifare").Add(1000)
//
//	timer := metrics.NewTimer("train")
//	runTraining()
//	metrics.TrainingDuration.WithLabelValues("taxifare_model").Observe(timer.Stop().Seconds())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts rows read from a source.
	// Labels: source (connector name), dataset
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenith_rows_read_total",
			Help: "Total number of rows read from sources",
		},
		[]string{"source", "dataset"},
	)

	// RecordsExported counts records written to a destination.
	// Labels: destination (connector name), split (train/eval), status
	RecordsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenith_records_exported_total",
			Help: "Total number of records written to destinations",
		},
		[]string{"destination", "split", "status"},
	)

	// BytesWritten counts bytes written to a destination.
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenith_bytes_written_total",
			Help: "Total bytes written to destinations",
		},
		[]string{"destination"},
	)

	// QueryLatency tracks BigQuery query latency in seconds.
	// Labels: operation (query/evaluate/predict/training_info)
	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zenith_query_latency_seconds",
			Help:    "BigQuery query latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"operation"},
	)

	// TrainingDuration tracks end-to-end model training duration in seconds.
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zenith_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"model"},
	)

	// Throughput tracks records per second per pipeline.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zenith_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"source", "destination"},
	)

	// QueueDepth tracks internal channel depths.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zenith_queue_depth",
			Help: "Current queue depth",
		},
		[]string{"queue_name"},
	)
)

// Collector provides a per-component metrics view. Components record
// named values that are surfaced through the connector Metrics() map.
type Collector struct {
	name      string
	startTime time.Time
	values    map[string]interface{}
	mu        sync.RWMutex
}

// NewCollector creates a metrics collector for a component.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		values:    make(map[string]interface{}),
	}
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// Record records a named metric value
func (c *Collector) Record(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

// Add increments a named counter value
func (c *Collector) Add(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.values[name].(float64); ok {
		c.values[name] = cur + delta
	} else {
		c.values[name] = delta
	}
}

// GetAll returns all current metric values
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.values)+3)
	for k, v := range c.values {
		out[k] = v
	}
	out["component"] = c.name
	out["start_time"] = c.startTime
	out["uptime"] = time.Since(c.startTime).Seconds()
	return out
}

// Timer measures operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Stop returns the elapsed duration since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows and
// reports them to the Throughput gauge. Safe for concurrent use.
type ThroughputTracker struct {
	mu          sync.Mutex
	count       int64
	lastReset   time.Time
	source      string
	destination string
}

// NewThroughputTracker creates a tracker for a source/destination pair.
func NewThroughputTracker(source, destination string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset:   time.Now(),
		source:      source,
		destination: destination,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes the current throughput, updates the Prometheus
// gauge, resets the counter, and returns the value.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.source, t.destination).Set(throughput)

	return throughput
}
