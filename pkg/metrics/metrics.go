// Package metrics records pipeline run metrics with Prometheus.
//
// # Overview
//
// A Collector owns a registry holding:
//   - records read and matched per command
//   - container blocks read
//   - run duration and failures by error type
//   - throughput of the last run
//
// # Basic Usage
//
//	collector := metrics.NewCollector("count", nil)
//	collector.RecordsRead(1)
//	collector.ObserveRun(time.Since(start), err)
//	collector.WriteTextfile("/var/lib/node_exporter/avrostream.prom")
//
// The textfile format is the one read by the node exporter textfile
// collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

const namespace = "avrostream"

// Collector records the metrics of runs of one command. It is safe for
// concurrent use.
type Collector struct {
	command  string
	registry *prometheus.Registry

	recordsRead    prometheus.Counter
	recordsMatched prometheus.Counter
	blocksRead     prometheus.Counter
	runDuration    *prometheus.HistogramVec
	runFailures    *prometheus.CounterVec
	throughput     prometheus.Gauge

	tracker *ThroughputTracker
}

// NewCollector creates a collector labelled with command. A nil registry
// gets a fresh one.
func NewCollector(command string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	labels := prometheus.Labels{"command": command}

	c := &Collector{
		command:  command,
		registry: registry,
		recordsRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_read_total",
			Help:        "Records decoded from input streams",
			ConstLabels: labels,
		}),
		recordsMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_matched_total",
			Help:        "Records that passed the filter and reached the handler",
			ConstLabels: labels,
		}),
		blocksRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "blocks_read_total",
			Help:        "Container blocks entered",
			ConstLabels: labels,
		}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Duration of pipeline runs",
			ConstLabels: labels,
			Buckets: []float64{
				0.01, // 10ms - tiny inputs
				0.1,
				1,
				10,
				60,
				600, // 10m - large multi-file runs
			},
		}, []string{"status"}),
		runFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "run_failures_total",
			Help:        "Failed runs by error type",
			ConstLabels: labels,
		}, []string{"error_type"}),
		throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "throughput_records_per_second",
			Help:        "Records read per second over the last run",
			ConstLabels: labels,
		}),
	}
	c.tracker = NewThroughputTracker(c.throughput)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordsRead counts n decoded records.
func (c *Collector) RecordsRead(n int64) {
	c.recordsRead.Add(float64(n))
	c.tracker.Increment(n)
}

// RecordsMatched counts n records handed to the handler.
func (c *Collector) RecordsMatched(n int64) {
	c.recordsMatched.Add(float64(n))
}

// BlocksRead counts n container blocks.
func (c *Collector) BlocksRead(n int64) {
	c.blocksRead.Add(float64(n))
}

// ObserveRun records the duration and outcome of a run and publishes the
// run's throughput.
func (c *Collector) ObserveRun(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		c.runFailures.WithLabelValues(string(errors.TypeOf(err))).Inc()
	}
	c.runDuration.WithLabelValues(status).Observe(d.Seconds())
	c.tracker.GetAndReset()
}

// WriteTextfile writes every metric of the registry to path in the
// Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics textfile").
			WithDetail("path", path)
	}
	return nil
}

// Timer measures the duration of an operation from its creation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second between resets.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	gauge     prometheus.Gauge
}

// NewThroughputTracker publishes to gauge, which may be nil.
func NewThroughputTracker(gauge prometheus.Gauge) *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now(), gauge: gauge}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the records per second since the last reset, sets
// the gauge and starts a new period.
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
	if t.gauge != nil {
		t.gauge.Set(throughput)
	}
	return throughput
}
