// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics of a remapping run.
//
// The package exposes a narrow Backend interface (counters and duration
// observations) behind a global, pluggable backend that defaults to a no-op,
// so instrumentation is always safe to call. Concrete systems live in the
// prompush and datadog subpackages.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the Record helpers.
const (
	StepTotal     = "idremap_step_total"
	StepDuration  = "idremap_step_duration_seconds"
	RowsTotal     = "idremap_rows_total"
	ChunksTotal   = "idremap_chunks_total"
	OutcomesTotal = "idremap_field_outcomes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one run step
// (load_lookups, pipeline, reports).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments a row counter. Kinds: read, written, row_faults.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordChunks increments the processed chunk counter.
func RecordChunks(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(ChunksTotal, float64(delta), Labels{"job": job})
}

// RecordOutcomes adds per-field outcome counts, e.g. matched or gated-blank.
func RecordOutcomes(job, field string, counts map[string]int64) {
	b := current()
	for outcome, n := range counts {
		if n <= 0 {
			continue
		}
		b.IncCounter(OutcomesTotal, float64(n), Labels{"job": job, "field": field, "outcome": outcome})
	}
}
