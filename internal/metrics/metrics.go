// Package metrics is the backend-agnostic metrics facade.
//
// Core code records through a Backend (usually the process default set with
// SetBackend). Concrete backends such as internal/metrics/datadog buffer and
// ship the data; the default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the flattening engine.
const (
	RowsAnalyzed  = "jsonflat_rows_analyzed_total"
	RowsWritten   = "jsonflat_rows_written_total"
	Batches       = "jsonflat_batches_total"
	TypeDrift     = "jsonflat_type_drift_total"
	TablesCreated = "jsonflat_tables_created_total"
	StepDuration  = "jsonflat_step_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

// Nop returns a backend that drops everything.
func Nop() Backend { return nopBackend{} }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs the process default backend. nil restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	current = b
}

// Default returns the process default backend.
func Default() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter records on the default backend.
func IncCounter(name string, delta float64, labels Labels) {
	Default().IncCounter(name, delta, labels)
}

// ObserveHistogram records on the default backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	Default().ObserveHistogram(name, value, labels)
}

// Flush flushes the default backend.
func Flush() error { return Default().Flush() }

// RecordStep observes StepDuration for a step that started at start.
func RecordStep(b Backend, step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.ObserveHistogram(StepDuration, time.Since(start).Seconds(), Labels{"step": step, "status": status})
}

// Recorder is an in-memory Backend for tests.
type Recorder struct {
	mu       sync.Mutex
	Counters map[string]float64
	Samples  map[string][]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Counters: map[string]float64{}, Samples: map[string][]float64{}}
}

func (r *Recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counters[name] += delta
}

func (r *Recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Samples[name] = append(r.Samples[name], value)
}

func (r *Recorder) Flush() error { return nil }

// Counter returns the accumulated value for name.
func (r *Recorder) Counter(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counters[name]
}
