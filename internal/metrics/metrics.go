// Package metrics is a small instrumentation facade. The pipeline code calls
// IncCounter/ObserveHistogram unconditionally; what happens to the values is
// decided once at startup by installing a Backend. The default backend drops
// everything, so library code never checks whether metrics are enabled.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Labels carry low-cardinality dimensions (step, status, kind).
type Labels map[string]string

// Backend receives every metric sample.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer samples.
type Flusher interface {
	Flush() error
}

// Closer is implemented by backends that own goroutines or connections.
type Closer interface {
	Close() error
}

// holder keeps the concrete type stored in the atomic.Value constant across
// backend swaps; atomic.Value rejects stores of differing concrete types.
type holder struct {
	b Backend
}

var backend atomic.Value // holder

func init() {
	backend.Store(holder{b: nopBackend{}})
}

func current() Backend {
	return backend.Load().(holder).b
}

// SetBackend installs the process-wide backend. Call once at startup, before
// any pipeline work runs.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	backend.Store(holder{b: b})
}

// IncCounter adds delta to a named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of a named distribution.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered samples out of the current backend, when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close shuts down the current backend and resets to the nop backend.
func Close() error {
	b := current()
	backend.Store(holder{b: nopBackend{}})
	if c, ok := b.(Closer); ok {
		return c.Close()
	}
	return nil
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// Recorder is an in-memory backend for tests.
type Recorder struct {
	mu         sync.Mutex
	Counters   map[string]float64
	Histograms map[string][]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		Counters:   make(map[string]float64),
		Histograms: make(map[string][]float64),
	}
}

func (r *Recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counters[key(name, labels)] += delta
}

func (r *Recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	r.Histograms[k] = append(r.Histograms[k], value)
}

// Counter returns the accumulated value for a name+labels combination.
func (r *Recorder) Counter(name string, labels Labels) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counters[key(name, labels)]
}

func key(name string, labels Labels) string {
	k := name
	for _, lk := range []string{"step", "status", "kind"} {
		if v, ok := labels[lk]; ok {
			k += "|" + lk + ":" + v
		}
	}
	return k
}
