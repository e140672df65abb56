package ingest

import "sync"

// maxSampledErrors caps how many row failures a report keeps verbatim.
const maxSampledErrors = 20

// RowFailure is one failed row and its reason.
type RowFailure struct {
	TUI string
	Err error
}

// Report aggregates per-row outcomes for one run. Safe for concurrent
// use by the engine's row goroutines.
type Report struct {
	mu       sync.Mutex
	applied  int64
	skipped  int64
	failed   int64
	failures []RowFailure
}

func NewReport() *Report {
	return &Report{}
}

func (r *Report) RecordApplied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied++
}

// RecordSkipped notes a row that never reached the sink (malformed
// shape straight out of the reader).
func (r *Report) RecordSkipped(tui string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
	if len(r.failures) < maxSampledErrors {
		r.failures = append(r.failures, RowFailure{TUI: tui, Err: err})
	}
}

func (r *Report) RecordFailed(tui string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	if len(r.failures) < maxSampledErrors {
		r.failures = append(r.failures, RowFailure{TUI: tui, Err: err})
	}
}

func (r *Report) Applied() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

func (r *Report) Skipped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

func (r *Report) Failed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Failures returns the sampled row failures.
func (r *Report) Failures() []RowFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RowFailure, len(r.failures))
	copy(out, r.failures)
	return out
}
