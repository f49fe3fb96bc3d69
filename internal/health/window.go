// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package health

import (
	"sync"
	"time"
)

// DefaultWindowSpan is the period over which the error rate is computed
// when no span is configured.
const DefaultWindowSpan = 5 * time.Minute

type observation struct {
	at     time.Time
	failed bool
}

// Window records operation outcomes over a sliding time span and reports
// the failure rate across them. Observations come from liveness probes
// and from handled platform failures; anything older than the span is
// discarded on the next record or read.
type Window struct {
	mu      sync.Mutex
	span    time.Duration
	obs     []observation
	nowFunc func() time.Time // for testing
}

// NewWindow creates a Window covering span. A non-positive span falls
// back to DefaultWindowSpan.
func NewWindow(span time.Duration) *Window {
	if span <= 0 {
		span = DefaultWindowSpan
	}
	return &Window{
		span:    span,
		nowFunc: time.Now,
	}
}

// RecordSuccess adds a successful observation.
func (w *Window) RecordSuccess() { w.record(false) }

// RecordFailure adds a failed observation.
func (w *Window) RecordFailure() { w.record(true) }

func (w *Window) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked()
	w.obs = append(w.obs, observation{at: w.nowFunc(), failed: failed})
}

// Rate returns the fraction of failed observations within the span,
// between 0 and 1. An empty window reports 0.
func (w *Window) Rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked()

	if len(w.obs) == 0 {
		return 0
	}
	failures := 0
	for _, o := range w.obs {
		if o.failed {
			failures++
		}
	}
	return float64(failures) / float64(len(w.obs))
}

// Observations returns the total and failed observation counts currently
// inside the span.
func (w *Window) Observations() (total, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked()

	for _, o := range w.obs {
		if o.failed {
			failures++
		}
	}
	return len(w.obs), failures
}

// pruneLocked drops observations that have aged out of the span.
// The caller MUST hold w.mu.
func (w *Window) pruneLocked() {
	cutoff := w.nowFunc().Add(-w.span)
	i := 0
	for i < len(w.obs) && !w.obs[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.obs = append(w.obs[:0], w.obs[i:]...)
	}
}

// SetNowFunc overrides the time source (for testing).
func (w *Window) SetNowFunc(fn func() time.Time) {
	w.mu.Lock()
	w.nowFunc = fn
	w.mu.Unlock()
}
