// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package breaker gates calls to flaky services. Failures are counted
// only from explicit Report calls, never inferred from classification,
// so call sites stay in control of what trips the circuit.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ballast-dev/ballast/internal/metrics"
)

// State is the circuit state for one service.
type State string

const (
	// StateClosed allows requests and counts consecutive failures.
	StateClosed State = "closed"
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen has granted a single probe and blocks everyone else
	// until that probe's result is reported.
	StateHalfOpen State = "half_open"
)

// Config controls tripping and recovery.
type Config struct {
	// FailureThreshold is the number of consecutive reported failures
	// that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is
	// allowed through.
	Cooldown time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}
}

// service is the per-name machine. All fields are guarded by the
// registry mutex.
type service struct {
	state          State
	failures       int
	lastFailure    time.Time
	lastTransition time.Time
	totalReports   int64
	totalFailures  int64
	totalSuccesses int64
}

// Registry tracks one circuit per service name. A single mutex
// serializes every query and mutation, which gives each name a total
// order of transitions.
type Registry struct {
	mu       sync.Mutex
	services map[string]*service
	config   Config
	logger   *slog.Logger
	nowFunc  func() time.Time // for testing
}

// NewRegistry creates a registry. Non-positive config fields fall back
// to the defaults.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		services: make(map[string]*service),
		config:   cfg,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// serviceLocked returns the machine for name, creating it closed on
// first sight. The caller MUST hold r.mu.
func (r *Registry) serviceLocked(name string) *service {
	svc, ok := r.services[name]
	if !ok {
		svc = &service{state: StateClosed, lastTransition: r.nowFunc()}
		r.services[name] = svc
	}
	return svc
}

// IsOpen reports whether calls to name should be rejected. Querying an
// open circuit whose cooldown has elapsed moves it to half-open and
// lets exactly that one caller through; everyone else sees half-open as
// open until the probe's result is reported.
func (r *Registry) IsOpen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc := r.serviceLocked(name)

	switch svc.state {
	case StateOpen:
		if r.nowFunc().Sub(svc.lastFailure) >= r.config.Cooldown {
			r.transitionLocked(name, svc, StateHalfOpen)
			// The caller that triggered the transition is the probe.
			return false
		}
		return true
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// Report records the outcome of a call to name. Consecutive failures in
// the closed state open the circuit at the threshold; the half-open
// probe's success closes it and a probe failure re-opens it with a
// fresh cooldown.
func (r *Registry) Report(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc := r.serviceLocked(name)
	svc.totalReports++

	if success {
		svc.totalSuccesses++
		switch svc.state {
		case StateClosed:
			svc.failures = 0
		case StateHalfOpen:
			r.transitionLocked(name, svc, StateClosed)
		}
		// A success reported while open carries no signal: the circuit
		// only closes through a granted probe.
		return
	}

	svc.totalFailures++
	svc.lastFailure = r.nowFunc()

	switch svc.state {
	case StateClosed:
		svc.failures++
		if svc.failures >= r.config.FailureThreshold {
			r.transitionLocked(name, svc, StateOpen)
		}
	case StateHalfOpen:
		r.transitionLocked(name, svc, StateOpen)
	case StateOpen:
		// Already open; the refreshed lastFailure extends the cooldown.
	}
}

// Reset forces the circuit for name back to closed with a zeroed
// failure count. Operator override; the machine takes it from any state.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc := r.serviceLocked(name)
	if svc.state != StateClosed {
		r.transitionLocked(name, svc, StateClosed)
	}
	svc.failures = 0
}

// transitionLocked moves svc to the target state, resetting the
// counters the new state starts from. The caller MUST hold r.mu.
func (r *Registry) transitionLocked(name string, svc *service, to State) {
	from := svc.state
	svc.state = to
	svc.lastTransition = r.nowFunc()

	if to == StateClosed {
		svc.failures = 0
	}

	metrics.BreakerTransitions.WithLabelValues(name, string(to)).Inc()
	r.logger.Info("circuit state change",
		"service", name,
		"from", string(from),
		"to", string(to),
	)
}

// StateOf returns the current state for name without side effects.
// Unknown names are closed.
func (r *Registry) StateOf(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[name]
	if !ok {
		return StateClosed
	}
	return svc.state
}

// Stats is a point-in-time snapshot of one circuit, safe to serialize.
type Stats struct {
	Service             string     `json:"service"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalReports        int64      `json:"total_reports"`
	TotalFailures       int64      `json:"total_failures"`
	TotalSuccesses      int64      `json:"total_successes"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastTransitionAt    time.Time  `json:"last_transition_at"`
}

// Snapshot returns the stats for name, reporting ok=false for a name
// the registry has never seen.
func (r *Registry) Snapshot(name string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[name]
	if !ok {
		return Stats{}, false
	}
	return r.snapshotLocked(name, svc), true
}

// Snapshots returns the stats for every known service.
func (r *Registry) Snapshots() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Stats, len(r.services))
	for name, svc := range r.services {
		out[name] = r.snapshotLocked(name, svc)
	}
	return out
}

// snapshotLocked copies svc out. The caller MUST hold r.mu.
func (r *Registry) snapshotLocked(name string, svc *service) Stats {
	stats := Stats{
		Service:             name,
		State:               svc.state,
		ConsecutiveFailures: svc.failures,
		TotalReports:        svc.totalReports,
		TotalFailures:       svc.totalFailures,
		TotalSuccesses:      svc.totalSuccesses,
		LastTransitionAt:    svc.lastTransition,
	}
	if svc.totalFailures > 0 {
		t := svc.lastFailure
		stats.LastFailureAt = &t
	}
	return stats
}

// SetNowFunc overrides the time source (for testing).
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.mu.Lock()
	r.nowFunc = fn
	r.mu.Unlock()
}
