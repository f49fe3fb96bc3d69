// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package health probes the local model service, tracks a sliding error
// window, and drives automatic recovery when the service goes down.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ballast-dev/ballast/internal/llm"
	"github.com/ballast-dev/ballast/internal/metrics"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
)

var (
	// ErrRecoveryInFlight is returned by TriggerRecovery when an attempt
	// is already running.
	ErrRecoveryInFlight = ballasterr.New(ballasterr.CategoryValidation, "a recovery attempt is already in flight")

	// ErrNoRecoverer is returned by TriggerRecovery when the monitor was
	// built without a recovery orchestrator.
	ErrNoRecoverer = ballasterr.New(ballasterr.CategorySystem, "no recovery orchestrator configured")
)

// Recoverer runs one full recovery attempt and reports whether the model
// service came back.
type Recoverer interface {
	Attempt(ctx context.Context) bool
}

// Config carries the monitor's probe cadence and degradation thresholds.
type Config struct {
	Interval           time.Duration
	ProbeTimeout       time.Duration
	LatencyThreshold   time.Duration
	MemoryThreshold    float64
	ErrorRateThreshold float64
	FailedAfter        int
}

// DefaultConfig returns the monitor settings used when a field is left
// zero.
func DefaultConfig() Config {
	return Config{
		Interval:           30 * time.Second,
		ProbeTimeout:       5 * time.Second,
		LatencyThreshold:   2 * time.Second,
		MemoryThreshold:    90.0,
		ErrorRateThreshold: 0.5,
		FailedAfter:        3,
	}
}

// Monitor periodically probes the model service and publishes a Status
// snapshot. When a probe finds the service unreachable it hands off to
// the Recoverer, at most one attempt at a time; after FailedAfter
// consecutive exhausted attempts it stops trying and reports
// StateFailed until the service is seen alive again or an operator
// triggers recovery by hand.
type Monitor struct {
	pinger    llm.Pinger
	window    *Window
	sampler   Sampler
	recoverer Recoverer
	cfg       Config
	logger    *slog.Logger

	mu          sync.RWMutex
	current     ballasthealth.Status
	lastSuccess time.Time
	recovering  bool
	failed      bool
	exhausted   int

	wg      sync.WaitGroup
	nowFunc func() time.Time // for testing
}

// NewMonitor wires a Monitor. window and sampler fall back to defaults
// when nil; recoverer may be nil, which disables automatic recovery.
func NewMonitor(pinger llm.Pinger, window *Window, sampler Sampler, recoverer Recoverer, cfg Config, logger *slog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = def.LatencyThreshold
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = def.MemoryThreshold
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if cfg.FailedAfter <= 0 {
		cfg.FailedAfter = def.FailedAfter
	}
	if window == nil {
		window = NewWindow(0)
	}
	if sampler == nil {
		sampler = SystemSampler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		pinger:    pinger,
		window:    window,
		sampler:   sampler,
		recoverer: recoverer,
		cfg:       cfg,
		logger:    logger,
		current: ballasthealth.Status{
			State: ballasthealth.StateUnavailable,
			Error: "no probe completed yet",
		},
		nowFunc: time.Now,
	}
}

// Run probes immediately and then on every interval tick until ctx is
// canceled. It blocks, so callers start it in its own goroutine, and it
// waits for any in-flight recovery attempt before returning.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.probeAndReact(ctx)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case <-ticker.C:
			m.probeAndReact(ctx)
		}
	}
}

func (m *Monitor) probeAndReact(ctx context.Context) {
	st := m.Probe(ctx)
	if st.State == ballasthealth.StateUnavailable {
		m.maybeRecover(ctx)
	}
}

// Probe runs a single liveness check, records its outcome in the error
// window, stores the resulting snapshot, and returns it. The returned
// state reflects any in-flight recovery.
func (m *Monitor) Probe(ctx context.Context) ballasthealth.Status {
	st := m.check(ctx)

	m.mu.Lock()
	if st.ServiceUp {
		// Seeing the service alive clears a terminal failure verdict.
		m.failed = false
		m.exhausted = 0
		m.lastSuccess = st.CheckedAt
	}
	if !m.lastSuccess.IsZero() {
		t := m.lastSuccess
		st.LastSuccessAt = &t
	}
	m.current = st
	eff := m.effectiveLocked()
	m.mu.Unlock()

	m.publish(eff)
	return eff
}

// check performs the raw probe without touching monitor state.
func (m *Monitor) check(ctx context.Context) ballasthealth.Status {
	m.mu.RLock()
	now := m.nowFunc
	m.mu.RUnlock()

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := now()
	live, err := m.pinger.Ping(pctx)
	latency := now().Sub(start)
	metrics.ProbeLatency.Observe(latency.Seconds())

	st := ballasthealth.Status{
		LatencyMS: float64(latency) / float64(time.Millisecond),
		CheckedAt: now().UTC(),
	}

	if res, serr := m.sampler.Sample(); serr != nil {
		m.logger.Warn("resource sample failed", "error", serr)
	} else {
		st.MemoryPercent = res.MemoryPercent
		st.CPUPercent = res.CPUPercent
	}

	if err != nil {
		m.window.RecordFailure()
		st.State = ballasthealth.StateUnavailable
		st.Error = err.Error()
		st.ErrorRate = m.window.Rate()
		return st
	}

	m.window.RecordSuccess()
	st.ServiceUp = live.Running
	st.ModelLoaded = len(live.Models) > 0
	st.ErrorRate = m.window.Rate()

	switch {
	case !st.ModelLoaded:
		st.State = ballasthealth.StateDegraded
		st.Error = "service is up but no model is loaded"
	case latency > m.cfg.LatencyThreshold:
		st.State = ballasthealth.StateDegraded
		st.Error = fmt.Sprintf("probe latency %s exceeds %s threshold", latency.Round(time.Millisecond), m.cfg.LatencyThreshold)
	case st.MemoryPercent > m.cfg.MemoryThreshold:
		st.State = ballasthealth.StateDegraded
		st.Error = fmt.Sprintf("memory usage %.1f%% exceeds %.1f%% threshold", st.MemoryPercent, m.cfg.MemoryThreshold)
	case st.ErrorRate > m.cfg.ErrorRateThreshold:
		st.State = ballasthealth.StateDegraded
		st.Error = fmt.Sprintf("error rate %.2f exceeds %.2f threshold", st.ErrorRate, m.cfg.ErrorRateThreshold)
	default:
		st.State = ballasthealth.StateHealthy
	}
	return st
}

// Current returns the latest snapshot. While a recovery attempt is in
// flight the state reads StateRecovering, and after the attempt budget
// is exhausted it reads StateFailed, regardless of the last probe.
func (m *Monitor) Current() ballasthealth.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effectiveLocked()
}

// effectiveLocked overlays recovery progress on the probed status.
// The caller MUST hold at least m.mu.RLock.
func (m *Monitor) effectiveLocked() ballasthealth.Status {
	st := m.current
	switch {
	case m.recovering:
		st.State = ballasthealth.StateRecovering
	case m.failed:
		st.State = ballasthealth.StateFailed
	}
	return st
}

// maybeRecover starts an attempt when none is running and the budget is
// not exhausted.
func (m *Monitor) maybeRecover(ctx context.Context) {
	m.mu.Lock()
	if m.recoverer == nil || m.recovering || m.failed {
		m.mu.Unlock()
		return
	}
	m.recovering = true
	eff := m.effectiveLocked()
	m.mu.Unlock()

	m.publish(eff)
	m.wg.Add(1)
	go m.runRecovery(ctx)
}

// TriggerRecovery starts an operator-requested attempt. It clears a
// StateFailed verdict so the automatic budget starts over, and returns
// ErrRecoveryInFlight when an attempt is already running.
func (m *Monitor) TriggerRecovery(ctx context.Context) error {
	m.mu.Lock()
	if m.recoverer == nil {
		m.mu.Unlock()
		return ErrNoRecoverer
	}
	if m.recovering {
		m.mu.Unlock()
		return ErrRecoveryInFlight
	}
	m.recovering = true
	m.failed = false
	m.exhausted = 0
	eff := m.effectiveLocked()
	m.mu.Unlock()

	m.publish(eff)
	m.wg.Add(1)
	// The attempt must outlive the triggering request; callers pass
	// request-scoped contexts that are cancelled as soon as they get
	// their response.
	go m.runRecovery(context.WithoutCancel(ctx))
	return nil
}

func (m *Monitor) runRecovery(ctx context.Context) {
	defer m.wg.Done()

	ok := m.recoverer.Attempt(ctx)

	m.mu.Lock()
	m.recovering = false
	if ok {
		m.exhausted = 0
	} else {
		m.exhausted++
		if m.exhausted >= m.cfg.FailedAfter {
			m.failed = true
			m.logger.Error("recovery budget exhausted, marking service failed",
				"attempts", m.exhausted)
		}
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("model service recovered")
	}

	// Re-probe so the published status reflects the post-attempt world.
	m.Probe(ctx)
}

func (m *Monitor) publish(st ballasthealth.Status) {
	metrics.SetHealthState(st.State.String())
	if st.ServiceUp {
		metrics.ModelServiceUp.Set(1)
	} else {
		metrics.ModelServiceUp.Set(0)
	}
}

// SetNowFunc overrides the time source (for testing).
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}
