// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package metrics exposes prometheus collectors for resilience events.
// Collectors register themselves on the default registry; the ops
// server serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsTotal counts classified failures.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballast_errors_total",
		Help: "Classified failures by category and component.",
	}, []string{"category", "component"})

	// FallbacksTotal counts degraded results served.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballast_fallbacks_total",
		Help: "Degraded results served, by analytics kind and fallback source.",
	}, []string{"kind", "source"})

	// RecoveryAttempts counts recovery attempts started.
	RecoveryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ballast_recovery_attempts_total",
		Help: "Recovery attempts started.",
	})

	// RecoverySuccesses counts recovery attempts whose verify step passed.
	RecoverySuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ballast_recovery_success_total",
		Help: "Recovery attempts that ended with a verified service.",
	})

	// BreakerTransitions counts circuit state changes by target state.
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballast_breaker_transitions_total",
		Help: "Circuit breaker state transitions, labelled by target state.",
	}, []string{"service", "state"})

	// HealthState is a one-hot gauge over the monitor's states.
	HealthState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ballast_health_state",
		Help: "Current health state (1 for the active state, 0 otherwise).",
	}, []string{"state"})

	// ProbeLatency observes liveness probe round trips.
	ProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ballast_probe_latency_seconds",
		Help:    "Liveness probe round-trip latency.",
		Buckets: prometheus.DefBuckets,
	})

	// ModelServiceUp reports the last probe's transport outcome.
	ModelServiceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ballast_model_service_up",
		Help: "Whether the model service answered its last liveness probe.",
	})
)

var healthStates = []string{"healthy", "degraded", "unavailable", "recovering", "failed"}

// SetHealthState flips the health gauge so exactly one state reads 1.
func SetHealthState(state string) {
	for _, s := range healthStates {
		v := 0.0
		if s == state {
			v = 1
		}
		HealthState.WithLabelValues(s).Set(v)
	}
}
