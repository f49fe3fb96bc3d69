// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package health defines the model-service health states published by
// the monitor and consumed by the ops API, the CLI, and metrics.
package health

import "time"

// State is the coarse health of the local model service.
type State string

const (
	// StateHealthy means the service answered its liveness probe within
	// thresholds and has a model loaded.
	StateHealthy State = "healthy"
	// StateDegraded means the service is reachable but breaching a
	// latency, memory, or error-rate threshold, or has no model loaded.
	StateDegraded State = "degraded"
	// StateUnavailable means the liveness probe failed at the transport
	// level.
	StateUnavailable State = "unavailable"
	// StateRecovering means a recovery attempt is in flight.
	StateRecovering State = "recovering"
	// StateFailed means repeated recovery attempts exhausted their
	// budget and the service stayed down.
	StateFailed State = "failed"
)

func (s State) String() string { return string(s) }

// Operational reports whether the service can still serve requests,
// possibly at reduced quality.
func (s State) Operational() bool {
	return s == StateHealthy || s == StateDegraded
}

// Status exposes the current health of the model service for monitoring
// and operator visibility. All fields are point-in-time snapshots safe
// to serialize to JSON; the monitor replaces the whole struct on every
// probe so readers never observe a half-updated status.
type Status struct {
	State         State      `json:"state"`
	ServiceUp     bool       `json:"service_up"`
	ModelLoaded   bool       `json:"model_loaded"`
	LatencyMS     float64    `json:"latency_ms"`
	MemoryPercent float64    `json:"memory_percent"`
	CPUPercent    float64    `json:"cpu_percent"`
	ErrorRate     float64    `json:"error_rate"`
	Error         string     `json:"error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
}
