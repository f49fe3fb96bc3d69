// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package handler

import (
	"sync"
	"time"

	"github.com/ballast-dev/ballast/internal/classify"
	"github.com/ballast-dev/ballast/pkg/result"
)

// Stats aggregates handled-failure counters across every protected
// operation. One instance is shared by all call sites; every method is
// safe for concurrent use.
type Stats struct {
	mu                sync.Mutex
	since             time.Time
	total             int64
	byCategory        map[string]int64
	byComponent       map[string]int64
	bySeverity        map[string]int64
	fallbacks         int64
	bySource          map[string]int64
	recoveryAttempts  int64
	recoverySuccesses int64
}

// NewStats returns an empty aggregate.
func NewStats() *Stats {
	return &Stats{
		since:       time.Now().UTC(),
		byCategory:  make(map[string]int64),
		byComponent: make(map[string]int64),
		bySeverity:  make(map[string]int64),
		bySource:    make(map[string]int64),
	}
}

// Record counts one handled failure. The façade calls it exactly once
// per failure, after the degraded result has been produced.
func (s *Stats) Record(info classify.Info, source result.Source) {
	component := info.Context.Component
	if component == "" {
		component = "unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byCategory[string(info.Category)]++
	s.byComponent[component]++
	s.bySeverity[string(info.Severity)]++
	if info.FallbackUsed {
		s.fallbacks++
		s.bySource[string(source)]++
	}
}

// RecordRecovery counts one finished recovery attempt.
func (s *Stats) RecordRecovery(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveryAttempts++
	if success {
		s.recoverySuccesses++
	}
}

// StatsSnapshot is a point-in-time copy of the aggregate counters.
type StatsSnapshot struct {
	Since               time.Time        `json:"since"`
	TotalHandled        int64            `json:"total_handled"`
	ByCategory          map[string]int64 `json:"by_category"`
	ByComponent         map[string]int64 `json:"by_component"`
	BySeverity          map[string]int64 `json:"by_severity"`
	FallbacksServed     int64            `json:"fallbacks_served"`
	FallbackRate        float64          `json:"fallback_rate"`
	BySource            map[string]int64 `json:"by_source"`
	RecoveryAttempts    int64            `json:"recovery_attempts"`
	RecoverySuccesses   int64            `json:"recovery_successes"`
	RecoverySuccessRate float64          `json:"recovery_success_rate"`
}

// Snapshot copies the counters. The returned maps are owned by the
// caller.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Since:             s.since,
		TotalHandled:      s.total,
		ByCategory:        copyCounts(s.byCategory),
		ByComponent:       copyCounts(s.byComponent),
		BySeverity:        copyCounts(s.bySeverity),
		FallbacksServed:   s.fallbacks,
		BySource:          copyCounts(s.bySource),
		RecoveryAttempts:  s.recoveryAttempts,
		RecoverySuccesses: s.recoverySuccesses,
	}
	if s.total > 0 {
		snap.FallbackRate = float64(s.fallbacks) / float64(s.total)
	}
	if s.recoveryAttempts > 0 {
		snap.RecoverySuccessRate = float64(s.recoverySuccesses) / float64(s.recoveryAttempts)
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
