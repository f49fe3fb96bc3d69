// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package breaker_test

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const svc = "model_service"

func newTestRegistry() (*breaker.Registry, *time.Time) {
	r := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return now })
	return r, &now
}

func tripOpen(r *breaker.Registry) {
	for i := 0; i < 3; i++ {
		r.Report(svc, false)
	}
}

func TestRegistry_StartsClosed(t *testing.T) {
	r, _ := newTestRegistry()
	assert.False(t, r.IsOpen(svc))
	assert.Equal(t, breaker.StateClosed, r.StateOf(svc))
	assert.Equal(t, breaker.StateClosed, r.StateOf("never-seen"))
}

func TestRegistry_OpensAfterConsecutiveFailures(t *testing.T) {
	r, _ := newTestRegistry()

	r.Report(svc, false)
	r.Report(svc, false)
	assert.False(t, r.IsOpen(svc), "two failures stay under the threshold")

	r.Report(svc, false)
	assert.True(t, r.IsOpen(svc), "third consecutive failure opens the circuit")
	assert.Equal(t, breaker.StateOpen, r.StateOf(svc))
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	r, _ := newTestRegistry()

	r.Report(svc, false)
	r.Report(svc, false)
	r.Report(svc, true)
	r.Report(svc, false)
	r.Report(svc, false)
	assert.False(t, r.IsOpen(svc), "the success in between restarted the count")

	r.Report(svc, false)
	assert.True(t, r.IsOpen(svc))
}

func TestRegistry_OpenRejectsUntilCooldown(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(4 * time.Minute)
	assert.True(t, r.IsOpen(svc), "still inside the cooldown")
	assert.Equal(t, breaker.StateOpen, r.StateOf(svc))
}

func TestRegistry_CooldownGrantsExactlyOneProbe(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(5 * time.Minute)

	assert.False(t, r.IsOpen(svc), "the query that crosses the cooldown is the probe")
	assert.Equal(t, breaker.StateHalfOpen, r.StateOf(svc))

	assert.True(t, r.IsOpen(svc), "no second probe while the first is outstanding")
	assert.True(t, r.IsOpen(svc))
}

func TestRegistry_CooldownBoundary(t *testing.T) {
	tests := []struct {
		name      string
		advance   time.Duration
		wantProbe bool
	}{
		{"just before cooldown", 5*time.Minute - time.Second, false},
		{"exactly at cooldown", 5 * time.Minute, true},
		{"after cooldown", 6 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, now := newTestRegistry()
			tripOpen(r)

			*now = now.Add(tt.advance)
			open := r.IsOpen(svc)
			assert.Equal(t, tt.wantProbe, !open)
		})
	}
}

func TestRegistry_ProbeSuccessCloses(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(5 * time.Minute)
	require.False(t, r.IsOpen(svc))

	r.Report(svc, true)
	assert.Equal(t, breaker.StateClosed, r.StateOf(svc))
	assert.False(t, r.IsOpen(svc))

	stats, ok := r.Snapshot(svc)
	require.True(t, ok)
	assert.Zero(t, stats.ConsecutiveFailures, "closing resets the failure count")
}

func TestRegistry_ProbeFailureReopensWithFreshCooldown(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(5 * time.Minute)
	require.False(t, r.IsOpen(svc))

	r.Report(svc, false)
	assert.Equal(t, breaker.StateOpen, r.StateOf(svc))

	// The cooldown restarts from the probe failure, not the original trip.
	*now = now.Add(4 * time.Minute)
	assert.True(t, r.IsOpen(svc))

	*now = now.Add(time.Minute)
	assert.False(t, r.IsOpen(svc), "fresh cooldown elapsed, next probe granted")
}

func TestRegistry_FailureWhileOpenExtendsCooldown(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(3 * time.Minute)
	r.Report(svc, false) // refreshes lastFailure

	*now = now.Add(3 * time.Minute)
	assert.True(t, r.IsOpen(svc), "six minutes after the trip but only three after the last failure")

	*now = now.Add(2 * time.Minute)
	assert.False(t, r.IsOpen(svc))
}

func TestRegistry_SuccessWhileOpenIgnored(t *testing.T) {
	r, _ := newTestRegistry()
	tripOpen(r)

	r.Report(svc, true)
	assert.Equal(t, breaker.StateOpen, r.StateOf(svc), "open circuits close only through a probe")
}

func TestRegistry_ResetClosesAndZeroes(t *testing.T) {
	r, _ := newTestRegistry()
	tripOpen(r)
	require.True(t, r.IsOpen(svc))

	r.Reset(svc)
	assert.False(t, r.IsOpen(svc))
	assert.Equal(t, breaker.StateClosed, r.StateOf(svc))

	// Post-reset failures start counting from zero again.
	r.Report(svc, false)
	r.Report(svc, false)
	assert.False(t, r.IsOpen(svc))
	r.Report(svc, false)
	assert.True(t, r.IsOpen(svc))
}

func TestRegistry_ResetHalfOpenDiscardsProbe(t *testing.T) {
	r, now := newTestRegistry()
	tripOpen(r)

	*now = now.Add(5 * time.Minute)
	require.False(t, r.IsOpen(svc))
	require.Equal(t, breaker.StateHalfOpen, r.StateOf(svc))

	r.Reset(svc)
	assert.Equal(t, breaker.StateClosed, r.StateOf(svc))
	assert.False(t, r.IsOpen(svc))
}

func TestRegistry_ServicesAreIndependent(t *testing.T) {
	r, _ := newTestRegistry()
	tripOpen(r)

	assert.True(t, r.IsOpen(svc))
	assert.False(t, r.IsOpen("other_service"))
	assert.Equal(t, breaker.StateClosed, r.StateOf("other_service"))
}

func TestRegistry_Snapshot(t *testing.T) {
	r, _ := newTestRegistry()

	_, ok := r.Snapshot("never-seen")
	assert.False(t, ok)

	r.Report(svc, false)
	r.Report(svc, true)
	r.Report(svc, false)

	stats, ok := r.Snapshot(svc)
	require.True(t, ok)
	assert.Equal(t, svc, stats.Service)
	assert.Equal(t, breaker.StateClosed, stats.State)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
	assert.Equal(t, int64(3), stats.TotalReports)
	assert.Equal(t, int64(2), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	require.NotNil(t, stats.LastFailureAt)
}

func TestRegistry_Snapshots(t *testing.T) {
	r, _ := newTestRegistry()
	r.Report("a", false)
	r.Report("b", true)

	snaps := r.Snapshots()
	assert.Len(t, snaps, 2)
	assert.Equal(t, int64(1), snaps["a"].TotalFailures)
	assert.Equal(t, int64(1), snaps["b"].TotalSuccesses)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r, _ := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("svc-%d", n%3)
			for j := 0; j < 200; j++ {
				switch j % 4 {
				case 0:
					r.Report(name, false)
				case 1:
					r.Report(name, true)
				case 2:
					r.IsOpen(name)
				case 3:
					if j%40 == 3 {
						r.Reset(name)
					} else {
						r.Snapshot(name)
					}
				}
			}
		}(i)
	}

	wg.Wait()

	for _, stats := range r.Snapshots() {
		assert.Contains(t, []breaker.State{breaker.StateClosed, breaker.StateOpen, breaker.StateHalfOpen}, stats.State)
		assert.Equal(t, stats.TotalReports, stats.TotalFailures+stats.TotalSuccesses)
	}
}
