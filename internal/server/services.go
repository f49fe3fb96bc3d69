// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package server

import (
	"context"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/handler"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
)

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	health   HealthService
	stats    StatsService
	breakers BreakerService
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil.
func NewServices(health HealthService, stats StatsService, breakers BreakerService) (*Services, error) {
	if health == nil {
		return nil, ballasterr.New(ballasterr.CategoryValidation, "health service is required")
	}
	if stats == nil {
		return nil, ballasterr.New(ballasterr.CategoryValidation, "stats service is required")
	}
	if breakers == nil {
		return nil, ballasterr.New(ballasterr.CategoryValidation, "breaker service is required")
	}
	return &Services{
		health:   health,
		stats:    stats,
		breakers: breakers,
	}, nil
}

// Health returns the health service.
func (s *Services) Health() HealthService {
	return s.health
}

// Stats returns the stats service.
func (s *Services) Stats() StatsService {
	return s.stats
}

// Breakers returns the breaker service.
func (s *Services) Breakers() BreakerService {
	return s.breakers
}

// HealthService exposes the model-service health monitor to REST handlers.
type HealthService interface {
	Current() ballasthealth.Status
	TriggerRecovery(ctx context.Context) error
}

// StatsService exposes aggregated error-handling statistics to REST handlers.
type StatsService interface {
	ErrorStats() handler.StatsReport
}

// BreakerService exposes circuit breaker administration to REST handlers.
type BreakerService interface {
	Snapshot(service string) (breaker.Stats, bool)
	Snapshots() map[string]breaker.Stats
	Reset(service string)
}

// NewServicesForTest creates a Services instance for testing.
// It delegates to NewServices to enforce the same validation invariants as production code.
// This is exported for use in server_test package where unexported fields are inaccessible.
// Panics if any required service is nil (same validation as NewServices).
func NewServicesForTest(health HealthService, stats StatsService, breakers BreakerService) *Services {
	svc, err := NewServices(health, stats, breakers)
	if err != nil {
		panic(err) // Test setup should provide all required services
	}
	return svc
}
