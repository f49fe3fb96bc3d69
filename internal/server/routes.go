// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/handler"
	"github.com/ballast-dev/ballast/internal/health"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
	"github.com/danielgtaylor/huma/v2"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Daemon status endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "daemon-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Daemon status with current model service health",
		Tags:        []string{"ops"},
	}, s.handleStatus)

	// Error handling statistics
	huma.Register(s.api, huma.Operation{
		OperationID: "error-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Aggregated error and fallback statistics",
		Tags:        []string{"ops"},
	}, s.handleStats)

	// Circuit breaker endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-breakers",
		Method:      http.MethodGet,
		Path:        "/api/v1/breakers",
		Summary:     "List circuit breakers",
		Tags:        []string{"breakers"},
	}, s.handleListBreakers)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-breaker",
		Method:      http.MethodPost,
		Path:        "/api/v1/breakers/{service}/reset",
		Summary:     "Reset a circuit breaker to closed",
		Tags:        []string{"breakers"},
	}, s.handleResetBreaker)

	// Manual recovery trigger
	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-recovery",
		Method:      http.MethodPost,
		Path:        "/api/v1/recovery",
		Summary:     "Trigger a model service recovery attempt",
		Tags:        []string{"ops"},
	}, s.handleTriggerRecovery)
}

// --- Request/Response types for huma ---

// StatusBody is the JSON body of the daemon status endpoint. The CLI
// status command decodes into this type.
type StatusBody struct {
	Status        string                   `json:"status" example:"ok" doc:"Daemon liveness"`
	UptimeSeconds float64                  `json:"uptime_seconds" doc:"Seconds since the daemon started"`
	Health        ballasthealth.Status     `json:"health" doc:"Latest model service health snapshot"`
	Breakers      map[string]breaker.Stats `json:"breakers" doc:"Circuit breaker snapshots keyed by service"`
}

type statusOutput struct {
	Body StatusBody
}

type statsOutput struct {
	Body handler.StatsReport
}

// BreakersBody is the JSON body of the breaker list endpoint.
type BreakersBody struct {
	Breakers map[string]breaker.Stats `json:"breakers" doc:"Circuit breaker snapshots keyed by service"`
}

type listBreakersOutput struct {
	Body BreakersBody
}

type resetBreakerInput struct {
	Service string `path:"service" doc:"Service name"`
}

// ResetBody is the JSON body of the breaker reset endpoint.
type ResetBody struct {
	Service string `json:"service" doc:"Service name"`
	Status  string `json:"status" example:"reset" doc:"Outcome"`
}

type resetBreakerOutput struct {
	Body ResetBody
}

// RecoveryBody is the JSON body of the recovery trigger endpoint. The
// CLI recover command decodes into this type.
type RecoveryBody struct {
	Status string `json:"status" example:"started" doc:"Outcome"`
}

type triggerRecoveryOutput struct {
	Body RecoveryBody
}

// --- Handlers ---

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.UptimeSeconds = time.Since(s.started).Seconds()
	out.Body.Health = s.services.Health().Current()
	out.Body.Breakers = s.services.Breakers().Snapshots()
	return out, nil
}

func (s *Server) handleStats(_ context.Context, _ *struct{}) (*statsOutput, error) {
	return &statsOutput{Body: s.services.Stats().ErrorStats()}, nil
}

func (s *Server) handleListBreakers(_ context.Context, _ *struct{}) (*listBreakersOutput, error) {
	out := &listBreakersOutput{}
	out.Body.Breakers = s.services.Breakers().Snapshots()
	return out, nil
}

func (s *Server) handleResetBreaker(_ context.Context, input *resetBreakerInput) (*resetBreakerOutput, error) {
	if _, ok := s.services.Breakers().Snapshot(input.Service); !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("no circuit breaker for service %q", input.Service))
	}
	s.services.Breakers().Reset(input.Service)

	out := &resetBreakerOutput{}
	out.Body.Service = input.Service
	out.Body.Status = "reset"
	return out, nil
}

func (s *Server) handleTriggerRecovery(ctx context.Context, _ *struct{}) (*triggerRecoveryOutput, error) {
	if err := s.services.Health().TriggerRecovery(ctx); err != nil {
		if errors.Is(err, health.ErrRecoveryInFlight) {
			return nil, huma.Error409Conflict("a recovery attempt is already in flight")
		}
		return nil, huma.Error503ServiceUnavailable("recovery unavailable", err)
	}

	out := &triggerRecoveryOutput{}
	out.Body.Status = "started"
	return out, nil
}
