// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/handler"
	"github.com/ballast-dev/ballast/internal/health"
	"github.com/ballast-dev/ballast/internal/server"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// Stubs
// ----------------------------------------------------------------------------

type stubHealthService struct {
	status     ballasthealth.Status
	triggerErr error
	triggered  atomic.Int32
}

func (s *stubHealthService) Current() ballasthealth.Status { return s.status }

func (s *stubHealthService) TriggerRecovery(context.Context) error {
	s.triggered.Add(1)
	return s.triggerErr
}

type stubStatsService struct {
	report handler.StatsReport
}

func (s *stubStatsService) ErrorStats() handler.StatsReport { return s.report }

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func newTestServer(t *testing.T) (*server.Server, *breaker.Registry, *stubHealthService) {
	t.Helper()

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := breaker.NewRegistry(breaker.Config{}, logger)
	hs := &stubHealthService{
		status: ballasthealth.Status{
			State:       ballasthealth.StateHealthy,
			ServiceUp:   true,
			ModelLoaded: true,
		},
	}
	ss := &stubStatsService{
		report: handler.StatsReport{
			Handler: handler.StatsSnapshot{TotalHandled: 4, FallbacksServed: 4},
		},
	}
	srv.RegisterServices(server.NewServicesForTest(hs, ss, registry))
	return srv, registry, hs
}

func doRequest(t *testing.T, srv *server.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

// ----------------------------------------------------------------------------
// Construction and plumbing
// ----------------------------------------------------------------------------

func TestServer_New(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestServer_New_EmptyListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen address is required")
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body server.HealthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "healthy", body.ModelService)
}

func TestServer_HealthEndpoint_BeforeServicesRegistered(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body server.HealthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.ModelService)
}

func TestServer_OpenAPISpec(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/openapi.json")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "openapi")
	assert.Contains(t, body, "/api/v1/status")
	assert.Contains(t, body, "/api/v1/recovery")
	assert.Contains(t, body, "reset-breaker")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestServer_CORSHeaders(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr:  "127.0.0.1:0",
		CORSOrigins: []string{"http://localhost:5173"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for context cancellation to trigger shutdown.
	<-ctx.Done()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}

// ----------------------------------------------------------------------------
// Ops routes
// ----------------------------------------------------------------------------

func TestServer_StatusEndpoint(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	registry.Report("model_service", false)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status")

	require.Equal(t, http.StatusOK, w.Code)

	var body server.StatusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
	assert.Equal(t, ballasthealth.StateHealthy, body.Health.State)
	assert.True(t, body.Health.ModelLoaded)
	require.Contains(t, body.Breakers, "model_service")
	assert.Equal(t, 1, body.Breakers["model_service"].ConsecutiveFailures)
}

func TestServer_StatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/stats")

	require.Equal(t, http.StatusOK, w.Code)

	var body handler.StatsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Handler.TotalHandled)
	assert.Equal(t, int64(4), body.Handler.FallbacksServed)
}

func TestServer_ListBreakers(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	registry.Report("model_service", true)
	registry.Report("data_feed", false)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/breakers")

	require.Equal(t, http.StatusOK, w.Code)

	var body server.BreakersBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Breakers, 2)
	assert.Contains(t, body.Breakers, "model_service")
	assert.Contains(t, body.Breakers, "data_feed")
}

func TestServer_ResetBreaker(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	for range 3 {
		registry.Report("model_service", false)
	}
	require.Equal(t, breaker.StateOpen, registry.StateOf("model_service"))

	w := doRequest(t, srv, http.MethodPost, "/api/v1/breakers/model_service/reset")

	require.Equal(t, http.StatusOK, w.Code)

	var body server.ResetBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "reset", body.Status)
	assert.Equal(t, "model_service", body.Service)
	assert.Equal(t, breaker.StateClosed, registry.StateOf("model_service"))
}

func TestServer_ResetBreaker_UnknownService(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/breakers/nonexistent/reset")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "nonexistent")
}

func TestServer_TriggerRecovery(t *testing.T) {
	srv, _, hs := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recovery")

	require.Equal(t, http.StatusOK, w.Code)

	var body server.RecoveryBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.Equal(t, int32(1), hs.triggered.Load())
}

func TestServer_TriggerRecovery_Conflict(t *testing.T) {
	srv, _, hs := newTestServer(t)
	hs.triggerErr = health.ErrRecoveryInFlight

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recovery")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already in flight")
}

func TestServer_TriggerRecovery_NoOrchestrator(t *testing.T) {
	srv, _, hs := newTestServer(t)
	hs.triggerErr = health.ErrNoRecoverer

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recovery")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_NewServices_NilRequired(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := breaker.NewRegistry(breaker.Config{}, logger)

	_, err := server.NewServices(nil, &stubStatsService{}, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health service is required")

	_, err = server.NewServices(&stubHealthService{}, nil, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats service is required")

	_, err = server.NewServices(&stubHealthService{}, &stubStatsService{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker service is required")
}
