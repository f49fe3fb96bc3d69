// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/server"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ballast")
	assert.Contains(t, buf.String(), "start")
	assert.Contains(t, buf.String(), "status")
	assert.Contains(t, buf.String(), "recover")
	assert.Contains(t, buf.String(), "doctor")
	assert.Contains(t, buf.String(), "version")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ballast")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "--config")
	assert.Contains(t, buf.String(), "--verbose")
}

func TestStartCommand_BadConfigPath(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"start", "--config", "/nonexistent/path.yaml"})

	err := root.Execute()
	assert.Error(t, err)
}

// serveDaemon swaps the package HTTP client for the test server's and
// returns the host:port address to pass via --address.
func serveDaemon(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() { defaultHTTPClient = old })

	return strings.TrimPrefix(srv.URL, "http://")
}

func TestStatusCommand_HealthyDaemon(t *testing.T) {
	addr := serveDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(server.StatusBody{
			Status:        "ok",
			UptimeSeconds: 61,
			Health: ballasthealth.Status{
				State:       ballasthealth.StateHealthy,
				ServiceUp:   true,
				ModelLoaded: true,
				LatencyMS:   42,
			},
			Breakers: map[string]breaker.Stats{
				"model_service": {Service: "model_service", State: breaker.StateClosed},
			},
		})
	}))

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ok")
	assert.Contains(t, buf.String(), "healthy")
	assert.Contains(t, buf.String(), "model_service")
}

func TestStatusCommand_DaemonDown(t *testing.T) {
	// Use an address that will refuse connections.
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", "127.0.0.1:1"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "not running")
}

func TestRecoverCommand_Started(t *testing.T) {
	addr := serveDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/recovery" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(server.RecoveryBody{Status: "started"})
	}))

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"recover", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Recovery started")
}

func TestRecoverCommand_Conflict(t *testing.T) {
	addr := serveDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"title":"Conflict","status":409,"detail":"a recovery attempt is already in flight"}`))
	}))

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"recover", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "already in flight")
}

func TestRecoverCommand_DaemonDown(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"recover", "--address", "127.0.0.1:1"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "not running")
}
