// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/handler"
	"github.com/ballast-dev/ballast/internal/server"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	ballasthealth "github.com/ballast-dev/ballast/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategorySystem, "creating server")
	}

	// No-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	srv.RegisterServices(server.NewServicesForTest(&stubHealth{}, &stubStats{}, &stubBreakers{}))

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubHealth struct{}

func (s *stubHealth) Current() ballasthealth.Status         { return ballasthealth.Status{} }
func (s *stubHealth) TriggerRecovery(context.Context) error { return nil }

type stubStats struct{}

func (s *stubStats) ErrorStats() handler.StatsReport { return handler.StatsReport{} }

type stubBreakers struct{}

func (s *stubBreakers) Snapshot(string) (breaker.Stats, bool) { return breaker.Stats{}, false }
func (s *stubBreakers) Snapshots() map[string]breaker.Stats   { return nil }
func (s *stubBreakers) Reset(string)                          {}
