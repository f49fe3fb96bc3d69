// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/config"
	"github.com/ballast-dev/ballast/internal/fallback"
	"github.com/ballast-dev/ballast/internal/handler"
	"github.com/ballast-dev/ballast/internal/health"
	"github.com/ballast-dev/ballast/internal/llm"
	"github.com/ballast-dev/ballast/internal/recovery"
	"github.com/ballast-dev/ballast/internal/server"
)

// Runtime holds all wired subsystems and manages their lifecycle.
type Runtime struct {
	Config   *config.Config
	Client   *llm.Client
	Breakers *breaker.Registry
	Cache    *fallback.Cache
	Window   *health.Window
	Stats    *handler.Stats
	Handler  *handler.Handler
	Recovery *recovery.Orchestrator
	Monitor  *health.Monitor
	Server   *server.Server
}

// WireRuntime creates all subsystems and wires them together.
func WireRuntime(cfg *config.Config) (*Runtime, error) {
	logger := slog.Default()

	// 1. Model service client.
	client := llm.New(llm.Config{
		BaseURL:         cfg.Service.BaseURL,
		RequestTimeout:  cfg.Service.RequestTimeout,
		GenerateTimeout: cfg.Service.GenerateTimeout,
	})

	// 2. Circuit breakers.
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, logger)

	// 3. Fallback cache and rolling error window.
	cache := fallback.New()
	window := health.NewWindow(cfg.Monitor.ErrorWindow)

	// 4. Degradation playbook and stats.
	playbook, err := handler.LoadPlaybook(cfg.Fallback.PlaybookPath)
	if err != nil {
		return nil, fmt.Errorf("loading playbook: %w", err)
	}
	stats := handler.NewStats()

	// 5. Error handler facade.
	h := handler.New(cache, breakers, window, stats, playbook, cfg.Service.Name, logger)

	// 6. Recovery orchestrator. Stats double as the recovery outcome sink.
	orch := recovery.NewOrchestrator(client, client, nil, breakers, stats, recovery.Config{
		ServiceName:  cfg.Service.Name,
		ProcessName:  cfg.Recovery.ProcessName,
		StartCommand: cfg.Recovery.StartCommand,
		WaitBudget:   cfg.Recovery.WaitBudget,
		PollInterval: cfg.Recovery.PollInterval,
		StepTimeout:  cfg.Recovery.StepTimeout,
		WarmupModels: cfg.Recovery.WarmupModels,
		VerifyModel:  cfg.Service.DefaultModel,
	}, logger)

	// 7. Health monitor, driving the orchestrator on failed probes.
	monitor := health.NewMonitor(client, window, health.SystemSampler{}, orch, health.Config{
		Interval:           cfg.Monitor.Interval,
		ProbeTimeout:       cfg.Monitor.ProbeTimeout,
		LatencyThreshold:   cfg.Monitor.LatencyThreshold,
		MemoryThreshold:    cfg.Monitor.MemoryThreshold,
		ErrorRateThreshold: cfg.Monitor.ErrorRateThreshold,
		FailedAfter:        cfg.Monitor.FailedAfter,
	}, logger)

	// 8. Ops HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	services, err := server.NewServices(monitor, h, breakers)
	if err != nil {
		return nil, fmt.Errorf("creating services: %w", err)
	}
	srv.RegisterServices(services)

	return &Runtime{
		Config:   cfg,
		Client:   client,
		Breakers: breakers,
		Cache:    cache,
		Window:   window,
		Stats:    stats,
		Handler:  h,
		Recovery: orch,
		Monitor:  monitor,
		Server:   srv,
	}, nil
}

// Run starts the monitor loop, the cache sweeper, and the ops server,
// blocking until ctx is cancelled or the server fails to come up.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rt.Monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		rt.sweepLoop(ctx)
	}()

	err := rt.Server.Start(ctx)

	// A server failure must take the background loops down with it.
	cancel()
	wg.Wait()
	return err
}

func (rt *Runtime) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.Config.Cache.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rt.Handler.Sweep(); n > 0 {
				slog.Debug("swept expired fallback entries", "evicted", n)
			}
		}
	}
}

// Close logs a final summary of the run.
func (rt *Runtime) Close() error {
	snap := rt.Stats.Snapshot()
	slog.Info("ballast stopped",
		"errors_handled", snap.TotalHandled,
		"fallbacks_served", snap.FallbacksServed,
		"recovery_attempts", snap.RecoveryAttempts,
	)
	return nil
}
