// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package recovery restarts the local model service and walks it back
// to a verified working state.
package recovery

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/llm"
	"github.com/ballast-dev/ballast/internal/metrics"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
)

// Config carries the orchestrator's budgets and restart parameters.
type Config struct {
	// ServiceName is the circuit breaker identity the outcome is
	// reported under.
	ServiceName string
	// ProcessName is the OS process looked for before restarting.
	ProcessName string
	// StartCommand launches the model service when its process is gone.
	StartCommand []string
	// WaitBudget bounds how long the orchestrator waits for the service
	// to answer liveness probes after a restart.
	WaitBudget time.Duration
	// PollInterval is the pause between liveness probes.
	PollInterval time.Duration
	// StepTimeout bounds each individual step.
	StepTimeout time.Duration
	// WarmupModels are loaded after the service comes up.
	WarmupModels []string
	// VerifyModel runs the final verification completion.
	VerifyModel string
}

// DefaultConfig returns the orchestrator settings used when a field is
// left zero.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "model_service",
		ProcessName:  "ollama",
		WaitBudget:   60 * time.Second,
		PollInterval: 2 * time.Second,
		StepTimeout:  15 * time.Second,
	}
}

// OutcomeRecorder receives the outcome of every finished attempt, on
// top of the circuit breaker report.
type OutcomeRecorder interface {
	RecordRecovery(success bool)
}

// Orchestrator runs the recovery sequence: make sure the service
// process exists, wait for it to answer probes, warm the configured
// models, and verify a real completion. At most one attempt runs at a
// time.
type Orchestrator struct {
	pinger   llm.Pinger
	gen      llm.Generator
	procs    ProcessController
	breakers *breaker.Registry
	recorder OutcomeRecorder
	cfg      Config
	logger   *slog.Logger

	running atomic.Bool
}

// NewOrchestrator wires an Orchestrator. procs defaults to the host
// process controller; breakers and recorder may be nil, which skips
// outcome reporting.
func NewOrchestrator(pinger llm.Pinger, gen llm.Generator, procs ProcessController, breakers *breaker.Registry, recorder OutcomeRecorder, cfg Config, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.ProcessName == "" {
		cfg.ProcessName = def.ProcessName
	}
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = def.WaitBudget
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if procs == nil {
		procs = HostProcessController{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		pinger:   pinger,
		gen:      gen,
		procs:    procs,
		breakers: breakers,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// InFlight reports whether an attempt is currently running.
func (o *Orchestrator) InFlight() bool { return o.running.Load() }

// Attempt runs one full recovery sequence and reports whether the model
// service came back verified. A second caller while an attempt is in
// flight gets false immediately without starting another.
func (o *Orchestrator) Attempt(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	defer o.running.Store(false)

	metrics.RecoveryAttempts.Inc()
	start := time.Now()
	o.logger.Info("recovery attempt started", "process", o.cfg.ProcessName)

	if err := o.ensureProcess(ctx); err != nil {
		o.logger.Error("recovery failed: process step", "error", err)
		o.report(false)
		return false
	}
	if err := o.awaitLiveness(ctx); err != nil {
		o.logger.Error("recovery failed: service did not come up", "error", err)
		o.report(false)
		return false
	}
	o.warmModels(ctx)
	if err := o.verify(ctx); err != nil {
		o.logger.Error("recovery failed: verification", "error", err)
		o.report(false)
		return false
	}

	o.report(true)
	metrics.RecoverySuccesses.Inc()
	o.logger.Info("recovery attempt succeeded", "elapsed", time.Since(start).Round(time.Millisecond))
	return true
}

func (o *Orchestrator) report(success bool) {
	if o.breakers != nil {
		o.breakers.Report(o.cfg.ServiceName, success)
	}
	if o.recorder != nil {
		o.recorder.RecordRecovery(success)
	}
}

// ensureProcess checks the process table and starts the service when
// its process is missing.
func (o *Orchestrator) ensureProcess(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	running, err := o.procs.Running(sctx, o.cfg.ProcessName)
	if err != nil {
		return err
	}
	if running {
		o.logger.Debug("model service process already running", "process", o.cfg.ProcessName)
		return nil
	}

	o.logger.Info("starting model service process", "command", o.cfg.StartCommand)
	return o.procs.Start(sctx, o.cfg.StartCommand)
}

// awaitLiveness polls the service until it answers or the wait budget
// runs out.
func (o *Orchestrator) awaitLiveness(ctx context.Context) error {
	deadline := time.Now().Add(o.cfg.WaitBudget)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		live, err := o.pinger.Ping(pctx)
		cancel()
		if err == nil && live.Running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ballasterr.Wrap(ctx.Err(), ballasterr.CategorySystem, "wait for model service")
		case <-ticker.C:
			if time.Now().After(deadline) {
				return ballasterr.Errorf(ballasterr.CategoryDependencyFailure,
					"model service did not come up within %s", o.cfg.WaitBudget)
			}
		}
	}
}

// warmModels issues a tiny completion per configured model so the first
// real request does not pay the load cost. Failures are logged and
// skipped; warmup never fails the attempt.
func (o *Orchestrator) warmModels(ctx context.Context) {
	for _, model := range o.cfg.WarmupModels {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		_, err := o.gen.Generate(sctx, llm.GenerateRequest{
			Model:   model,
			Prompt:  "hello",
			Options: llm.Options{NumPredict: 1},
		})
		cancel()
		if err != nil {
			o.logger.Warn("model warmup failed", "model", model, "error", err)
			continue
		}
		o.logger.Debug("model warmed", "model", model)
	}
}

// verify runs a real completion; its outcome decides the attempt.
func (o *Orchestrator) verify(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	resp, err := o.gen.Generate(sctx, llm.GenerateRequest{
		Model:   o.cfg.VerifyModel,
		Prompt:  "Reply with the single word: ready",
		Options: llm.Options{NumPredict: 8, Temperature: 0},
	})
	if err != nil {
		return err
	}
	if resp.Response == "" {
		return ballasterr.New(ballasterr.CategoryDependencyFailure, "model service returned an empty completion")
	}
	return nil
}
