// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ballast-dev/ballast/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ballast daemon",
		Long:  "Load configuration, wire all subsystems, and run the health monitor and ops HTTP server until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override ops server listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath := resolveConfigPath(cmd)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	setupLogging(cfg.Logging, verbose)
	config.WarnInsecurePermissions(cfgPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := WireRuntime(cfg)
	if err != nil {
		return fmt.Errorf("wiring runtime: %w", err)
	}
	defer func() { _ = rt.Close() }()

	slog.Info("starting ballast",
		"listen", cfg.Server.Listen,
		"service", cfg.Service.Name,
		"base_url", cfg.Service.BaseURL,
	)

	return rt.Run(ctx)
}

// setupLogging installs the process-wide slog handler from config, with
// --verbose forcing debug level.
func setupLogging(cfg config.LoggingConfig, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	slog.SetDefault(slog.New(h))
}
