// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ballast-dev/ballast/internal/config"
	"github.com/ballast-dev/ballast/internal/llm"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, configuration, daemon and model service reachability, and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "127.0.0.1:18799", "daemon address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	cfgPath := resolveConfigPath(cmd)

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgPath) }},
		{"Daemon", func() string { return checkDaemon(addr) }},
		{"Model Service", func() string { return checkModelService(cfgPath) }},
		{"Disk Space", checkDiskSpace},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("ballast %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(cfgPath string) string {
	if cfgPath == "" {
		return "using defaults (no config file found)"
	}
	if _, err := config.Load(cfgPath); err != nil {
		return fmt.Sprintf("error in %s: %s", cfgPath, err)
	}
	return fmt.Sprintf("loaded from %s", cfgPath)
}

func checkDaemon(addr string) string {
	dc := newDaemonClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := dc.getJSON("/health", &body); err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			return fmt.Sprintf("not running at %s (run 'ballast start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkModelService(cfgPath string) string {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "skipped (config invalid)"
	}

	client := llm.New(llm.Config{
		BaseURL:        cfg.Service.BaseURL,
		RequestTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	live, err := client.Ping(ctx)
	if err != nil {
		return fmt.Sprintf("unreachable at %s: %s", cfg.Service.BaseURL, err)
	}
	if len(live.Models) == 0 {
		return fmt.Sprintf("up at %s but no model is loaded", cfg.Service.BaseURL)
	}
	return fmt.Sprintf("up at %s (%d model(s) loaded)", cfg.Service.BaseURL, len(live.Models))
}

func checkDiskSpace() string {
	path, err := os.UserHomeDir()
	if err != nil {
		path = "/"
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
