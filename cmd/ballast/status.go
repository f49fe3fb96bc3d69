// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ballast-dev/ballast/internal/server"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and model service status",
		Long:  "Query the running daemon's status endpoint and display health and breaker state.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18799", "daemon address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)
	var body server.StatusBody
	if err := dc.getJSON("/api/v1/status", &body); err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Daemon at %s: %s\n", addr, err)
		return nil
	}

	uptime := time.Duration(body.UptimeSeconds * float64(time.Second)).Round(time.Second)
	_, _ = fmt.Fprintf(out, "Daemon at %s: %s (up %s)\n", addr, body.Status, uptime)

	h := body.Health
	_, _ = fmt.Fprintf(out, "Model service: %s (latency %.0fms, memory %.1f%%, error rate %.2f)\n",
		h.State, h.LatencyMS, h.MemoryPercent, h.ErrorRate)
	if h.Error != "" {
		_, _ = fmt.Fprintf(out, "  %s\n", h.Error)
	}

	if len(body.Breakers) > 0 {
		names := make([]string, 0, len(body.Breakers))
		for name := range body.Breakers {
			names = append(names, name)
		}
		sort.Strings(names)

		_, _ = fmt.Fprintln(out, "Breakers:")
		for _, name := range names {
			st := body.Breakers[name]
			_, _ = fmt.Fprintf(out, "  %-20s %s (consecutive failures: %d)\n", name+":", st.State, st.ConsecutiveFailures)
		}
	}

	return nil
}
