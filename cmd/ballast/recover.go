// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ballast-dev/ballast/internal/server"
	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Trigger a model service recovery attempt",
		Long:  "Ask the running daemon to restart and warm up the model service now instead of waiting for the next probe.",
		RunE:  runRecover,
	}

	cmd.Flags().String("address", "127.0.0.1:18799", "daemon address to contact")

	return cmd
}

func runRecover(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)
	var body server.RecoveryBody
	code, err := dc.postJSON("/api/v1/recovery", &body)
	if err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	switch code {
	case http.StatusOK:
		_, _ = fmt.Fprintf(out, "Recovery %s; watch 'ballast status' for the outcome\n", body.Status)
	case http.StatusConflict:
		_, _ = fmt.Fprintln(out, "A recovery attempt is already in flight")
	case http.StatusServiceUnavailable:
		_, _ = fmt.Fprintln(out, "Daemon has no recovery orchestrator configured")
	default:
		_, _ = fmt.Fprintf(out, "Daemon returned status %d\n", code)
	}

	return nil
}
