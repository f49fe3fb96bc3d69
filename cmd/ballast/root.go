// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/ballast-dev/ballast/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root ballast command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ballast",
		Short:         "Ballast — resilience daemon for a local model service",
		Long:          "Ballast watches a local model service, serves degraded analytics results when it fails, and restarts it when it goes down.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags shared by all subcommands.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newRecoverCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// resolveConfigPath returns the config file to load: the --config flag if
// set, otherwise the first ballast.yaml found in the standard locations,
// otherwise a freshly bootstrapped default. Empty means run on built-in
// defaults and environment variables alone.
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFile, _ := cmd.Root().PersistentFlags().GetString("config"); cfgFile != "" {
		return cfgFile
	}

	candidates := []string{"ballast.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ballast", "ballast.yaml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "ballast", "ballast.yaml"))

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}

	// No config found anywhere. Bootstrap a commented default to
	// ~/.config/ballast/ so operators have something to edit.
	return config.BootstrapConfig()
}
