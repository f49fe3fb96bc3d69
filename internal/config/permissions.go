// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions checks if the config file is writable by group
// or other users and logs a warning if so. The config names the command
// the recovery orchestrator executes to restart the model service, so a
// writable config lets another local user run arbitrary commands as the
// daemon. Best-effort check — it does not fail startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		// No config file loaded (using defaults only). Nothing to check.
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Config file missing or inaccessible. Already logged elsewhere.
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupWrite fs.FileMode = 0o020
	const otherWrite fs.FileMode = 0o002

	if perm&(groupWrite|otherWrite) != 0 {
		slog.Warn(
			"config file is writable by other users — recovery start_command could be tampered with",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
