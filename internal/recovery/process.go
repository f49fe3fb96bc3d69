// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package recovery

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// startGrace is how long a freshly started process must survive before
// the start is considered successful.
const startGrace = time.Second

// ProcessController inspects and starts the model service process.
type ProcessController interface {
	// Running reports whether a process with the given name exists.
	Running(ctx context.Context, name string) (bool, error)
	// Start launches the given command detached from the caller.
	Start(ctx context.Context, command []string) error
}

// HostProcessController manages real OS processes.
type HostProcessController struct{}

var _ ProcessController = HostProcessController{}

// Running scans the process table for a process whose name matches.
func (HostProcessController) Running(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ballasterr.New(ballasterr.CategoryValidation, "process name must not be empty")
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, ballasterr.Wrap(err, ballasterr.CategorySystem, "list processes")
	}
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			// The process may have exited between listing and inspection.
			continue
		}
		if strings.EqualFold(pname, name) {
			return true, nil
		}
	}
	return false, nil
}

// Start launches command and confirms it survives the start grace
// period. The child is deliberately not bound to ctx: the model service
// must outlive the recovery attempt and this process.
func (HostProcessController) Start(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return ballasterr.New(ballasterr.CategoryValidation, "start command must not be empty")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return ballasterr.Wrapf(err, ballasterr.CategoryDependencyFailure, "start %q", command[0])
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		if err != nil {
			return ballasterr.Wrapf(err, ballasterr.CategoryDependencyFailure, "%q exited during startup", command[0])
		}
		return ballasterr.Errorf(ballasterr.CategoryDependencyFailure, "%q exited immediately after start", command[0])
	case <-time.After(startGrace):
		return nil
	case <-ctx.Done():
		// The child keeps running; only the confirmation is abandoned.
		return ballasterr.Wrap(ctx.Err(), ballasterr.CategorySystem, "confirm process start")
	}
}
