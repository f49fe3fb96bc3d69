// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package health

import (
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resources is a point-in-time sample of host resource usage.
type Resources struct {
	MemoryPercent float64
	CPUPercent    float64
}

// Sampler reads host resource usage for threshold checks during probes.
type Sampler interface {
	Sample() (Resources, error)
}

// SystemSampler reads live host metrics.
type SystemSampler struct{}

var _ Sampler = SystemSampler{}

// Sample returns current memory and CPU utilization. Memory stats are
// required; a CPU read failure degrades to a zero CPU figure because the
// monitor has no CPU threshold to enforce.
func (SystemSampler) Sample() (Resources, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Resources{}, ballasterr.Wrap(err, ballasterr.CategorySystem, "read memory stats")
	}

	res := Resources{MemoryPercent: vm.UsedPercent}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		res.CPUPercent = pcts[0]
	}
	return res, nil
}
