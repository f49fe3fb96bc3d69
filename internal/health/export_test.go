// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package health

import "context"

// ProbeAndReact exposes the tick body so tests can drive the monitor
// without running the ticker loop.
func (m *Monitor) ProbeAndReact(ctx context.Context) {
	m.probeAndReact(ctx)
}
