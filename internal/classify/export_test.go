// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package classify

import ballasterr "github.com/ballast-dev/ballast/pkg/errors"

// SetScanFunc swaps the keyword scanner for white-box testing and
// returns a restore func.
func SetScanFunc(fn func(string) ballasterr.Category) func() {
	old := scanText
	scanText = fn
	return func() { scanText = old }
}
