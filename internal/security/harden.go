// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package security applies process-level protections for long-running
// binaries that hold session keys in memory.
package security

import "log/slog"

// Harden applies every protection it can and logs the ones that failed.
// It reports whether all of them took effect.
func Harden(logger *slog.Logger) bool {
	ok := true
	if err := DisableCoreDumps(); err != nil {
		logger.Warn("core dumps not disabled", "error", err)
		ok = false
	}
	if err := LockMemory(); err != nil {
		logger.Warn("memory not locked; session keys may be swapped to disk", "error", err)
		ok = false
	}
	return ok
}
