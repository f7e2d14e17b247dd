// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ANSI color codes used for CLI output
const (
	ColorGreen  = "32"
	ColorYellow = "33"
	ColorRed    = "31"
	ColorCyan   = "36"
)

// supportsColor checks if the terminal supports ANSI color codes
func supportsColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) { // #nosec G115 - file descriptors are small integers
		return false
	}
	termEnv := os.Getenv("TERM")
	return termEnv != "" && termEnv != "dumb"
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115
}

// Colorize wraps s in the given ANSI color when stdout supports it.
func Colorize(s, colorCode string) string {
	if colorCode == "" || !supportsColor() {
		return s
	}
	return fmt.Sprintf("\033[%sm%s\033[0m", colorCode, s)
}

// SaltSourceColor picks the color an address is printed in: a locally
// derived fallback salt is highlighted because the address it yields
// differs from the one the salt service would give.
func SaltSourceColor(source string) string {
	switch source {
	case "remote":
		return ColorGreen
	case "fallback":
		return ColorYellow
	default:
		return ""
	}
}
