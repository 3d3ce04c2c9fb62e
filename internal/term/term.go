// Package term holds the ANSI palette shared by the banner, the log output
// and the plan table, plus TTY detection.
//
// The palette is set once by [Configure]. With colors off every code is the
// empty string, so callers concatenate unconditionally.
package term

import (
	"os"
	"strings"

	"github.com/backmassage/vidrelay/internal/config"
)

// Palette. Empty when colors are disabled.
var (
	Red     = "" // Failures and plan problems.
	Yellow  = "" // Split plans.
	Cyan    = "" // User route.
	Magenta = "" // Banner.
	NC      = "" // Reset.
)

const (
	ansiRed     = "\033[1;91m"
	ansiYellow  = "\033[1;93m"
	ansiCyan    = "\033[1;96m"
	ansiMagenta = "\033[1;95m"
	ansiReset   = "\033[0m"
)

// Configure sets the palette for mode and reports whether colors are on.
// It is called from [logging.NewLogger].
func Configure(mode config.ColorMode) bool {
	if !wantColor(mode, os.Getenv) {
		Red, Yellow, Cyan, Magenta, NC = "", "", "", "", ""
		return false
	}
	Red, Yellow, Cyan, Magenta, NC = ansiRed, ansiYellow, ansiCyan, ansiMagenta, ansiReset
	return true
}

// Enabled reports whether the palette is active.
func Enabled() bool { return NC != "" }

// Paint wraps s in color and a reset. An empty color returns s unchanged.
func Paint(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + NC
}

// wantColor decides auto mode from stderr (where logs go), NO_COLOR,
// FORCE_COLOR and TERM.
func wantColor(mode config.ColorMode, getenv func(string) string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return IsTerminal(os.Stderr) && !strings.EqualFold(getenv("TERM"), "dumb")
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
