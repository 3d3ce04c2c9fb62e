// Package logging provides the leveled printf-style logger used across
// vidrelay, backed by go-hclog with an optional file sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/term"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger provides leveled, optionally colored logging with optional file sink.
type Logger struct {
	hl   hclog.InterceptLogger
	file *os.File
	sink hclog.SinkAdapter
}

// NewLogger configures colors from cfg, writes to stderr, and optionally
// appends to cfg.LogFile. Call Close() when done if LogFile was set.
func NewLogger(cfg *config.Config) (*Logger, error) {
	color := hclog.ColorOff
	if term.Configure(cfg.ColorMode) {
		color = hclog.ForceColor
	}

	l := &Logger{hl: hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "vidrelay",
		Level:      levelFor(cfg.Verbose),
		Output:     os.Stderr,
		Color:      color,
		TimeFormat: timeFormat,
	})}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.sink = hclog.NewSinkAdapter(&hclog.LoggerOptions{
			Level:      levelFor(cfg.Verbose),
			Output:     f,
			Color:      hclog.ColorOff,
			TimeFormat: timeFormat,
		})
		l.hl.RegisterSink(l.sink)
	}
	return l, nil
}

// NewWithWriter returns an uncolored logger writing to w. Tests pass
// io.Discard.
func NewWithWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{hl: hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "vidrelay",
		Level:      levelFor(verbose),
		Output:     w,
		Color:      hclog.ColorOff,
		TimeFormat: timeFormat,
	})}
}

func levelFor(verbose bool) hclog.Level {
	if verbose {
		return hclog.Debug
	}
	return hclog.Info
}

// Named returns a child logger tagged with name. Children share the parent's
// sinks; only the root owns the log file.
func (l *Logger) Named(name string) *Logger {
	return &Logger{hl: l.hl.NamedIntercept(name)}
}

// HCLog exposes the underlying logger for packages that take hclog.Logger.
func (l *Logger) HCLog() hclog.Logger { return l.hl }

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.hl.DeregisterSink(l.sink)
	err := l.file.Close()
	l.file = nil
	return err
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.hl.Info(fmt.Sprintf(format, args...))
}

// Success logs at INFO level with a success marker.
func (l *Logger) Success(format string, args ...interface{}) {
	l.hl.Info(fmt.Sprintf(format, args...), "result", "ok")
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.hl.Warn(fmt.Sprintf(format, args...))
}

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.hl.Error(fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level only when verbose; no-op otherwise.
func (l *Logger) Debug(verbose bool, format string, args ...interface{}) {
	if !verbose {
		return
	}
	l.hl.Debug(fmt.Sprintf(format, args...))
}
