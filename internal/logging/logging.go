// Package logging wires up the process-wide structured logger.
//
// Logging is dependency-injected, never global: main constructs one
// *slog.Logger and threads it through the orchestrator; components
// that receive nil fall back to Discard via Default. The orchestrator
// attaches a run id to the logger at the start of each run, so every
// line for one run carries it.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
)

// discardHandler drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// Sinks describes which outputs AZURE_SYNC_STDOUT/AZURE_SYNC_SYSLOG select.
type Sinks struct {
	Stdout bool
	Syslog bool
}

// VerbosityLevel maps the 0..2 AZURE_SYNC_VERBOSE scale onto slog
// levels: 0 = warnings and errors only, 1 = info, 2 = debug.
func VerbosityLevel(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// New builds the process logger per sinks and verbosity. At least one
// sink is always active; if neither is requested, stdout is used so a
// run is never silently unobservable.
func New(sinks Sinks, verbosity int) (*slog.Logger, error) {
	level := VerbosityLevel(verbosity)
	var writers []io.Writer
	if sinks.Stdout || !sinks.Syslog {
		writers = append(writers, os.Stdout)
	}
	if sinks.Syslog {
		w, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_USER, "azure-sync")
		if err != nil {
			return nil, fmt.Errorf("logging: syslog: %w", err)
		}
		writers = append(writers, w)
	}
	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
