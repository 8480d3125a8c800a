// Package report turns engine output into the two user-visible surfaces
// spec.md names: structured log lines and Prometheus metrics. Logger wraps
// log/slog with a human/machine format switch; Reporter turns
// release.Result/engine.CycleSummary into log records and metric
// observations.
package report

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Format selects how log records are rendered.
type Format string

const (
	// FormatHuman is colorless-but-readable text, the slog text handler's
	// default rendering. Chosen automatically when stderr is a terminal.
	FormatHuman Format = "human"
	// FormatMachine is single-line JSON suitable for log aggregators.
	FormatMachine Format = "machine"
)

// DetectFormat picks FormatHuman when stderr is an interactive terminal,
// FormatMachine otherwise.
func DetectFormat() Format {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return FormatHuman
	}
	return FormatMachine
}

// Logger wraps slog.Logger with the format switch above.
type Logger struct {
	slog *slog.Logger
}

// NewLogger builds a Logger writing to os.Stderr in the given format at the
// given level.
func NewLogger(format Format, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == FormatMachine {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return &Logger{slog: slog.New(handler)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying additional attributes on every
// subsequent record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}
