// Package logging provides structured logging for the sync service using
// zerolog. Output is human-readable console text when attached to a
// terminal and JSON otherwise; level and format are controlled by the
// LOG_LEVEL and LOG_FORMAT environment variables.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger zerolog.Logger

// Nop discards all output; handy for tests.
var Nop = zerolog.Nop()

func init() {
	defaultLogger = newLogger(os.Stderr)
}

// Default returns the process-wide logger.
func Default() zerolog.Logger {
	return defaultLogger
}

// Component returns the default logger tagged with a component field.
func Component(name string) zerolog.Logger {
	return defaultLogger.With().Str("component", name).Logger()
}

type ctxKey struct{}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return logger
	}
	return defaultLogger
}

func newLogger(out *os.File) zerolog.Logger {
	var writer io.Writer = out
	if isatty(out) && os.Getenv("LOG_FORMAT") != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	level := levelFromEnv()
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// isatty checks if the output file is a terminal.
func isatty(out *os.File) bool {
	fileInfo, err := out.Stat()
	return err == nil && fileInfo.Mode()&os.ModeCharDevice != 0
}

func levelFromEnv() zerolog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
