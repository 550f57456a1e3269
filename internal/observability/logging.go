// Package observability provides structured logging and Prometheus metrics.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `yaml:"level"`

	// Format specifies output format: "json" or "text"
	// JSON format is recommended for production; text for development
	Format string `yaml:"format"`

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer `yaml:"-"`

	// AddSource includes file and line number in log records
	AddSource bool `yaml:"add_source"`
}

// NewLogger builds a slog.Logger from config. Components derive their own
// loggers from it with .With("component", ...).
func NewLogger(config LogConfig) *slog.Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
