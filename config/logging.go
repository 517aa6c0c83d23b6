package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the structured logger described by cfg. The returned
// close function releases a log file when output is a path.
func NewLogger(cfg LoggingConfig, stdout, stderr io.Writer) (*slog.Logger, func() error, error) {
	var out io.Writer
	closer := func() error { return nil }

	switch cfg.Output {
	case "", "stderr":
		out = stderr
	case "stdout":
		out = stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closer = f.Close
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
