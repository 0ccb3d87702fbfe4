// Package logger provides structured logging configuration for stophistoryd.
//
// It creates slog.Logger instances configured from the service Config,
// supporting text and JSON output and configurable levels. All logs go to
// stdout for container-friendly collection.
package logger

import (
	"log/slog"
	"os"

	"github.com/transitwatch/stophistory/cmd/stophistoryd/config"
)

func New(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
