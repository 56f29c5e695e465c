// Package logging provides structured logging using Go's log/slog,
// writing hourly-rotated plain-text files under the project data
// directory's logs/{service}/ subtree alongside the usual stderr
// stream.
//
// Configuration is controlled via environment variables:
//   - CODESEARCH_LOG_LEVEL: debug, info, warn, error (default: info)
//   - CODESEARCH_LOG_FORMAT: text, json (default: text, stderr only)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log levels re-exported for convenience.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config holds logging configuration.
type Config struct {
	Level  slog.Level
	Format string    // "text" or "json", applies to the stderr stream
	Output io.Writer // defaults to os.Stderr
	Source string    // component name for context

	// LogDir, when non-empty, additionally writes hourly-rotated
	// plain-text files under LogDir/Source/YYYY-MM-DD-HH.log.
	LogDir string
}

// DefaultConfig returns sensible defaults for the given source component.
func DefaultConfig(source string) Config {
	return Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
		Source: source,
	}
}

// LoadConfigFromEnv reads logging config from environment variables,
// applied on top of DefaultConfig(source).
func LoadConfigFromEnv(source string) Config {
	cfg := DefaultConfig(source)

	if level := os.Getenv("CODESEARCH_LOG_LEVEL"); level != "" {
		switch strings.ToLower(level) {
		case "debug":
			cfg.Level = LevelDebug
		case "info":
			cfg.Level = LevelInfo
		case "warn", "warning":
			cfg.Level = LevelWarn
		case "error":
			cfg.Level = LevelError
		}
	}

	if format := os.Getenv("CODESEARCH_LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}

	return cfg
}

// New creates a configured slog.Logger. When cfg.LogDir is set, log
// records are duplicated to an hourly-rotated file handler in addition
// to the stderr stream.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var streamHandler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		streamHandler = slog.NewJSONHandler(output, opts)
	} else {
		streamHandler = slog.NewTextHandler(output, opts)
	}

	if cfg.LogDir == "" {
		return slog.New(streamHandler).With("source", cfg.Source)
	}

	fileHandler := newHourlyHandler(cfg.LogDir, cfg.Source, cfg.Level)
	return slog.New(fanoutHandler{handlers: []slog.Handler{streamHandler, fileHandler}}).With("source", cfg.Source)
}

// Default returns a logger with configuration loaded from environment,
// writing hourly files under dataDir/logs if dataDir is non-empty. This
// is the recommended way to create a logger in CLI entry points.
func Default(source, dataDir string) *slog.Logger {
	cfg := LoadConfigFromEnv(source)
	if dataDir != "" {
		cfg.LogDir = dataDir + "/logs"
	}
	return New(cfg)
}

// Nop returns a logger that discards all output. Useful for tests or
// when logging should be suppressed.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
