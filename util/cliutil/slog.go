package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// path to write to; "" or "-" for stderr
	LogPath string

	// text|json
	LogFormat string

	// info|debug|warn|error
	LogLevel string

	// include source file and line in log records
	AddSource bool
}

func firstenv(env_var_names ...string) string {
	for _, env_var_name := range env_var_names {
		val := os.Getenv(env_var_name)
		if val != "" {
			return val
		}
	}
	return ""
}

// Parses a log level name. Empty string is "info".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %#v", s)
}

// SetupSlog integrates passed in options and env vars, and sets the result as
// the slog default logger.
//
// passing default cliutil.LogOptions{} is ok.
//
// MBLOG_LOG_LEVEL=info|debug|warn|error
//
// MBLOG_LOG_FMT=text|json
//
// MBLOG_FILE=path (or "-" or "" for stderr)
//
// Logs go to stderr by default, because CLI tools print API responses on
// stdout.
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	hopts.AddSource = options.AddSource

	if options.LogLevel == "" {
		options.LogLevel = firstenv("MBLOG_LOG_LEVEL", "GOLOG_LOG_LEVEL")
	}
	level, err := ParseLevel(options.LogLevel)
	if err != nil {
		return nil, err
	}
	hopts.Level = level

	if options.LogFormat == "" {
		options.LogFormat = firstenv("MBLOG_LOG_FMT", "GOLOG_LOG_FMT")
	}
	if options.LogFormat == "" {
		options.LogFormat = "text"
	}
	options.LogFormat = strings.ToLower(options.LogFormat)

	if options.LogPath == "" {
		options.LogPath = firstenv("MBLOG_FILE", "GOLOG_FILE")
	}
	var out io.Writer
	if (options.LogPath == "") || (options.LogPath == "-") {
		out = os.Stderr
	} else {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
	}

	logger, err := NewLogger(out, options.LogFormat, &hopts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func NewLogger(out io.Writer, format string, hopts *slog.HandlerOptions) (*slog.Logger, error) {
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(out, hopts)
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %#v", format)
	}
	return slog.New(handler), nil
}
