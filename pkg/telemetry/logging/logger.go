package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Format represents the output format for logs.
type Format string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = "json"
	// FormatText outputs logs in logfmt-style text format.
	FormatText Format = "text"
	// FormatConsole outputs logs like text but without timestamps, for
	// interactive use.
	FormatConsole Format = "console"
)

// Options configures logger construction. The zero value yields an info-level
// text logger on stderr.
type Options struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Empty defaults to "info".
	Level string

	// Format is the output encoding: "json", "text", or "console".
	// Empty defaults to "text".
	Format string

	// Output is the log destination: "stderr", "stdout", or a file path
	// (opened append-only, created 0600). Empty defaults to "stderr".
	Output string

	// Verbose lowers the effective level to debug regardless of Level.
	Verbose bool

	// Writer overrides Output resolution entirely. Tests use this to
	// capture log lines.
	Writer io.Writer
}

// New builds a logger from opts. The returned close function releases a file
// output and is a no-op for stderr, stdout, and Writer overrides.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	format, err := parseFormat(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	writer := opts.Writer
	closeFn := func() error { return nil }
	if writer == nil {
		writer, closeFn, err = resolveOutput(opts.Output)
		if err != nil {
			return nil, nil, err
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOpts)
	case FormatConsole:
		// Same encoding as text, minus the timestamp: an interactive
		// run already knows when it happened.
		handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
		handler = slog.NewTextHandler(writer, handlerOpts)
	default:
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler), closeFn, nil
}

// Setup builds a logger from opts and installs it as the process default via
// slog.SetDefault. Component loggers across the codebase derive from the
// default, so Setup must run before any vault operation. The returned close
// function releases a file output.
func Setup(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

// parseLevel converts a level name to a slog.Level.
func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", level)
	}
}

// parseFormat converts a format name to a Format.
func parseFormat(format string) (Format, error) {
	switch format {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "console":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format %q: must be 'json', 'text', or 'console'", format)
	}
}

// resolveOutput maps an output name to a writer. File outputs are opened
// append-only and created 0600: log lines can mention credential names and
// services, which are operational metadata but still nobody else's business.
func resolveOutput(output string) (io.Writer, func() error, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %q: %w", output, err)
		}
		return f, f.Close, nil
	}
}
