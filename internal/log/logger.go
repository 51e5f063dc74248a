package log

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	out := config.Output
	if out == nil {
		out = io.Discard
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if config.ServiceName != "" {
		l = l.With("service", config.ServiceName)
	}
	return &Logger{slog: l, config: config}
}

// Nop returns a logger that discards everything, for tests and library defaults.
func Nop() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// WithRun attaches the run correlation fields carried by every stage log line.
// Empty values are omitted.
func (l *Logger) WithRun(runID, repo, sha string) *Logger {
	var args []any
	if runID != "" {
		args = append(args, "run_id", runID)
	}
	if repo != "" {
		args = append(args, "repo", repo)
	}
	if sha != "" {
		args = append(args, "sha", sha)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

// WithError adds error details to the logger.
// GateErrors contribute error_code, error_kind and retryable.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	var ge *errors.GateError
	if errors.As(err, &ge) {
		args := []any{
			"error", err.Error(),
			"error_code", string(ge.Code),
			"error_kind", string(ge.Kind),
			"retryable", ge.Retryable,
		}
		return l.With(args...)
	}

	return l.With("error", err.Error())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
)

// SetDefault sets the process-wide default logger.
func SetDefault(logger *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the process-wide logger, initialising it lazily.
func Default() *Logger {
	loggerMu.RLock()
	if defaultLogger != nil {
		defer loggerMu.RUnlock()
		return defaultLogger
	}
	loggerMu.RUnlock()

	logger := New(DefaultConfig())
	SetDefault(logger)
	return logger
}

// OrDefault returns l, or the process-wide logger when l is nil.
func OrDefault(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Default()
}
