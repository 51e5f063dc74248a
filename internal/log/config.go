package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents the severity of a log message
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ToSlogLevel converts our Level to slog.Level
func (l Level) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for logs
type Format int

const (
	// FormatJSON emits one JSON object per line, the shape CloudWatch and Loki index.
	FormatJSON Format = iota
	FormatText
)

// ParseFormat parses a string into a Format
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "console":
		return FormatText
	default:
		return FormatJSON
	}
}

// Config holds configuration for the logger
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddSource bool

	// ServiceName is attached to every record as "service".
	ServiceName string
}

// DefaultConfig logs at INFO level in JSON format to stderr, keeping stdout
// free for command output such as the verdict document.
func DefaultConfig() Config {
	return Config{
		Level:       LevelInfo,
		Format:      FormatJSON,
		Output:      os.Stderr,
		ServiceName: "iamgate",
	}
}
