package errors

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a JSON slog logger that knows how to expand an AppError
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logger writing to stdout
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a logger writing JSON records to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// New creates a stdout logger for a named level
func New(level string) (*Logger, error) {
	return NewTo(os.Stdout, level)
}

// NewTo creates a logger for a named level writing to w
func NewTo(w io.Writer, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return NewLoggerTo(w, lvl), nil
}

// ParseLevel maps debug, info, warn or error onto a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", level)
}

// With returns a logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogError logs err at error level. An AppError contributes its type, code,
// message and context as separate attributes.
func (l *Logger) LogError(err error, message string, args ...any) {
	appErr, ok := AsAppError(err)
	if !ok {
		l.logger.Error(message, append([]any{"error", err.Error()}, args...)...)
		return
	}

	attrs := make([]any, 0, 6+2*len(appErr.Context)+len(args))
	attrs = append(attrs,
		"error_type", appErr.Type,
		"error_code", appErr.Code,
		"error_message", appErr.Message)
	for key, value := range appErr.Context {
		attrs = append(attrs, key, value)
	}
	l.logger.Error(message, append(attrs, args...)...)
}

func (l *Logger) Info(message string, args ...any)  { l.logger.Info(message, args...) }
func (l *Logger) Debug(message string, args ...any) { l.logger.Debug(message, args...) }
func (l *Logger) Warn(message string, args ...any)  { l.logger.Warn(message, args...) }
