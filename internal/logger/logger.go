// Package logger provides structured logging for attachment and path cache events.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// New creates a JSON logger writing to stdout at the given level.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Discard returns a logger that drops everything. Useful as a default.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// EventLogger records the recoverable events of the attachment layer:
// skipped cache writes, failed path lookups and configuration hints.
// None of these are fatal; they are logged and the caller carries on.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger wraps an slog.Logger. A nil logger discards events.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = Discard()
	}
	return &EventLogger{logger: logger}
}

// NewEventLoggerWithHandler creates an EventLogger with a custom handler.
func NewEventLoggerWithHandler(handler slog.Handler) *EventLogger {
	return &EventLogger{logger: slog.New(handler)}
}

// ReadOnlySkip logs a path cache write that was skipped because the owner is read-only.
func (l *EventLogger) ReadOnlySkip(ownerType string, ownerID any, column string) {
	l.logger.Info("path_cache_write_skipped",
		slog.String("event_type", "read_only_skip"),
		slog.String("owner_type", ownerType),
		slog.Any("owner_id", ownerID),
		slog.String("column", column),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// PathLookupFailed logs a path resolution failure that was swallowed by the cache layer.
func (l *EventLogger) PathLookupFailed(ownerType, slot, variant string, err error) {
	l.logger.Warn("attachment_path_lookup_failed",
		slog.String("event_type", "path_lookup_failed"),
		slog.String("owner_type", ownerType),
		slog.String("slot", slot),
		slog.String("variant", variant),
		slog.String("error", err.Error()),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// MissingCacheColumn logs the hint that an owner could cache attachment paths.
func (l *EventLogger) MissingCacheColumn(ownerType, column string) {
	l.logger.Info("path_cache_column_missing",
		slog.String("event_type", "config_hint"),
		slog.String("owner_type", ownerType),
		slog.String("column", column),
		slog.String("hint", "consider adding a '"+column+"' column for "+ownerType+" to cache attachment paths"),
	)
}

// IgnoredOption logs an attachment option that was dropped during declaration.
func (l *EventLogger) IgnoredOption(kind, option, reason string) {
	l.logger.Info("attachment_option_ignored",
		slog.String("event_type", "config_hint"),
		slog.String("kind", kind),
		slog.String("option", option),
		slog.String("reason", reason),
	)
}

// FileCleanupFailed logs a failure to remove stored file data after a destroy.
func (l *EventLogger) FileCleanupFailed(path string, err error) {
	l.logger.Warn("attachment_file_cleanup_failed",
		slog.String("event_type", "cleanup_failed"),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// Debug logs a debug message.
func (l *EventLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an informational message.
func (l *EventLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Error logs an error message.
func (l *EventLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// GetLogger returns the underlying slog.Logger.
func (l *EventLogger) GetLogger() *slog.Logger {
	return l.logger
}
