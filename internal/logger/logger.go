// Package logger wraps log/slog with the handful of helpers the service
// uses: environment-driven handler selection and domain-specific fields.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout.  Development environments get
// the text handler, everything else JSON.
func New(env, level string) *Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env, level string) *Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	var handler slog.Handler
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel converts string to slog.Level
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithSession adds the seat-selection session to logger context
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("session_id", sessionID))}
}

// LogSeatLocked logs a successful acquisition or refresh.
func (l *Logger) LogSeatLocked(ctx context.Context, showID uint64, seatCode, sessionID string, isNew bool) {
	l.Logger.InfoContext(ctx, "seat locked",
		slog.Uint64("show_id", showID),
		slog.String("seat", seatCode),
		slog.String("session_id", sessionID),
		slog.Bool("is_new_lock", isNew),
	)
}

// LogSeatConflict logs contention.  Conflicts are normal during seat
// selection and stay at debug level.
func (l *Logger) LogSeatConflict(ctx context.Context, showID uint64, seatCode, sessionID, reason string) {
	l.Logger.DebugContext(ctx, "seat unavailable",
		slog.Uint64("show_id", showID),
		slog.String("seat", seatCode),
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)
}

// LogSeatsReleased logs explicit releases.
func (l *Logger) LogSeatsReleased(ctx context.Context, sessionID string, count int64) {
	l.Logger.InfoContext(ctx, "seat locks released",
		slog.String("session_id", sessionID),
		slog.Int64("count", count),
	)
}

// LogBookingConfirmed logs a booking created from a session's locks.
func (l *Logger) LogBookingConfirmed(ctx context.Context, reservationID, showID uint64, sessionID string, seats int) {
	l.Logger.InfoContext(ctx, "booking confirmed",
		slog.Uint64("reservation_id", reservationID),
		slog.Uint64("show_id", showID),
		slog.String("session_id", sessionID),
		slog.Int("seats", seats),
	)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]any) {
	args := make([]any, 0, len(fields)+1)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}
