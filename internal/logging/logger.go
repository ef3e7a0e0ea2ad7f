package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"persistence-engine/internal/config"
)

type Logger struct {
	*slog.Logger
	config *config.LoggingConfig
}

type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
	ServiceKey       ContextKey = "service"
)

// Categories used by the persistence components.
const (
	CategoryEnvelope    = "envelope"
	CategorySerializer  = "serializer"
	CategoryStorage     = "storage"
	CategoryDatabase    = "database"
	CategoryPersistence = "persistence"
	CategoryAPI         = "api"
	CategoryRemote      = "remote"
	CategoryTracing     = "tracing"
)

// Sink is the logging collaborator every component writes to.
type Sink interface {
	Log(ctx context.Context, level slog.Level, category, message string, attrs ...any)
	LogException(ctx context.Context, level slog.Level, category, message string, err error, attrs ...any)
}

var _ Sink = (*Logger)(nil)

// NewLogger creates a new structured logger using slog
func NewLogger(cfg *config.LoggingConfig) *Logger {
	level := ParseLevel(cfg.Level)

	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	case "discard":
		writer = io.Discard
	default:
		if cfg.Output != "" {
			file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				writer = file
			} else {
				writer = os.Stdout
				slog.Warn("Failed to open log file, using stdout", "error", err, "file", cfg.Output)
			}
		} else {
			writer = os.Stdout
		}
	}

	return newLogger(writer, level, cfg)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	cfg := TestLoggingConfig()
	return newLogger(io.Discard, slog.LevelError+4, &cfg)
}

func newLogger(writer io.Writer, level slog.Level, cfg *config.LoggingConfig) *Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	switch cfg.Format {
	case "text", "console":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

// ParseLevel maps a config level name onto slog, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log writes message under category.
func (l *Logger) Log(ctx context.Context, level slog.Level, category, message string, attrs ...any) {
	l.WithContext(ctx).Logger.Log(ctx, level, message, append([]any{"category", category}, attrs...)...)
}

// LogException writes message under category with err attached.
func (l *Logger) LogException(ctx context.Context, level slog.Level, category, message string, err error, attrs ...any) {
	args := []any{"category", category}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.WithContext(ctx).Logger.Log(ctx, level, message, append(args, attrs...)...)
}

// WithContext creates a new logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	logger := l.Logger

	if correlationID := ctx.Value(CorrelationIDKey); correlationID != nil {
		logger = logger.With("correlation_id", correlationID)
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		logger = logger.With("request_id", requestID)
	}

	if service := ctx.Value(ServiceKey); service != nil {
		logger = logger.With("service", service)
	}

	return &Logger{
		Logger: logger,
		config: l.config,
	}
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	var args []interface{}
	for key, value := range fields {
		args = append(args, key, value)
	}

	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithField creates a new logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(key, value),
		config: l.config,
	}
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
		config: l.config,
	}
}

// RequestStart logs the start of a request
func (l *Logger) RequestStart(ctx context.Context, method, path, userAgent string) {
	if l.config != nil && !l.config.EnableRequestTracing {
		return
	}
	l.WithContext(ctx).Debug("Request started",
		"method", method,
		"path", path,
		"user_agent", userAgent,
	)
}

// RequestEnd logs the end of a request
func (l *Logger) RequestEnd(ctx context.Context, method, path string, statusCode int, duration time.Duration, size int64) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	l.WithContext(ctx).Logger.Log(ctx, level, "Request completed",
		"category", CategoryAPI,
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", size,
	)
}

// StorageOperation logs one provider operation and its outcome.
func (l *Logger) StorageOperation(ctx context.Context, kind, operation, key string, duration time.Duration, result string) {
	l.WithContext(ctx).Logger.Log(ctx, slog.LevelDebug, "Storage operation",
		"category", CategoryStorage,
		"kind", kind,
		"operation", operation,
		"key", key,
		"duration_ms", duration.Milliseconds(),
		"result", result,
	)
}

// Operation routes a provider operation record to sink, using
// StorageOperation when sink is a *Logger.
func Operation(ctx context.Context, sink Sink, kind, operation, key string, duration time.Duration, result string) {
	if l, ok := sink.(*Logger); ok {
		l.StorageOperation(ctx, kind, operation, key, duration, result)
		return
	}
	sink.Log(ctx, slog.LevelDebug, CategoryStorage, "Storage operation",
		"kind", kind,
		"operation", operation,
		"key", key,
		"result", result,
	)
}

// DatabaseStatement logs SQL statements when database logging is enabled.
func (l *Logger) DatabaseStatement(ctx context.Context, statement string, duration time.Duration, err error) {
	if l.config == nil || !l.config.EnableDatabaseLogging {
		return
	}
	logger := l.WithContext(ctx).With(
		"category", CategoryDatabase,
		"statement", statement,
		"duration_ms", duration.Milliseconds(),
	)

	if err != nil {
		logger.Error("Database statement failed", "error", err.Error())
	} else {
		logger.Debug("Database statement completed")
	}
}
