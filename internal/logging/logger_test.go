package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"persistence-engine/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config config.LoggingConfig
	}{
		{"development config", DevelopmentLoggingConfig()},
		{"debug config", DebugLoggingConfig()},
		{"test config", TestLoggingConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(&tt.config)
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}

			logger.Info("Test log message", "test", true)
			logger.Log(context.Background(), slog.LevelDebug, CategoryStorage, "Debug message")
		})
	}
}

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "json", EnableDatabaseLogging: true}
	return newLogger(&buf, level, &cfg), &buf
}

func TestSinkWritesCategory(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelDebug)

	logger.Log(context.Background(), slog.LevelWarn, CategorySerializer, "serializer degraded", "format", "cbor")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["category"] != CategorySerializer {
		t.Errorf("Expected category %s, got %v", CategorySerializer, entry["category"])
	}
	if entry["msg"] != "serializer degraded" {
		t.Errorf("Unexpected message %v", entry["msg"])
	}
	if entry["format"] != "cbor" {
		t.Errorf("Expected format attr, got %v", entry["format"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("Expected WARN level, got %v", entry["level"])
	}
}

func TestSinkLogException(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelDebug)

	logger.LogException(context.Background(), slog.LevelError, CategoryDatabase, "query failed", errors.New("disk I/O error"), "table", "saves")

	out := buf.String()
	for _, want := range []string{`"category":"database"`, `"error":"disk I/O error"`, `"table":"saves"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelWarn)

	logger.Log(context.Background(), slog.LevelInfo, CategoryStorage, "hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	logger := Nop()
	logger.LogException(context.Background(), slog.LevelError, CategoryStorage, "ignored", errors.New("boom"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCorrelationID(t *testing.T) {
	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()

	if id1 == id2 {
		t.Error("Expected different correlation IDs")
	}

	if id1 == "" || id2 == "" {
		t.Error("Expected non-empty correlation IDs")
	}

	ctx := ContextWithIDs(context.Background(), id1, "req123")

	if got := ExtractCorrelationID(ctx); got != id1 {
		t.Errorf("Expected correlation ID %s, got %s", id1, got)
	}

	if got := ExtractRequestID(ctx); got != "req123" {
		t.Errorf("Expected request ID req123, got %s", got)
	}

	pairs := CorrelationPairs(ctx)
	want := []string{CorrelationIDMetadataKey, id1, RequestIDMetadataKey, "req123"}
	if strings.Join(pairs, ",") != strings.Join(want, ",") {
		t.Errorf("Unexpected metadata pairs %v", pairs)
	}
	if pairs := CorrelationPairs(context.Background()); len(pairs) != 0 {
		t.Errorf("Expected no pairs without IDs, got %v", pairs)
	}
}

func TestEnsureIDs(t *testing.T) {
	ctx, cid, rid := EnsureIDs(context.Background(), "", "req\t9", "persistence-grpc")
	if !strings.HasPrefix(cid, "cor_") {
		t.Errorf("Expected generated correlation ID, got %q", cid)
	}
	if rid != "req9" {
		t.Errorf("Unexpected request ID %q", rid)
	}
	if ExtractCorrelationID(ctx) != cid || ExtractRequestID(ctx) != rid {
		t.Error("Expected IDs stored in the context")
	}
	if ctx.Value(ServiceKey) != "persistence-grpc" {
		t.Errorf("Expected service in context, got %v", ctx.Value(ServiceKey))
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	logger, _ := newBufferLogger(slog.LevelDebug)

	var seen string
	handler := CorrelationIDMiddleware(logger)(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ExtractCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationIDHeader, "abc\n123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "abc123" {
		t.Errorf("Expected sanitized correlation ID abc123, got %q", seen)
	}
	if rec.Header().Get(CorrelationIDHeader) != "abc123" {
		t.Errorf("Expected correlation header echoed, got %q", rec.Header().Get(CorrelationIDHeader))
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected generated request ID header")
	}
}

func TestSanitizeCorrelationID(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := SanitizeCorrelationID(long); len(got) != 64 {
		t.Errorf("Expected truncation to 64 chars, got %d", len(got))
	}
}

type recordingSink struct {
	category string
	message  string
	attrs    []any
}

func (r *recordingSink) Log(_ context.Context, _ slog.Level, category, message string, attrs ...any) {
	r.category, r.message, r.attrs = category, message, attrs
}

func (r *recordingSink) LogException(ctx context.Context, level slog.Level, category, message string, err error, attrs ...any) {
	r.Log(ctx, level, category, message, append(attrs, "error", err.Error())...)
}

func TestOperation(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelDebug)
	ctx := ContextWithIDs(context.Background(), "corr-1", "req-1")

	Operation(ctx, logger, "jsonfile", "save", "score", 3*time.Millisecond, "Success")

	out := buf.String()
	for _, want := range []string{`"kind":"jsonfile"`, `"operation":"save"`, `"key":"score"`, `"duration_ms":3`, `"correlation_id":"corr-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}

	sink := &recordingSink{}
	Operation(context.Background(), sink, "database", "load", "slot1", time.Millisecond, "NotFound")
	if sink.category != CategoryStorage || sink.message != "Storage operation" {
		t.Errorf("Unexpected record %s/%s", sink.category, sink.message)
	}
	if len(sink.attrs) != 8 || sink.attrs[7] != "NotFound" {
		t.Errorf("Unexpected attrs %v", sink.attrs)
	}
}

func TestDatabaseStatement(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelDebug)
	logger.DatabaseStatement(context.Background(), "SELECT 1", time.Millisecond, errors.New("locked"))
	if !strings.Contains(buf.String(), `"statement":"SELECT 1"`) || !strings.Contains(buf.String(), `"error":"locked"`) {
		t.Errorf("Expected failed statement record, got %s", buf.String())
	}

	var quiet bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "json"}
	newLogger(&quiet, slog.LevelDebug, &cfg).DatabaseStatement(context.Background(), "SELECT 1", time.Millisecond, nil)
	if quiet.Len() != 0 {
		t.Errorf("Expected no output with database logging disabled, got %s", quiet.String())
	}
}
