package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Correlation IDs travel as HTTP headers on the REST API and as gRPC
// metadata (lower-case keys) between the remote provider and its server.
const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"

	CorrelationIDMetadataKey = "x-correlation-id"
	RequestIDMetadataKey     = "x-request-id"
)

const maxIDLength = 64

func GenerateCorrelationID() string {
	return generateID("cor")
}

func GenerateRequestID() string {
	return generateID("req")
}

func generateID(prefix string) string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(bytes))
}

// EnsureIDs stores sanitized correlation and request IDs in ctx, generating
// whichever is missing, and returns both.
func EnsureIDs(ctx context.Context, correlationID, requestID, service string) (context.Context, string, string) {
	correlationID = SanitizeCorrelationID(correlationID)
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	requestID = SanitizeCorrelationID(requestID)
	if requestID == "" {
		requestID = GenerateRequestID()
	}

	ctx = ContextWithIDs(ctx, correlationID, requestID)
	if service != "" {
		ctx = context.WithValue(ctx, ServiceKey, service)
	}
	return ctx, correlationID, requestID
}

// CorrelationIDMiddleware tags each request with correlation and request
// IDs, taken from the incoming headers when present, and echoes them back.
func CorrelationIDMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, correlationID, requestID := EnsureIDs(r.Context(),
				r.Header.Get(CorrelationIDHeader),
				r.Header.Get(RequestIDHeader),
				"persistence-http",
			)

			w.Header().Set(CorrelationIDHeader, correlationID)
			w.Header().Set(RequestIDHeader, requestID)

			r = r.WithContext(ctx)
			logger.RequestStart(ctx, r.Method, r.URL.Path, r.UserAgent())

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs HTTP requests and responses
func LoggingMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.RequestEnd(r.Context(), r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), wrapped.size)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += int64(size)
	return size, err
}

func ExtractCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

func ExtractRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// CorrelationPairs returns the IDs in ctx as alternating metadata keys and
// values, ready for metadata.AppendToOutgoingContext.
func CorrelationPairs(ctx context.Context) []string {
	var pairs []string
	if id := ExtractCorrelationID(ctx); id != "" {
		pairs = append(pairs, CorrelationIDMetadataKey, id)
	}
	if id := ExtractRequestID(ctx); id != "" {
		pairs = append(pairs, RequestIDMetadataKey, id)
	}
	return pairs
}

// ContextWithIDs stores the non-empty IDs in ctx.
func ContextWithIDs(ctx context.Context, correlationID, requestID string) context.Context {
	if correlationID != "" {
		ctx = context.WithValue(ctx, CorrelationIDKey, correlationID)
	}
	if requestID != "" {
		ctx = context.WithValue(ctx, RequestIDKey, requestID)
	}
	return ctx
}

// SanitizeCorrelationID strips control characters so an ID cannot forge log
// lines, and caps its length.
func SanitizeCorrelationID(id string) string {
	id = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, id)
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return id
}
