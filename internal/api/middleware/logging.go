// Package middleware holds HTTP middleware for the API router.
package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"lerian-mcp-git/internal/logging"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for the request ID
const RequestIDKey contextKey = "request_id"

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// slowRequestThreshold marks requests logged as slow
const slowRequestThreshold = time.Second

// LoggingMiddleware logs one line per request and propagates a request ID
type LoggingMiddleware struct {
	logger logging.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &LoggingMiddleware{logger: logger.WithComponent("http")}
}

// Handler returns the logging middleware handler
func (lm *LoggingMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = logging.WithTraceID(ctx, requestID)
			r = r.WithContext(ctx)
			w.Header().Set(RequestIDHeader, requestID)

			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			lm.logResponse(ctx, r, wrapper.statusCode, time.Since(start))
		})
	}
}

func (lm *LoggingMiddleware) logResponse(ctx context.Context, r *http.Request, statusCode int, duration time.Duration) {
	// health probes are noise
	if r.URL.Path == "/health" {
		return
	}

	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"duration", duration.String(),
		"remote", r.RemoteAddr,
	}

	switch {
	case statusCode >= http.StatusInternalServerError:
		lm.logger.ErrorContext(ctx, "Request failed", fields...)
	case statusCode >= http.StatusBadRequest:
		lm.logger.WarnContext(ctx, "Request rejected", fields...)
	case duration > slowRequestThreshold:
		lm.logger.WarnContext(ctx, "Slow request", fields...)
	default:
		lm.logger.InfoContext(ctx, "Request served", fields...)
	}
}

// GetRequestID returns the request ID stored by the middleware
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets WebSocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Flush implements http.Flusher when the underlying writer does
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
