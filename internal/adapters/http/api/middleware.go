package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/contacts/pkg/logger"
	"github.com/okian/contacts/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// MetricsMiddleware records Prometheus metrics for endpoint.
func MetricsMiddleware(endpoint string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer wrapper to capture status code
			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			durationMs := float64(time.Since(start).Microseconds()) / 1000
			statusCodeStr := strconv.Itoa(wrapped.statusCode)

			metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)
			if wrapped.statusCode >= http.StatusBadRequest {
				metrics.RecordErrorByEndpoint(endpoint, r.Method, getErrorType(wrapped.statusCode))
			}
		})
	}
}

// RequestLogger attaches a request-scoped logger carrying the request id to
// the context and logs each completed request at debug level.
func RequestLogger(base logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			l := base.With(
				logger.String("request_id", id),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
			)
			ctx := logger.WithContext(r.Context(), l)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			l.Debug(ctx, "request served",
				logger.Int("status", wrapped.statusCode),
				logger.Any("duration", time.Since(start)),
			)
		})
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusUnauthorized:
		return "unauthorized"
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
