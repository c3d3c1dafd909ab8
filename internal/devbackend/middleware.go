package devbackend

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/observability"
)

type requestIDKey struct{}

// RequestIDFrom returns the request id set by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Recovery turns panics in handlers into 500 responses.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID reads X-Request-Id or generates one, and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// SecurityHeaders sets standard security response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RequestLogging logs each request at debug level.
func RequestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("trace_id", observability.TraceIDFromContext(r.Context())),
			)
			ww := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(observability.WithLogger(r.Context(), reqLogger)))
			reqLogger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// RequireTenant rejects requests without the tenant header.
func RequireTenant(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if header == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(header) == "" {
				writeError(w, http.StatusBadRequest, "Missing "+header+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ReplayedHeader marks a response served from the idempotency cache.
const ReplayedHeader = "Idempotent-Replayed"

// Idempotency replays the stored response of a mutation whose idempotency
// key was already seen. Server errors are not stored so they can be retried.
// A failing store degrades to executing the request.
func Idempotency(store ReplayStore, tenantHeader string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(api.IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			id := r.Header.Get(tenantHeader) + " " + r.Method + " " + r.URL.Path + " " + key
			prev, ok, err := store.Get(r.Context(), id)
			if err != nil {
				observability.LoggerFrom(r.Context(), logger).Warn("replay lookup failed", zap.Error(err))
			}
			if ok {
				for k, v := range prev.Header {
					w.Header()[k] = v
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(prev.Status)
				_, _ = w.Write(prev.Body)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK, buf: &bytes.Buffer{}}
			next.ServeHTTP(cw, r)
			if cw.status < http.StatusInternalServerError {
				rec := replay{Status: cw.status, Header: w.Header().Clone(), Body: cw.buf.Bytes()}
				if err := store.Put(r.Context(), id, rec); err != nil {
					observability.LoggerFrom(r.Context(), logger).Warn("replay store failed", zap.Error(err))
				}
			}
		})
	}
}

// captureWriter records the status and, when buf is set, the body.
type captureWriter struct {
	http.ResponseWriter
	status  int
	written bool
	buf     *bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.written = true
	if w.buf != nil {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}
