package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hermesgw/hermes/internal/logging"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

// Middleware wraps an http.Handler, matching the teacher's func-chaining
// convention for the outer (request-id/recovery/access-log) layer; the
// inner routing/plugin/proxy pipeline is driven by Gateway directly.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares in the order given, outermost first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

const requestIDHeader = "X-Request-ID"

// RequestID stamps every request with an X-Request-ID, trusting an
// inbound header if present.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			r.Header.Set(requestIDHeader, id)
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// Recovery converts a panic into a 500 JSON response instead of crashing
// the connection, logging the stack for diagnosis.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Error("panic recovered",
						zap.Any("error", err),
						zap.ByteString("stack", debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprintf(w, `{"error":"internal_error"}`)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog emits one structured log line per request.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logging.Info("request",
				zap.String("request_id", r.Header.Get(requestIDHeader)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the embedded writer when it supports streaming, so a
// recorder sitting in front of afterInterceptor doesn't silently swallow
// per-chunk flushes (spec §4.7: the response body is streamed as bytes
// arrive).
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the embedded writer for http.ResponseController. Plain
// type assertions (e.g. afterInterceptor's Flusher check) do not use it;
// they find statusRecorder's own Flush method.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
