package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-Id"

// StatusClientClosedRequest is logged and reported for requests whose client
// left before a response was written. It is never sent.
const StatusClientClosedRequest = 499

type loggerKey struct{}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// withRequestID tags the request with a fresh id, attaches a logger carrying
// it to the context and logs the outcome.
func (g *Gateway) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)

		logger := g.logger.With("request_id", id, "remote_addr", g.clientIP(r))
		r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger))

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		switch {
		case rec.status != 0:
		case r.Context().Err() != nil:
			rec.status = StatusClientClosedRequest
		default:
			rec.status = http.StatusOK
		}
		if g.onServed != nil {
			g.onServed(r, rec.status)
		}
		logger.Info("Served request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start))
	})
}

// recoverer turns a panicking handler into a 500 so the listener keeps serving.
func (g *Gateway) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				loggerFrom(r.Context(), g.logger).Error("Recovered from panic in handler",
					"path", r.URL.Path,
					"panic", rv,
					"stack", string(debug.Stack()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
