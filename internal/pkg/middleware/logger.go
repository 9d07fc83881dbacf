package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/pkg/httpx"
	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(status int) {
	if sw.status == 0 {
		sw.status = status
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func (sw *statusWriter) code() int {
	if sw.status == 0 {
		return http.StatusOK
	}
	return sw.status
}

type logOptions struct {
	skip []string
}

type LogOption func(*logOptions)

// SkipPaths keeps requests to the given exact paths out of the log. Used for
// health checks and the metrics endpoint.
func SkipPaths(paths ...string) LogOption {
	return func(o *logOptions) {
		o.skip = append(o.skip, paths...)
	}
}

// LogWith logs one line per request. Server errors are logged at error
// level, client errors at warn.
func LogWith(l *slog.Logger, opts ...LogOption) router.Middleware {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(o.skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			url := r.URL.String()

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			switch status := sw.code(); {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			l.Log(r.Context(), level, "request handled",
				"request_id", httpx.RequestID(r.Context()),
				"duration", time.Since(start),
				"method", r.Method,
				"url", url,
				"ip", r.RemoteAddr,
				"status", sw.code(),
				"bytes", sw.bytes,
				"agent", r.UserAgent())
		})
	}
}

// RequestID tags every request with an id, reusing a well-formed incoming
// X-Request-ID. The id is echoed in the response header.
func RequestID() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(httpx.WithRequestID(r.Context(), id)))
		})
	}
}
