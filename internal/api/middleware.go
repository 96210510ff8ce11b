package api

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a UUID (or propagates the caller's) and
// stores it in the request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := xglog.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter captures the response status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogger emits one structured log line per request and feeds the
// HTTP metrics.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			done := metrics.HTTPRequestStarted()
			defer done()

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			elapsed := time.Since(start)

			routePath := chi.RouteContext(r.Context()).RoutePattern()
			if routePath == "" {
				routePath = r.URL.Path
			}
			metrics.ObserveHTTPRequest(r.Method, routePath, strconv.Itoa(sw.status), elapsed.Seconds())

			evt := logger.Info()
			if sw.status >= 500 {
				evt = logger.Error()
			} else if sw.status >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str(xglog.FieldEvent, "http.request").
				Str(xglog.FieldRequestID, xglog.RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("duration", elapsed).
				Str("remote", r.RemoteAddr).
				Msg("request served")
		})
	}
}

// Recoverer converts handler panics into 500 responses instead of taking
// down the daemon.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Str("path", r.URL.Path).
						Msg("handler panic recovered")
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
