// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the resolver daemon.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/astralstream/resolver/internal/config"
	"github.com/astralstream/resolver/internal/history"
	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/resolver"
)

// StreamResolver is the resolution engine the API fronts.
// Implemented by resolver.Resolver.
type StreamResolver interface {
	ResolveStream(ctx context.Context, url string) resolver.ResolutionResult
	SwitchQuality(id string) bool
	LastResult() *resolver.ResolutionResult
}

// HistoryStore records and lists resolution attempts. Implemented by
// history.Store; nil disables the history endpoints.
type HistoryStore interface {
	Append(ctx context.Context, e history.Entry) error
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// ReadyCheck reports whether a backing dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Server is the HTTP API server.
type Server struct {
	resolver  StreamResolver
	history   HistoryStore
	cfg       config.Config
	logger    zerolog.Logger
	startTime time.Time
	version   string
	checks    map[string]ReadyCheck
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHistory enables the history endpoints.
func WithHistory(h HistoryStore) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithReadyCheck registers a named readiness check.
func WithReadyCheck(name string, check ReadyCheck) ServerOption {
	return func(s *Server) { s.checks[name] = check }
}

// WithVersion sets the version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates the API server.
func NewServer(res StreamResolver, cfg config.Config, opts ...ServerOption) *Server {
	s := &Server{
		resolver:  res,
		cfg:       cfg,
		logger:    xglog.WithComponent("api"),
		startTime: time.Now(),
		version:   "dev",
		checks:    make(map[string]ReadyCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(Recoverer(s.logger))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			s.cfg.RateLimitRPM,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					"Too many requests. Please try again later.")
			}),
		))

		r.Get("/resolve", s.handleResolve)
		r.Get("/detect", s.handleDetect)
		r.Post("/quality/switch", s.handleQualitySwitch)
		r.Get("/history", s.handleHistory)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(xglog.FieldEvent, "api.listening").
			Str("addr", s.cfg.Listen).
			Str("version", s.version).
			Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Str(xglog.FieldEvent, "api.shutdown").Msg("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
