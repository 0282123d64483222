// Package server exposes the proxy over HTTP: the chat completion
// passthrough route, health probes, the metrics scrape endpoint, and
// read-only pool monitoring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"keywheel-hq/keywheel/pkg/dispatch"
	"keywheel-hq/keywheel/pkg/history"
	"keywheel-hq/keywheel/pkg/pool"
	"keywheel-hq/keywheel/pkg/ratelimit"
)

// Config configures the server.
type Config struct {
	// ListenAddr is the host:port to bind.
	ListenAddr string

	// ReadTimeout bounds reading an inbound request.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration

	// Orchestrator dispatches chat completions. Required.
	Orchestrator *dispatch.Orchestrator

	// Pool serves stats and connection snapshots. Required.
	Pool *pool.Manager

	// Limiter throttles inbound requests per profile. Optional.
	Limiter *ratelimit.Limiter

	// History serves recent dispatch records. Optional.
	History *history.Log

	// MetricsHandler serves GET /metrics. Optional.
	MetricsHandler http.Handler

	// Logger receives server events. Default: slog.Default().
	Logger *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	handler    *handler
	logger     *slog.Logger
}

// New creates the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &handler{
		orchestrator: cfg.Orchestrator,
		pool:         cfg.Pool,
		limiter:      cfg.Limiter,
		history:      cfg.History,
		logger:       cfg.Logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", h.chatCompletions)
	mux.HandleFunc("GET /v1/pool/stats", h.poolStats)
	mux.HandleFunc("GET /v1/pool/connections", h.poolConnections)
	mux.HandleFunc("GET /v1/history", h.recentHistory)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: h,
		logger:  cfg.Logger.With("component", "server"),
	}, nil
}

// Handler returns the route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown or a listener
// error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}
