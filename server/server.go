// Package server exposes the tiercache admin API over HTTP.
//
// Health probes and /metrics are public. Everything under /admin requires a
// bearer token accepted by the configured auth.JWTAuthenticator.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/tiercache/auth"
	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/fetch"
	"github.com/jonwraymond/tiercache/health"
	"github.com/jonwraymond/tiercache/observe"
)

var (
	ErrNilCache = errors.New("server: cache manager is required")
	ErrNilAuth  = errors.New("server: authenticator is required")
)

// Config wires the server to the components it administers.
type Config struct {
	// Addr is the listen address. Default: ":8080"
	Addr string

	Cache   *cache.Manager
	Fetcher *fetch.Fetcher

	// Health backs /healthz, /readyz and /health. Default: an empty aggregator.
	Health *health.Aggregator

	Auth *auth.JWTAuthenticator

	// Role is required of admin callers. Empty accepts any valid token.
	Role string

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger observe.Logger
}

// Server is the admin HTTP server.
type Server struct {
	srv    *http.Server
	router *mux.Router
	logger observe.Logger
}

// New builds the router and the underlying http.Server.
func New(cfg Config) (*Server, error) {
	if cfg.Cache == nil {
		return nil, ErrNilCache
	}
	if cfg.Auth == nil {
		return nil, ErrNilAuth
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Health == nil {
		cfg.Health = health.NewAggregator()
	}
	logger := observe.OrNop(cfg.Logger).With(observe.F("component", "server"))

	h := &handlers{cache: cfg.Cache, fetcher: cfg.Fetcher, logger: logger}
	router := mux.NewRouter()
	setupRoutes(router, h, cfg, logger)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		router: router,
		logger: logger,
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(context.Background(), "admin server listening", observe.F("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
