package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/users"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string

	// HookSecret authenticates the identity provider's hook calls. Empty
	// means the hook endpoints refuse everything.
	HookSecret string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TracingEnabled wraps the router in otelhttp instrumentation.
	TracingEnabled bool
}

// Dependencies are the wired components the router exposes.
type Dependencies struct {
	Guard    rbac.Authorizer
	RBAC     *rbac.Handler
	Users    *users.Handler
	Service  *users.Service
	Accounts *users.Store
	Blobs    storage.BlobStore
	Auth     *middleware.AuthMiddleware
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker
	Logger   *observability.Logger
}

// Server is the assembled HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     *mux.Router
	httpServer *http.Server
	logger     *observability.Logger
}

// NewServer builds the router and the http.Server around it.
func NewServer(cfg Config, deps Dependencies) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "warden.http")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	// Probes and metrics sit outside every middleware chain.
	if s.deps.Health != nil {
		s.router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods("GET")
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods("GET")
	}

	// Provider hooks: shared-secret auth, no bearer tokens.
	hooks := s.router.PathPrefix("/internal/hooks").Subrouter()
	hooks.Use(mux.MiddlewareFunc(hookSecretMiddleware(s.config.HookSecret, s.logger)))
	registerHookRoutes(hooks, s.deps.Service)

	// The application API. The auth middleware only attaches identity;
	// public routes on this subrouter stay reachable without a token.
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	chain := []mux.MiddlewareFunc{
		mux.MiddlewareFunc(httputil.RequestIDMiddleware()),
		mux.MiddlewareFunc(httputil.LoggingMiddleware(s.logger)),
		mux.MiddlewareFunc(httputil.RecoveryMiddleware(s.logger)),
	}
	if s.deps.Metrics != nil {
		chain = append(chain, middleware.MetricsMiddleware(s.deps.Metrics))
	}
	chain = append(chain, mux.MiddlewareFunc(s.deps.Auth.Middleware))
	v1.Use(chain...)
	s.deps.RBAC.RegisterRoutes(v1)
	s.deps.Users.RegisterRoutes(v1)
	s.registerAvatarRoutes(v1)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.config.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
