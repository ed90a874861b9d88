package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/medora/medora/pkg/accounts"
	"github.com/medora/medora/pkg/articles"
	"github.com/medora/medora/pkg/audit"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/catalog"
	"github.com/medora/medora/pkg/config"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/middleware"
	"github.com/medora/medora/pkg/observability"
	"github.com/medora/medora/pkg/rbac"
	"github.com/medora/medora/pkg/realtime"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Deps are the collaborators of the API server. Redis and Metrics may be
// nil.
type Deps struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tokens  *auth.TokenManager
}

// RouteRegistrar is implemented by every handler group
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router, guard httputil.Guard)
}

// Server is the medora HTTP API
type Server struct {
	router   *mux.Router
	handler  http.Handler
	resolver *middleware.Resolver
	gate     *middleware.Gate
	hub      *realtime.Hub
	audit    *audit.DBLogger
}

// NewServer wires stores, handlers and middleware into one handler
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.DB == nil || deps.Logger == nil || deps.Tokens == nil {
		return nil, errors.New("config, database, logger and token manager are required")
	}
	cfg := deps.Config

	auditLogger, err := audit.NewDBLogger(deps.DB, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	rbacStore := rbac.NewStore(deps.DB)
	accountStore := accounts.NewStore(deps.DB)

	s := &Server{
		router: mux.NewRouter(),
		resolver: middleware.NewResolver(middleware.ResolverConfig{
			Tokens:      deps.Tokens,
			Permissions: rbacStore,
			Identities:  accountStore,
			DevHeader:   cfg.Auth.DevHeader,
			Metrics:     deps.Metrics,
		}),
		gate:  middleware.NewGate(deps.Metrics, auditLogger),
		audit: auditLogger,
	}

	if cfg.Realtime.Enabled {
		s.hub = realtime.NewHub(cfg.Realtime, s.resolver, deps.Redis, deps.Metrics, deps.Logger)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(deps.Logger))
	s.router.Use(httputil.RecoveryMiddleware)
	s.router.Use(httputil.MaxBytesMiddleware(maxBodyBytes))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.router.Use(s.resolver.Middleware)
	if cfg.RateLimit.Enabled && deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis, cfg.RateLimit.Requests, cfg.RateLimit.Window, deps.Metrics).
			TrustProxyHeaders(cfg.RateLimit.TrustProxy)
		s.router.Use(limiter.Middleware)
	}

	var broadcaster articles.Broadcaster
	if s.hub != nil {
		broadcaster = s.hub
	}

	s.Register(
		accounts.NewHandlers(accountStore, rbacStore, deps.Tokens, auditLogger),
		rbac.NewHandlers(rbacStore, auditLogger),
		catalog.NewHandlers(catalog.NewStore(deps.DB)),
		articles.NewHandlers(articles.NewStore(deps.DB), broadcaster),
		audit.NewHandlers(auditLogger),
	)

	if s.hub != nil {
		s.router.Handle("/ws", s.hub).Methods(http.MethodGet)
	}

	s.handler = s.router
	if cfg.Observability.OTelEnabled {
		s.handler = otelhttp.NewHandler(s.router, "medora-api")
	}

	return s, nil
}

// Register adds the routes of each registrar behind the server's gate
func (s *Server) Register(registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(s.router, s.gate)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Hub returns the realtime hub, or nil when realtime is disabled
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// AuditLog returns the audit trail store
func (s *Server) AuditLog() *audit.DBLogger {
	return s.audit
}
