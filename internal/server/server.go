package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/handler"
	"github.com/cathouse/taskmanager/internal/server/middleware"
	"github.com/cathouse/taskmanager/internal/service"
	"github.com/cathouse/taskmanager/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	// RateLimit is the number of /execute calls allowed per service key per
	// minute. Zero disables limiting.
	RateLimit int
	// AdminRateLimit is the number of /admin calls allowed per client IP per
	// minute. Zero disables limiting.
	AdminRateLimit int
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8000,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     1 << 20, // 1MB
		RateLimit:       0,
		AdminRateLimit:  30,
		MetricsEnabled:  true,
	}
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store    *store.Store
	Keys     *service.KeyService
	Admin    *service.AdminAuth
	Registry *command.Registry
	Version  string
}

// Server is the top-level HTTP server. It owns the Chi router, the command
// router and the store it closes on shutdown.
type Server struct {
	cfg        Config
	deps       Deps
	commands   *command.Router
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.commands = command.NewRouter(deps.Keys, deps.Registry, deps.Store, logger,
		command.WithRequestID(middleware.GetRequestID))
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if s.cfg.MetricsEnabled {
		r.Use(middleware.Metrics)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", handler.ServiceKeyHeader, middleware.AdminKeyHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.Version)
	cmdHandler := handler.NewCommandHandler(s.commands, s.logger)
	adminHandler := handler.NewAdminHandler(s.deps.Keys, s.logger)
	openAPIHandler := handler.NewOpenAPIHandler(s.deps.Version, s.deps.Registry)

	// --- Probes and docs (no auth required) ---
	r.Get("/health", sysHandler.Health)
	r.Get("/readyz", sysHandler.Readyz)
	r.Get("/openapi.json", openAPIHandler.ServeSpec)
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- Command endpoint (service key checked by the command router) ---
	r.Group(func(r chi.Router) {
		if s.cfg.MaxBodySize > 0 {
			r.Use(maxBytes(s.cfg.MaxBodySize))
		}
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimitByHeader(handler.ServiceKeyHeader, s.cfg.RateLimit))
		}
		r.Post("/execute", cmdHandler.Execute)
	})

	// --- Key administration ---
	r.Route("/admin", func(r chi.Router) {
		// Limit before the key check so failed guesses count too.
		if s.cfg.AdminRateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.AdminRateLimit))
		}
		r.Use(middleware.RequireAdminKey(s.deps.Admin))
		if s.cfg.MaxBodySize > 0 {
			r.Use(maxBytes(s.cfg.MaxBodySize))
		}

		r.Get("/service-keys", adminHandler.ListKeys)
		r.Post("/service-keys", adminHandler.IssueKey)
		r.Delete("/service-keys/{key_id}", adminHandler.RevokeKey)
		r.Post("/rotate-key", adminHandler.RotateKey)
	})

	s.router = r
}

// maxBytes caps request bodies. Reads past the limit fail with
// *http.MaxBytesError, which handlers report as 413.
func maxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "actions", s.deps.Registry.Names())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.deps.Store.Close(); err != nil {
		s.logger.Warn("closing store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
