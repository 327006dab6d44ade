package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitChecker
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil, which disables rate limiting.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.RateLimitChecker, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(apimiddleware.Metrics)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled && r.limiter != nil {
		router.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
	}

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/", r.handlers.Health.Check)
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		pub.Handle("/metrics", promhttp.Handler())
	})

	auth := apimiddleware.APIKeyAuth(r.config.Auth.APIKey)

	// Intake from the upstream platform
	router.With(auth).Post("/api/honeypot", r.handlers.Honeypot.Handle)

	// API v1 routes (authenticated)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(auth)

		api.Get("/sessions/{id}", r.handlers.Sessions.Get)

		api.Route("/reports", func(reports chi.Router) {
			reports.Get("/", r.handlers.Reports.List)
			reports.Get("/{id}", r.handlers.Reports.Get)
		})

		api.Route("/stream", func(stream chi.Router) {
			stream.Get("/ws", r.handlers.Streaming.HandleWebSocket)
			stream.Get("/stats", r.handlers.Streaming.GetStats)
		})
	})

	return router
}
