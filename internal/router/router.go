package router

import (
	"net/http"

	"storefront-api/internal/handler"
	"storefront-api/internal/metrics"
	"storefront-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler           *handler.Handler
	StorefrontHandler *handler.StorefrontHandler
	AdminHandler      *handler.AdminHandler

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	Logger         *zap.Logger

	AdminAPIKeys   []string
	AllowedOrigins []string
	CORSMaxAge     int
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "Idempotency-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         cfg.CORSMaxAge,
	}))

	// Probes
	if cfg.Handler != nil {
		r.Get("/health", cfg.Handler.Health)
		r.Get("/ready", cfg.Handler.Ready)
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Storefront routes; buyer identity is asserted upstream
	if h := cfg.StorefrontHandler; h != nil {
		r.Post("/order", h.PlaceOrder)
		r.Get("/balance/{userId}", h.GetBalance)
		r.Get("/orders/{userId}", h.ListOrders)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{productId}", h.GetProduct)
		})
	}

	// Operator routes
	if h := cfg.AdminHandler; h != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(cfg.AdminAPIKeys))
			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", h.GetStats)
				r.Post("/reconcile", h.Reconcile)
				r.Post("/users/{userId}/credit", h.Credit)
			})
		})
	}

	return r
}
