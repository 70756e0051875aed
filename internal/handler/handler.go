package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/middleware"
)

// RouteRegistrar is implemented by every handler in this package.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// MetricsExporter instruments requests and serves the scrape endpoint.
type MetricsExporter interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// RouterConfig holds the pieces assembled into the HTTP router.
type RouterConfig struct {
	Logger   *zap.Logger
	Metrics  MetricsExporter
	Handlers []RouteRegistrar
}

// NewRouter builds the router with the global middleware chain and every
// handler's routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		panic("logger is required")
	}

	r := chi.NewRouter()

	// Order matters: correlation ids must exist before anything logs.
	r.Use(middleware.Correlation)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	for _, h := range cfg.Handlers {
		h.RegisterRoutes(r)
	}

	return r
}
