package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/circuitbreaker"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/middleware"
)

// Breaker is a circuit breaker exposed for inspection and manual reset.
type Breaker interface {
	Name() string
	Stats() circuitbreaker.Stats
	Reset()
}

// AdminHandler serves operator endpoints under /admin.
type AdminHandler struct {
	token       string
	breakers    map[string]Breaker
	order       []string
	logLevel    http.Handler
	rateLimiter *middleware.RateLimiter
	logger      *zap.Logger
}

// AdminHandlerConfig holds configuration for AdminHandler.
type AdminHandlerConfig struct {
	// Token is required as "Authorization: Bearer <token>".
	Token    string
	Breakers []Breaker
	// LogLevel serves GET/PUT /admin/log-level.
	LogLevel    http.Handler
	RateLimiter *middleware.RateLimiter
	Logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler with all required dependencies.
func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	if cfg.Token == "" {
		panic("admin token is required")
	}
	h := &AdminHandler{
		token:       cfg.Token,
		breakers:    make(map[string]Breaker, len(cfg.Breakers)),
		logLevel:    cfg.LogLevel,
		rateLimiter: cfg.RateLimiter,
		logger:      cfg.Logger,
	}
	for _, b := range cfg.Breakers {
		h.breakers[b.Name()] = b
		h.order = append(h.order, b.Name())
	}
	return h
}

// RegisterRoutes registers the admin routes on the router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		if h.rateLimiter != nil {
			r.Use(middleware.RateLimit(h.rateLimiter))
		}
		r.Use(middleware.BodySizeLimiter(middleware.DefaultMaxBodySize))
		r.Use(h.requireToken)

		if h.logLevel != nil {
			r.Handle("/log-level", h.logLevel)
		}
		r.Get("/breakers", h.HandleListBreakers)
		r.Post("/breakers/{name}/reset", h.HandleResetBreaker)
	})
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			middleware.LoggerWithCorrelation(r.Context(), h.logger).Warn("admin request rejected",
				zap.String("path", r.URL.Path),
			)
			WriteError(w, r, h.logger, apperrors.New(apperrors.CodeUnauthorized, "missing or invalid admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleListBreakers returns the stats of every registered breaker.
func (h *AdminHandler) HandleListBreakers(w http.ResponseWriter, r *http.Request) {
	stats := make([]circuitbreaker.Stats, 0, len(h.order))
	for _, name := range h.order {
		stats = append(stats, h.breakers[name].Stats())
	}
	JSON(w, r, http.StatusOK, map[string]interface{}{"breakers": stats})
}

// HandleResetBreaker forces the named breaker closed.
func (h *AdminHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, ok := h.breakers[name]
	if !ok {
		WriteError(w, r, h.logger, apperrors.New(apperrors.CodeNotFound, "unknown circuit breaker "+name))
		return
	}

	b.Reset()
	middleware.LoggerWithCorrelation(r.Context(), h.logger).Info("circuit breaker reset by operator",
		zap.String("breaker", name),
	)
	JSON(w, r, http.StatusOK, b.Stats())
}
