package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Version is reported by /health; set at build time with -ldflags.
var Version = "dev"

// HealthChecker defines the interface for checking database health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BreakerChecker reports whether an upstream's circuit is open.
type BreakerChecker interface {
	Name() string
	IsOpen() bool
}

// ReadinessChecker reports whether the process still accepts traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// SessionCounter reports live conversation sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	healthChecker HealthChecker
	breakers      []BreakerChecker
	readiness     ReadinessChecker
	sessions      SessionCounter
	logger        *zap.Logger
}

// HealthHandlerConfig holds configuration for HealthHandler. Every checker
// is optional.
type HealthHandlerConfig struct {
	// HealthChecker is the Postgres pool when the postgres row backend is used.
	HealthChecker HealthChecker
	Breakers      []BreakerChecker
	Readiness     ReadinessChecker
	Sessions      SessionCounter
	Logger        *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with all required dependencies.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &HealthHandler{
		healthChecker: cfg.HealthChecker,
		breakers:      cfg.Breakers,
		readiness:     cfg.Readiness,
		sessions:      cfg.Sessions,
		logger:        cfg.Logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/live", h.HandleLiveness)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string                     `json:"status"`
	Version        string                     `json:"version,omitempty"`
	ActiveSessions *int                       `json:"active_sessions,omitempty"`
	Checks         map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealth reports every dependency. A failed database is unhealthy;
// an open breaker only degrades the bot.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Version: Version,
		Checks:  make(map[string]ComponentHealth),
	}

	hasCriticalFailure := false
	hasDegradation := false

	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			hasCriticalFailure = true
			response.Checks["database"] = ComponentHealth{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			h.logger.Error("database health check failed", zap.Error(err))
		} else {
			response.Checks["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	for _, b := range h.breakers {
		if b.IsOpen() {
			hasDegradation = true
			response.Checks[b.Name()] = ComponentHealth{
				Status:  "degraded",
				Message: "circuit breaker open - service temporarily unavailable",
			}
			h.logger.Warn("circuit breaker is open", zap.String("breaker", b.Name()))
		} else {
			response.Checks[b.Name()] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.sessions != nil {
		n := h.sessions.ActiveSessions()
		response.ActiveSessions = &n
	}

	if hasCriticalFailure {
		response.Status = "unhealthy"
	} else if hasDegradation {
		response.Status = "degraded"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	JSON(w, r, statusCode, response)
}

// HandleReadiness fails once shutdown has begun or the database is unreachable.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil && !h.readiness.IsReady() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleLiveness returns a simple liveness probe response.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
