package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/metrics"
)

type panicRoutes struct{}

func (panicRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
}

func TestNewRouter(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	r := NewRouter(RouterConfig{
		Logger:  zap.NewNop(),
		Metrics: m,
		Handlers: []RouteRegistrar{
			NewHealthHandler(HealthHandlerConfig{Logger: zap.NewNop()}),
			panicRoutes{},
		},
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/live", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("/live status = %d", rr.Code)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("correlation id header missing")
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("/boom status = %d, want 500", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if !strings.Contains(rr.Body.String(), "ferrabot_http_requests_total") {
		t.Error("/metrics should expose request counters")
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code apperrors.Code
	}{
		{"app error", apperrors.ErrVerifyFailed, http.StatusForbidden, apperrors.CodeVerifyFailed},
		{"wrapped app error", apperrors.Wrap(errors.New("x"), "op", apperrors.CodeNotFound, "missing"), http.StatusNotFound, apperrors.CodeNotFound},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody), zap.NewNop(), tt.err)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if !strings.Contains(rr.Body.String(), string(tt.code)) {
				t.Errorf("body %q missing code %s", rr.Body.String(), tt.code)
			}
			if strings.Contains(rr.Body.String(), "disk on fire") {
				t.Error("internal error text leaked")
			}
		})
	}
}
