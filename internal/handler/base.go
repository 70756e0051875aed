// Package handler provides the bot's HTTP handlers: the WhatsApp webhook,
// health probes and admin endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/middleware"
)

// JSON writes data as a JSON response with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if r != nil {
		if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes err as an error response. Application errors keep their
// code and status; anything else becomes a 500 without leaking its text.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.InternalError("internal server error", err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		middleware.LoggerWithCorrelation(r.Context(), logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	JSON(w, r, status, appErr.ToResponse())
}
