package handler

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/middleware"
	"github.com/ferraceros/ferrabot/internal/webhook"
)

// Webhook delivery outcomes reported to the WebhookRecorder.
const (
	WebhookAccepted     = "accepted"
	WebhookInvalid      = "invalid"
	WebhookVerified     = "verified"
	WebhookVerifyFailed = "verify_failed"
)

// WebhookPath is where Meta delivers Cloud API notifications.
const WebhookPath = "/webhook"

// Processor turns a raw delivery into queued events.
type Processor interface {
	Process(ctx context.Context, body []byte) (webhook.Result, error)
}

// WebhookRecorder counts deliveries by outcome.
type WebhookRecorder interface {
	RecordWebhook(status string)
}

// WebhookHandler handles the WhatsApp Cloud API webhook.
type WebhookHandler struct {
	intake      Processor
	verifyToken string
	appSecret   string
	recorder    WebhookRecorder
	logger      *zap.Logger
}

// WebhookHandlerConfig holds configuration for WebhookHandler.
type WebhookHandlerConfig struct {
	Intake      Processor
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
	Recorder  WebhookRecorder
	Logger    *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler with all required dependencies.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	if cfg.Intake == nil {
		panic("webhook intake is required")
	}
	return &WebhookHandler{
		intake:      cfg.Intake,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers the verification handshake and the delivery endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Route(WebhookPath, func(r chi.Router) {
		r.Use(middleware.BodySizeLimiterWebhook())
		r.Use(middleware.WebhookSignature(h.appSecret, h.recorder, h.logger))

		r.Get("/", h.HandleVerify)
		r.Post("/", h.HandleEvent)
	})
}

// HandleVerify answers Meta's subscription handshake by echoing hub.challenge
// when hub.verify_token matches.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
		h.record(WebhookVerifyFailed)
		WriteError(w, r, h.logger, apperrors.ErrVerifyFailed)
		return
	}

	h.logger.Info("webhook verified")
	h.record(WebhookVerified)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// HandleEvent acknowledges a delivery with 200 once its events are queued.
// Malformed payloads are acknowledged too; Meta would only redeliver them.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerWithCorrelation(r.Context(), h.logger)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("failed to read webhook body", zap.Error(err))
		h.record(WebhookInvalid)
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	res, err := h.intake.Process(r.Context(), body)
	if err != nil {
		logger.Warn("webhook payload rejected", zap.Error(err))
		h.record(WebhookInvalid)
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Debug("webhook processed",
		zap.Int("accepted", res.Accepted),
		zap.Int("dropped", res.Dropped),
	)
	h.record(WebhookAccepted)
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) record(status string) {
	if h.recorder != nil {
		h.recorder.RecordWebhook(status)
	}
}
