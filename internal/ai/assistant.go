// Package ai answers customer questions with an OpenAI chat model framed as a
// Ferraceros steel-products advisor.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/circuitbreaker"
	"github.com/ferraceros/ferrabot/internal/config"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

// SystemPrompt frames every completion.
const SystemPrompt = "Eres un asistente experto en la industria del acero y servicios para el sector " +
	"metalmecánico en Colombia. Ayuda al usuario a resolver dudas y brindar soporte técnico. " +
	"Trabajas para la empresa Ferraceros y recuerda que los productos que manejamos son: " +
	"Vigas y perfiles estructurales, Láminas y placas de acero, Canastillas pasajuntas, " +
	"Acero para refuerzo (varillas, mallas), Ejes y láminas de grado de ingeniería, Láminas antidesgaste."

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("empty answer from model")

// Observer receives call outcomes.
type Observer interface {
	RecordAssistantCall(success bool, duration time.Duration)
	RecordAssistantRejected()
}

type nopObserver struct{}

func (nopObserver) RecordAssistantCall(bool, time.Duration) {}
func (nopObserver) RecordAssistantRejected()                {}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithObserver reports call outcomes to o.
func WithObserver(o Observer) Option {
	return func(a *Assistant) {
		a.observer = o
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(a *Assistant) {
		a.circuitBreaker = cb
	}
}

// Assistant handles communication with the OpenAI chat completions API.
type Assistant struct {
	client         openai.Client
	model          string
	timeout        time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	observer       Observer
	logger         *zap.Logger
}

// NewAssistant creates an assistant. The SDK's own retries are disabled;
// a failed call surfaces immediately and the caller falls back to an apology.
func NewAssistant(cfg *config.OpenAIConfig, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}

	a := &Assistant{
		client:   openai.NewClient(clientOpts...),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		observer: nopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.circuitBreaker == nil {
		a.circuitBreaker = circuitbreaker.New("openai", circuitbreaker.DefaultConfig(), logger)
	}
	return a
}

// Ask sends prompt to the model and returns its answer.
func (a *Assistant) Ask(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	var answer string
	err := a.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		answer, execErr = a.complete(ctx, prompt)
		return execErr
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		a.observer.RecordAssistantRejected()
		return "", apperrors.Wrap(err, "assistant.Ask", apperrors.CodeCircuitOpen, "assistant temporarily unavailable")
	}

	a.observer.RecordAssistantCall(err == nil, time.Since(start))
	if err != nil {
		a.logger.Warn("assistant request failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", apperrors.AssistantError(err)
	}
	return answer, nil
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (a *Assistant) IsCircuitOpen() bool {
	return a.circuitBreaker.IsOpen()
}

// CircuitBreaker exposes the breaker for health and admin endpoints.
func (a *Assistant) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return a.circuitBreaker
}

func (a *Assistant) complete(ctx context.Context, prompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	a.logger.Debug("assistant answered",
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return answer, nil
}
