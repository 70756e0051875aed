package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// BusinessEventLogger writes searchable conversation milestones alongside
// the Prometheus counters. Phone numbers are always masked.
type BusinessEventLogger struct {
	logger *zap.Logger
}

// NewBusinessEventLogger creates a new business event logger.
func NewBusinessEventLogger(logger *zap.Logger) *BusinessEventLogger {
	return &BusinessEventLogger{
		logger: logger.Named("business_events"),
	}
}

// ConversationStarted logs a first contact.
func (l *BusinessEventLogger) ConversationStarted(ctx context.Context, userID, displayName string) {
	l.logger.Info("conversation_started",
		zap.String("event_type", "conversation.started"),
		zap.String("event_id", uuid.NewString()),
		zap.String("user", sanitize.Phone(userID)),
		zap.Bool("has_profile_name", displayName != "" && displayName != userID),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// QuotationCompleted logs a finished wizard.
func (l *BusinessEventLogger) QuotationCompleted(ctx context.Context, quotationID uuid.UUID, userID, product, city string) {
	l.logger.Info("quotation_completed",
		zap.String("event_type", "quotation.completed"),
		zap.String("quotation_id", quotationID.String()),
		zap.String("user", sanitize.Phone(userID)),
		zap.String("product", product),
		zap.String("city", city),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// SessionEnded logs a session teardown.
func (l *BusinessEventLogger) SessionEnded(ctx context.Context, userID, reason string, lifetime time.Duration) {
	l.logger.Info("session_ended",
		zap.String("event_type", "session.ended"),
		zap.String("user", sanitize.Phone(userID)),
		zap.String("reason", reason),
		zap.Duration("lifetime", lifetime),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// FeedbackReceived logs a satisfaction reply.
func (l *BusinessEventLogger) FeedbackReceived(ctx context.Context, userID, sentiment, text string) {
	l.logger.Info("feedback_received",
		zap.String("event_type", "feedback.received"),
		zap.String("user", sanitize.Phone(userID)),
		zap.String("sentiment", sentiment),
		zap.String("text", sanitize.Text(text)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// WebhookReceived logs a webhook delivery.
func (l *BusinessEventLogger) WebhookReceived(ctx context.Context, events int, valid bool) {
	level := l.logger.Debug
	if !valid {
		level = l.logger.Warn
	}
	level("webhook_received",
		zap.String("event_type", "webhook.received"),
		zap.Int("events", events),
		zap.Bool("valid", valid),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
