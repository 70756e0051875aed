package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestBusinessEventLogger_ConversationStarted(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.ConversationStarted(context.Background(), "573001234567", "Ana")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "conversation_started" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.LoggerName != "business_events" {
		t.Errorf("logger name = %q, want business_events", entry.LoggerName)
	}

	fields := entry.ContextMap()
	if fields["event_type"] != "conversation.started" {
		t.Errorf("event_type = %v", fields["event_type"])
	}
	if fields["user"] != "573*******67" {
		t.Errorf("user = %v, want masked 573*******67", fields["user"])
	}
	if fields["has_profile_name"] != true {
		t.Errorf("has_profile_name = %v", fields["has_profile_name"])
	}
	if _, err := uuid.Parse(fields["event_id"].(string)); err != nil {
		t.Errorf("event_id is not a uuid: %v", err)
	}
}

func TestBusinessEventLogger_QuotationCompleted(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)
	id := uuid.New()

	bel.QuotationCompleted(context.Background(), id, "573001234567", "Láminas y placas de acero", "Bogotá")

	fields := logs.All()[0].ContextMap()
	if fields["quotation_id"] != id.String() {
		t.Errorf("quotation_id = %v", fields["quotation_id"])
	}
	if fields["product"] != "Láminas y placas de acero" || fields["city"] != "Bogotá" {
		t.Errorf("fields = %v", fields)
	}
}

func TestBusinessEventLogger_SessionEndedAndFeedback(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.SessionEnded(context.Background(), "573001234567", EndReasonTimeout, 3*time.Minute)
	bel.FeedbackReceived(context.Background(), "573001234567", "negative", "muy lento")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["reason"] != EndReasonTimeout {
		t.Errorf("reason = %v", entries[0].ContextMap()["reason"])
	}
	if entries[1].ContextMap()["sentiment"] != "negative" {
		t.Errorf("sentiment = %v", entries[1].ContextMap()["sentiment"])
	}
}

func TestBusinessEventLogger_WebhookReceivedLevel(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.WebhookReceived(context.Background(), 2, true)
	bel.WebhookReceived(context.Background(), 0, false)

	entries := logs.All()
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("valid webhook level = %v, want debug", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("invalid webhook level = %v, want warn", entries[1].Level)
	}
}

func TestBusinessEventLogger_FeedbackMasksContactData(t *testing.T) {
	logger, logs := newTestLogger()
	bel := NewBusinessEventLogger(logger)

	bel.FeedbackReceived(context.Background(), "573001234567", "positive", "escribanme a ana@example.com")

	text, _ := logs.All()[0].ContextMap()["text"].(string)
	if strings.Contains(text, "ana@example.com") {
		t.Errorf("feedback text leaked email: %q", text)
	}
}
