// Package webhook turns WhatsApp webhook deliveries into engine events:
// it decodes the payload, drops redelivered messages and hands each event to
// the per-user dispatcher.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/whatsapp"
)

// Drop reasons reported to the Recorder.
const (
	DropDuplicate   = "duplicate"
	DropUnsupported = "unsupported"
	DropMalformed   = "malformed"
	DropQueueFull   = "queue_full"
)

// Sink accepts extracted events. Enqueue must not block; it returns false
// when the event was refused.
type Sink interface {
	Enqueue(in whatsapp.Inbound) bool
}

// Recorder receives intake counters.
type Recorder interface {
	RecordInboundEvent(eventType string)
	RecordEventDropped(reason string)
}

// Auditor logs delivery-level business events.
type Auditor interface {
	WebhookReceived(ctx context.Context, events int, valid bool)
}

// Result summarizes one delivery.
type Result struct {
	Accepted int
	Dropped  int
}

// Intake processes webhook bodies.
type Intake struct {
	dedupe   *Deduper
	sink     Sink
	recorder Recorder
	auditor  Auditor
	logger   *zap.Logger
}

// IntakeConfig holds Intake dependencies. Recorder and Auditor are optional.
type IntakeConfig struct {
	Deduper  *Deduper
	Sink     Sink
	Recorder Recorder
	Auditor  Auditor
	Logger   *zap.Logger
}

// NewIntake creates an Intake.
func NewIntake(cfg IntakeConfig) *Intake {
	if cfg.Sink == nil {
		panic("webhook sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{
		dedupe:   cfg.Deduper,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		auditor:  cfg.Auditor,
		logger:   logger,
	}
}

// Process decodes body and enqueues its events. A decode error is returned
// as a webhook error; the caller still acknowledges the delivery.
func (i *Intake) Process(ctx context.Context, body []byte) (Result, error) {
	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		i.audit(ctx, 0, false)
		return Result{}, apperrors.Wrap(err, "webhook.Process", apperrors.CodeWebhookInvalid, "malformed webhook payload")
	}

	if payload.Object != "" && payload.Object != whatsapp.ObjectBusinessAccount {
		i.audit(ctx, 0, false)
		return Result{}, apperrors.WebhookError(fmt.Sprintf("unexpected webhook object %q", payload.Object))
	}

	inbound, skipped := whatsapp.Extract(&payload)
	var res Result
	i.drop(DropUnsupported, skipped.Unsupported, &res)
	i.drop(DropMalformed, skipped.Malformed, &res)

	for _, in := range inbound {
		if i.dedupe != nil && i.dedupe.Seen(in.Event.ID) {
			i.logger.Debug("duplicate message ignored", zap.String("message_id", in.Event.ID))
			i.drop(DropDuplicate, 1, &res)
			continue
		}
		if !i.sink.Enqueue(in) {
			i.logger.Warn("event queue full, dropping message",
				zap.String("message_id", in.Event.ID),
			)
			if i.dedupe != nil {
				i.dedupe.Forget(in.Event.ID)
			}
			i.drop(DropQueueFull, 1, &res)
			continue
		}
		if i.recorder != nil {
			i.recorder.RecordInboundEvent(string(in.Event.Kind))
		}
		res.Accepted++
	}

	i.audit(ctx, res.Accepted, true)
	return res, nil
}

func (i *Intake) drop(reason string, n int, res *Result) {
	res.Dropped += n
	if i.recorder == nil {
		return
	}
	for ; n > 0; n-- {
		i.recorder.RecordEventDropped(reason)
	}
}

func (i *Intake) audit(ctx context.Context, events int, valid bool) {
	if i.auditor != nil {
		i.auditor.WebhookReceived(ctx, events, valid)
	}
}
