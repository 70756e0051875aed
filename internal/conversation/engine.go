// Package conversation implements the per-user chatbot state machine: first
// contact, the menu actions, the quotation wizard, the assistant modes,
// feedback capture and the inactivity timeout.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/clock"
	"github.com/ferraceros/ferrabot/internal/content"
	"github.com/ferraceros/ferrabot/internal/domain"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/metrics"
	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// Default settings applied by NewEngine for zero values.
const (
	DefaultInactivityTimeout = 5 * time.Minute
	DefaultExitCommand       = "salir"
)

// Recorder receives engine metrics.
type Recorder interface {
	SetActiveSessions(count int)
	RecordSessionEnd(reason string)
	RecordQuotationCompleted()
	RecordFeedback(sentiment string)
	RecordHandlerPanic()
}

// Auditor receives business events.
type Auditor interface {
	ConversationStarted(ctx context.Context, userID, displayName string)
	QuotationCompleted(ctx context.Context, quotationID uuid.UUID, userID, product, city string)
	SessionEnded(ctx context.Context, userID, reason string, lifetime time.Duration)
	FeedbackReceived(ctx context.Context, userID, sentiment, text string)
}

// EngineConfig wires the engine's collaborators and settings.
type EngineConfig struct {
	Gateway   domain.MessageGateway
	Appender  domain.RowAppender
	Assistant domain.Assistant
	Content   *content.Catalog
	Clock     clock.Clock
	Recorder  Recorder
	Auditor   Auditor
	Logger    *zap.Logger

	InactivityTimeout time.Duration
	FeedbackEnabled   bool
	ExitCommand       string
	// BotID is the bot's own WhatsApp id; events from it are dropped.
	BotID string
	// Location is the timezone of row timestamps.
	Location *time.Location
}

// Engine interprets inbound events. It is safe for concurrent use; events
// of one user are serialized by the session lock.
type Engine struct {
	gateway   domain.MessageGateway
	appender  domain.RowAppender
	assistant domain.Assistant
	content   *content.Catalog
	clock     clock.Clock
	recorder  Recorder
	auditor   Auditor
	logger    *zap.Logger
	store     *Store

	timeout         time.Duration
	feedbackEnabled bool
	exitCommand     string
	botID           string
	location        *time.Location

	// timerCtx is used for sends made by inactivity timers.
	timerCtx context.Context
}

// NewEngine creates an engine. Gateway, Appender, Assistant and Content are
// required.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Gateway == nil || cfg.Appender == nil || cfg.Assistant == nil || cfg.Content == nil {
		panic("conversation: gateway, appender, assistant and content are required")
	}

	e := &Engine{
		gateway:         cfg.Gateway,
		appender:        cfg.Appender,
		assistant:       cfg.Assistant,
		content:         cfg.Content,
		clock:           cfg.Clock,
		recorder:        cfg.Recorder,
		auditor:         cfg.Auditor,
		logger:          cfg.Logger,
		store:           NewStore(),
		timeout:         cfg.InactivityTimeout,
		feedbackEnabled: cfg.FeedbackEnabled,
		exitCommand:     domain.Normalize(cfg.ExitCommand),
		botID:           strings.TrimSpace(cfg.BotID),
		location:        cfg.Location,
		timerCtx:        context.Background(),
	}
	if e.clock == nil {
		e.clock = clock.New()
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.auditor == nil {
		e.auditor = nopAuditor{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("conversation")
	if e.timeout <= 0 {
		e.timeout = DefaultInactivityTimeout
	}
	if e.exitCommand == "" {
		e.exitCommand = DefaultExitCommand
	}
	if e.location == nil {
		e.location = time.UTC
	}
	return e
}

// Handle processes one inbound event. Panics are recovered and logged; the
// user gets no reply in that case.
func (e *Engine) Handle(ctx context.Context, ev domain.InboundEvent, sender domain.Sender) {
	defer e.recoverPanic(ev.From)

	if e.botID != "" && ev.From == e.botID {
		e.logger.Debug("dropping event from bot id", zap.String("message_id", ev.ID))
		return
	}

	switch ev.Kind {
	case domain.EventText:
		e.handleText(ctx, ev, sender)
	case domain.EventButton:
		e.handleButton(ctx, ev, sender)
	default:
		e.logger.Warn("unsupported event kind", zap.String("kind", string(ev.Kind)))
		return
	}

	e.markRead(ctx, ev.ID)
}

// ActiveSessions returns the number of live sessions.
func (e *Engine) ActiveSessions() int {
	return e.store.Len()
}

// Close stops every inactivity timer and forgets all sessions without
// messaging users.
func (e *Engine) Close() {
	sessions := e.store.Drain()
	for _, sess := range sessions {
		sess.mu.Lock()
		sess.evicted = true
		if sess.timer != nil {
			sess.timer.Stop()
		}
		sess.mu.Unlock()
	}
	e.recorder.SetActiveSessions(0)
	e.logger.Info("conversation engine closed", zap.Int("sessions_dropped", len(sessions)))
}

func (e *Engine) handleText(ctx context.Context, ev domain.InboundEvent, sender domain.Sender) {
	text := strings.TrimSpace(ev.Text)
	norm := domain.Normalize(text)

	if norm == e.exitCommand {
		e.handleExit(ctx, ev.From)
		return
	}

	sess := e.acquire(ev.From)
	defer sess.mu.Unlock()
	e.touch(sess)

	if !sess.Greeted {
		e.greet(ctx, sess, ev, sender)
		return
	}

	sess.addTurn(domain.SpeakerUser, text)

	switch sess.Mode {
	case domain.ModeContinuousSupport:
		e.answer(ctx, sess, ev.ID, text)
	case domain.ModeSingleQuestion:
		e.answer(ctx, sess, ev.ID, text)
		sess.setMode(domain.ModeNone)
		e.showMenu(ctx, sess, content.MenuQuestionFollowup)
	case domain.ModeQuotation:
		e.advanceQuotation(ctx, sess, text)
	case domain.ModeFeedback:
		e.captureFeedback(ctx, sess, text)
	default:
		e.fallback(ctx, sess, norm)
	}
}

// handleExit ends the session, or just says goodbye when none exists.
func (e *Engine) handleExit(ctx context.Context, userID string) {
	if sess, ok := e.store.Get(userID); ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if !sess.evicted {
			e.endSession(ctx, sess, metrics.EndReasonExit)
			return
		}
	}
	e.sendText(ctx, userID, e.content.Text(content.MsgFarewell), "")
}

func (e *Engine) greet(ctx context.Context, sess *Session, ev domain.InboundEvent, sender domain.Sender) {
	sess.Greeted = true
	sess.DisplayName = sender.DisplayName()

	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgWelcome, "name", sess.DisplayName), ev.ID)
	e.showMenu(ctx, sess, content.MenuMain)
	e.appendRow(ctx, sess.UserID, domain.ContactRow(sess.UserID, sess.DisplayName, e.now()))
	e.auditor.ConversationStarted(ctx, sess.UserID, sess.DisplayName)
}

// answer forwards the question and prior turns to the assistant. On failure
// the user gets the apology and the history keeps only the question.
func (e *Engine) answer(ctx context.Context, sess *Session, replyTo, question string) {
	prior := sess.History[:len(sess.History)-1]
	reply, err := e.assistant.Ask(ctx, BuildPrompt(prior, question))
	if err != nil {
		e.logger.Warn("assistant query failed",
			zap.String("user", sanitize.Phone(sess.UserID)),
			zap.String("mode", string(sess.Mode)),
			zap.String("error", sanitize.Error(err)),
		)
		e.sendText(ctx, sess.UserID, e.content.Text(content.MsgAssistantApology), "")
		return
	}

	sess.addTurn(domain.SpeakerAssistant, reply)
	e.sendText(ctx, sess.UserID, reply, replyTo)
}

func (e *Engine) captureFeedback(ctx context.Context, sess *Session, text string) {
	sentiment := e.content.ClassifyFeedback(text)
	e.recorder.RecordFeedback(sentiment)
	e.auditor.FeedbackReceived(ctx, sess.UserID, sentiment, text)
	e.endSession(ctx, sess, metrics.EndReasonFeedback)
}

// fallback handles text outside any mode.
func (e *Engine) fallback(ctx context.Context, sess *Session, norm string) {
	if media, ok := e.content.MediaFor(norm); ok {
		e.sendMedia(ctx, sess.UserID, media)
		return
	}
	if e.content.IsGreeting(norm) {
		e.showMenu(ctx, sess, content.MenuMain)
		return
	}
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgClarification), "")
	e.showMenu(ctx, sess, content.MenuMain)
}

// acquire returns the locked live session for userID, creating it if needed.
func (e *Engine) acquire(userID string) *Session {
	for {
		sess, created := e.store.GetOrCreate(userID, e.clock.Now())
		sess.mu.Lock()
		if !sess.evicted {
			if created {
				e.recorder.SetActiveSessions(e.store.Len())
			}
			return sess
		}
		// Evicted between lookup and lock; the store no longer holds it.
		sess.mu.Unlock()
	}
}

// touch reschedules the inactivity timer. Caller holds sess.mu.
func (e *Engine) touch(sess *Session) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.generation++
	gen := sess.generation
	sess.timer = e.clock.AfterFunc(e.timeout, func() {
		e.expire(sess, gen)
	})
}

// expire ends an idle session. A timer superseded by newer activity or
// outliving its session does nothing.
func (e *Engine) expire(sess *Session, gen uint64) {
	defer e.recoverPanic(sess.UserID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.evicted || sess.generation != gen {
		return
	}
	e.logger.Info("session timed out",
		zap.String("user", sanitize.Phone(sess.UserID)),
		zap.String("mode", string(sess.Mode)),
		zap.Duration("idle", e.timeout),
	)
	e.endSession(e.timerCtx, sess, metrics.EndReasonTimeout)
}

// endSession says goodbye and evicts. Caller holds sess.mu.
func (e *Engine) endSession(ctx context.Context, sess *Session, reason string) {
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgFarewell), "")
	e.evict(ctx, sess, reason)
}

// evict removes the session and cancels its timer. Caller holds sess.mu.
func (e *Engine) evict(ctx context.Context, sess *Session, reason string) {
	sess.evicted = true
	sess.Quotation = nil
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	e.store.Delete(sess)

	lifetime := e.clock.Since(sess.Started)
	e.recorder.RecordSessionEnd(reason)
	e.recorder.SetActiveSessions(e.store.Len())
	e.auditor.SessionEnded(ctx, sess.UserID, reason, lifetime)
}

func (e *Engine) showMenu(ctx context.Context, sess *Session, name string) {
	menu := e.content.Menu(name)
	sess.LastMenu = name
	if err := e.gateway.SendButtons(ctx, sess.UserID, menu.Body, menu.Buttons); err != nil {
		e.logSendError("buttons", sess.UserID, err)
	}
}

func (e *Engine) sendText(ctx context.Context, to, body, replyTo string) {
	if err := e.gateway.SendText(ctx, to, body, replyTo); err != nil {
		e.logSendError("text", to, err)
	}
}

func (e *Engine) sendMedia(ctx context.Context, to string, media content.Media) {
	if err := e.gateway.SendMedia(ctx, to, media.Kind, media.URL, media.Caption); err != nil {
		e.logSendError(string(media.Kind), to, err)
	}
}

func (e *Engine) markRead(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := e.gateway.MarkRead(ctx, messageID); err != nil {
		e.logger.Debug("mark read failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

func (e *Engine) logSendError(kind, to string, err error) {
	e.logger.Warn("outbound message failed",
		zap.String("kind", kind),
		zap.String("user", sanitize.Phone(to)),
		zap.String("error", sanitize.Error(err)),
	)
}

// appendRow writes a sheet row. Failures are logged and swallowed; only
// non-transient ones are logged as errors.
func (e *Engine) appendRow(ctx context.Context, userID string, row []string) {
	err := e.appender.AppendRow(ctx, row)
	if err == nil {
		return
	}
	log := e.logger.Error
	if apperrors.IsTransient(err) {
		log = e.logger.Warn
	}
	log("appending sheet row failed",
		zap.String("user", sanitize.Phone(userID)),
		zap.Bool("transient", apperrors.IsTransient(err)),
		zap.Error(err),
	)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.location)
}

func (e *Engine) recoverPanic(userID string) {
	if r := recover(); r != nil {
		e.recorder.RecordHandlerPanic()
		e.logger.Error("panic while handling event",
			zap.Any("panic", r),
			zap.String("user", sanitize.Phone(userID)),
			zap.Stack("stack"),
		)
	}
}

type nopRecorder struct{}

func (nopRecorder) SetActiveSessions(int)     {}
func (nopRecorder) RecordSessionEnd(string)   {}
func (nopRecorder) RecordQuotationCompleted() {}
func (nopRecorder) RecordFeedback(string)     {}
func (nopRecorder) RecordHandlerPanic()       {}

type nopAuditor struct{}

func (nopAuditor) ConversationStarted(context.Context, string, string) {}

func (nopAuditor) QuotationCompleted(context.Context, uuid.UUID, string, string, string) {}

func (nopAuditor) SessionEnded(context.Context, string, string, time.Duration) {}

func (nopAuditor) FeedbackReceived(context.Context, string, string, string) {}
