package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/content"
	"github.com/ferraceros/ferrabot/internal/domain"
	"github.com/ferraceros/ferrabot/internal/metrics"
	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// Action ids carried in button reply ids.
const (
	ActionCatalog       = "catalog"
	ActionQuote         = "quote"
	ActionLocation      = "location"
	ActionAskQuestion   = "ask_question"
	ActionSupport       = "support"
	ActionMainMenu      = "main_menu"
	ActionEndSession    = "end_session"
	ActionQuoteAgainYes = "quote_again_yes"
	ActionQuoteAgainNo  = "quote_again_no"
)

type actionFunc func(e *Engine, ctx context.Context, sess *Session)

var actionTable = map[string]actionFunc{
	ActionCatalog:       (*Engine).showCatalog,
	ActionQuote:         (*Engine).startQuotation,
	ActionQuoteAgainYes: (*Engine).startQuotation,
	ActionLocation:      (*Engine).showLocation,
	ActionAskQuestion:   (*Engine).startSingleQuestion,
	ActionSupport:       (*Engine).startSupport,
	ActionMainMenu:      (*Engine).showMainMenu,
	ActionEndSession:    (*Engine).requestEnd,
	ActionQuoteAgainNo:  (*Engine).declineQuotation,
}

// IsAction reports whether id is a known action.
func IsAction(id string) bool {
	_, ok := actionTable[id]
	return ok
}

func (e *Engine) handleButton(ctx context.Context, ev domain.InboundEvent, sender domain.Sender) {
	sess := e.acquire(ev.From)
	defer sess.mu.Unlock()
	e.touch(sess)

	// A button before any text skips the welcome but still counts as contact.
	if !sess.Greeted {
		sess.Greeted = true
		sess.DisplayName = sender.DisplayName()
	}

	id, ok := e.resolveAction(ev.ButtonID, ev.Title)
	if !ok {
		e.logger.Info("unknown button",
			zap.String("user", sanitize.Phone(sess.UserID)),
			zap.String("button_id", ev.ButtonID),
			zap.String("title", ev.Title),
		)
		e.sendText(ctx, sess.UserID, e.content.Text(content.MsgUnknownButton), "")
		menu := sess.LastMenu
		if menu == "" {
			menu = content.MenuMain
		}
		e.showMenu(ctx, sess, menu)
		return
	}

	e.logger.Debug("button action",
		zap.String("user", sanitize.Phone(sess.UserID)),
		zap.String("action", id),
	)
	actionTable[id](e, ctx, sess)
}

// resolveAction looks up the reply id first and falls back to the label.
func (e *Engine) resolveAction(buttonID, title string) (string, bool) {
	if IsAction(buttonID) {
		return buttonID, true
	}
	if id, ok := e.content.ActionForLabel(title); ok && IsAction(id) {
		return id, true
	}
	return "", false
}

func (e *Engine) showCatalog(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeNone)
	e.sendMedia(ctx, sess.UserID, e.content.CatalogDoc)
	e.showMenu(ctx, sess, content.MenuCatalogFollowup)
}

func (e *Engine) startQuotation(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeQuotation)
	sess.Quotation = domain.NewQuotation(sess.DisplayName, e.now())
	e.sendText(ctx, sess.UserID, e.content.ProductPrompt(), "")
}

func (e *Engine) showLocation(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeNone)
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgLocation), "")
	e.showMenu(ctx, sess, content.MenuLocationFollowup)
}

func (e *Engine) startSingleQuestion(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeSingleQuestion)
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgAskQuestion), "")
}

func (e *Engine) startSupport(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeContinuousSupport)
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgSupportStart), "")
}

func (e *Engine) showMainMenu(ctx context.Context, sess *Session) {
	sess.setMode(domain.ModeNone)
	e.showMenu(ctx, sess, content.MenuMain)
}

// requestEnd asks for feedback before closing when feedback is enabled.
func (e *Engine) requestEnd(ctx context.Context, sess *Session) {
	if !e.feedbackEnabled {
		e.endSession(ctx, sess, metrics.EndReasonExit)
		return
	}
	sess.setMode(domain.ModeFeedback)
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgFeedbackPrompt), "")
}

func (e *Engine) declineQuotation(ctx context.Context, sess *Session) {
	e.endSession(ctx, sess, metrics.EndReasonDeclined)
}
