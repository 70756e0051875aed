package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/content"
	"github.com/ferraceros/ferrabot/internal/domain"
	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// advanceQuotation records the answer for the current stage and asks the
// next question. Caller holds sess.mu and sess.Mode is ModeQuotation.
func (e *Engine) advanceQuotation(ctx context.Context, sess *Session, text string) {
	q := sess.Quotation
	if q == nil {
		q = domain.NewQuotation(sess.DisplayName, e.now())
		sess.Quotation = q
	}

	switch q.Stage {
	case domain.StageProduct:
		product, ok := e.content.SelectProduct(text)
		if !ok {
			e.sendText(ctx, sess.UserID, e.content.InvalidProductPrompt(), "")
			return
		}
		q.Product = product
		q.Stage = domain.StageQuantity
		e.sendText(ctx, sess.UserID, e.content.Text(content.MsgQuotationQuantity), "")

	case domain.StageQuantity:
		q.Quantity = text
		q.Stage = domain.StageUnit
		e.sendText(ctx, sess.UserID, e.content.Text(content.MsgQuotationUnit), "")

	case domain.StageUnit:
		q.Unit = text
		q.Stage = domain.StageCity
		e.sendText(ctx, sess.UserID, e.content.Text(content.MsgQuotationCity), "")

	case domain.StageCity:
		q.City = text
		e.completeQuotation(ctx, sess, q)
	}
}

// completeQuotation sends the summary, logs the row and leaves the wizard.
func (e *Engine) completeQuotation(ctx context.Context, sess *Session, q *domain.Quotation) {
	e.sendText(ctx, sess.UserID, e.content.Text(content.MsgQuotationSummary,
		"product", q.Product,
		"quantity", q.Quantity,
		"unit", q.Unit,
		"city", q.City,
	), "")

	e.appendRow(ctx, sess.UserID, q.Row(sess.UserID, e.now()))
	e.recorder.RecordQuotationCompleted()
	e.auditor.QuotationCompleted(ctx, q.ID, sess.UserID, q.Product, q.City)
	e.logger.Info("quotation completed",
		zap.String("quotation_id", q.ID.String()),
		zap.String("user", sanitize.Phone(sess.UserID)),
		zap.Duration("duration", e.clock.Since(q.StartedAt)),
	)

	sess.setMode(domain.ModeNone)
	e.showMenu(ctx, sess, content.MenuPostQuotation)
}
