// Package sheets appends quotation rows to the configured sink: a Google
// spreadsheet, a PostgreSQL table or a local bbolt journal.
package sheets

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/domain"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

// Observer receives append outcomes.
type Observer interface {
	RecordRowAppend(backend string, err error)
}

// Instrumented wraps a backend with metrics, logging and error typing.
type Instrumented struct {
	backend  string
	next     domain.RowAppender
	observer Observer
	logger   *zap.Logger
}

var _ domain.RowAppender = (*Instrumented)(nil)

// Instrument wraps next. observer may be nil.
func Instrument(backend string, next domain.RowAppender, observer Observer, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{backend: backend, next: next, observer: observer, logger: logger}
}

// AppendRow appends values and reports the outcome.
func (i *Instrumented) AppendRow(ctx context.Context, values []string) error {
	start := time.Now()
	err := i.next.AppendRow(ctx, values)
	if i.observer != nil {
		i.observer.RecordRowAppend(i.backend, err)
	}
	if err != nil {
		if apperrors.GetCode(err) != apperrors.CodeSheet {
			err = apperrors.SheetError(i.backend, err)
		}
		return err
	}

	i.logger.Debug("row appended",
		zap.String("backend", i.backend),
		zap.Int("columns", len(values)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Backend returns the backend name.
func (i *Instrumented) Backend() string {
	return i.backend
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
