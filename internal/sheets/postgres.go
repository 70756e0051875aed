package sheets

import (
	"context"

	"github.com/ferraceros/ferrabot/internal/repository"
)

// RowInserter stores one record.
type RowInserter interface {
	Insert(ctx context.Context, row *repository.QuotationRow) error
}

// PostgresAppender stores rows in the quotation_rows table.
type PostgresAppender struct {
	repo RowInserter
}

// NewPostgresAppender creates an appender backed by repo.
func NewPostgresAppender(repo RowInserter) *PostgresAppender {
	return &PostgresAppender{repo: repo}
}

// AppendRow maps values onto a record and inserts it.
func (p *PostgresAppender) AppendRow(ctx context.Context, values []string) error {
	row, err := repository.RowFromValues(values)
	if err != nil {
		return err
	}
	return p.repo.Insert(ctx, row)
}
