package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/domain"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

// Execer is implemented by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// QuotationRow is one spreadsheet row stored as a table record.
type QuotationRow struct {
	ID          uuid.UUID
	UserID      string
	DisplayName string
	Product     string
	Quantity    string
	Unit        string
	City        string
	// RecordedAt keeps the row's formatted timestamp column verbatim.
	RecordedAt string
}

// RowFromValues maps the ordered sheet columns onto a record with a new id.
func RowFromValues(values []string) (*QuotationRow, error) {
	if len(values) != domain.RowWidth {
		return nil, apperrors.ValidationFailed(fmt.Sprintf("row has %d columns, want %d", len(values), domain.RowWidth))
	}
	return &QuotationRow{
		ID:          uuid.New(),
		UserID:      values[0],
		DisplayName: values[1],
		Product:     values[2],
		Quantity:    values[3],
		Unit:        values[4],
		City:        values[5],
		RecordedAt:  values[6],
	}, nil
}

// QuotationRowRepository writes quotation rows.
type QuotationRowRepository struct {
	db     Execer
	guard  *Guard
	logger *zap.Logger
}

// NewQuotationRowRepository creates a new repository instance.
func NewQuotationRowRepository(db Execer, logger *zap.Logger) *QuotationRowRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotationRowRepository{db: db, guard: NewGuard(), logger: logger}
}

// Insert stores a row.
func (r *QuotationRowRepository) Insert(ctx context.Context, row *QuotationRow) error {
	if err := r.guard.ValidateRow(row); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, QuotationRowColumns.InsertQuery(),
		row.ID, row.UserID, row.DisplayName, row.Product,
		row.Quantity, row.Unit, row.City, row.RecordedAt,
	)
	if err != nil {
		return apperrors.DatabaseError("QuotationRowRepository.Insert", err)
	}

	r.logger.Debug("quotation row stored", zap.String("row_id", row.ID.String()))
	return nil
}
