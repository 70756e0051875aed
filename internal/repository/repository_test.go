package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func sampleValues() []string {
	return []string{"573001112233", "Ana", "Láminas y placas de acero", "500", "kilos", "Bogotá", "2024-05-02 14:30:05"}
}

func TestRowFromValues(t *testing.T) {
	row, err := RowFromValues(sampleValues())
	if err != nil {
		t.Fatal(err)
	}
	if row.ID == uuid.Nil {
		t.Error("expected a generated id")
	}
	if row.UserID != "573001112233" || row.City != "Bogotá" || row.RecordedAt != "2024-05-02 14:30:05" {
		t.Errorf("row = %+v", row)
	}

	if _, err := RowFromValues([]string{"only", "two"}); apperrors.GetCode(err) != apperrors.CodeValidation {
		t.Errorf("short row error = %v", err)
	}
}

func TestQuotationRowRepository_Insert(t *testing.T) {
	db := &fakeExecer{}
	repo := NewQuotationRowRepository(db, nil)

	row, _ := RowFromValues(sampleValues())
	if err := repo.Insert(context.Background(), row); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if !strings.HasPrefix(db.sql, "INSERT INTO quotation_rows (id, user_id,") {
		t.Errorf("sql = %q", db.sql)
	}
	if len(db.args) != QuotationRowColumns.Count() {
		t.Fatalf("got %d args, want %d", len(db.args), QuotationRowColumns.Count())
	}
	if db.args[0] != row.ID || db.args[3] != "Láminas y placas de acero" {
		t.Errorf("args = %v", db.args)
	}
}

func TestQuotationRowRepository_InsertContactRow(t *testing.T) {
	db := &fakeExecer{}
	repo := NewQuotationRowRepository(db, nil)

	row, _ := RowFromValues([]string{"573001112233", "Ana", "", "", "", "", "2024-05-02 09:00:00"})
	if err := repo.Insert(context.Background(), row); err != nil {
		t.Fatalf("contact rows with empty quotation columns must be accepted: %v", err)
	}
}

func TestQuotationRowRepository_InsertValidation(t *testing.T) {
	db := &fakeExecer{}
	repo := NewQuotationRowRepository(db, nil)

	row, _ := RowFromValues(sampleValues())
	row.UserID = "  "
	if err := repo.Insert(context.Background(), row); apperrors.GetCode(err) != apperrors.CodeMissingField {
		t.Errorf("error = %v, want missing field", err)
	}

	row, _ = RowFromValues(sampleValues())
	row.City = strings.Repeat("x", MaxFieldLength+1)
	if err := repo.Insert(context.Background(), row); apperrors.GetCode(err) != apperrors.CodeValidation {
		t.Errorf("error = %v, want validation", err)
	}
	if db.sql != "" {
		t.Error("invalid rows must not reach the database")
	}
}

func TestQuotationRowRepository_InsertDatabaseError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	repo := NewQuotationRowRepository(db, nil)

	row, _ := RowFromValues(sampleValues())
	err := repo.Insert(context.Background(), row)
	if apperrors.GetCode(err) != apperrors.CodeDatabase {
		t.Errorf("error = %v, want database error", err)
	}
}

func TestWithWriteTimeout(t *testing.T) {
	ctx, cancel := WithWriteTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline")
	}

	short, cancelShort := context.WithTimeout(context.Background(), time.Second)
	defer cancelShort()
	got, cancelGot := WithWriteTimeout(short)
	defer cancelGot()
	if got != short {
		t.Error("a sooner caller deadline should be kept")
	}
}
