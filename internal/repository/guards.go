package repository

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

// MaxFieldLength caps free-text row fields.
const MaxFieldLength = 500

// Guard validates inputs before database operations.
type Guard struct{}

// NewGuard creates a new validation guard.
func NewGuard() *Guard {
	return &Guard{}
}

// RequireUUID validates that a UUID is not nil.
func (g *Guard) RequireUUID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return apperrors.MissingField(field)
	}
	return nil
}

// RequireString validates that a string is not blank.
func (g *Guard) RequireString(s string, field string) error {
	if strings.TrimSpace(s) == "" {
		return apperrors.MissingField(field)
	}
	return nil
}

// RequireMaxLength validates that a string does not exceed maxLen characters.
func (g *Guard) RequireMaxLength(s string, maxLen int, field string) error {
	if utf8.RuneCountInString(s) > maxLen {
		return apperrors.ValidationFailed(fmt.Sprintf("%s must not exceed %d characters", field, maxLen))
	}
	return nil
}

// ValidateRow checks a row before it is inserted.
func (g *Guard) ValidateRow(r *QuotationRow) error {
	if err := g.RequireUUID(r.ID, "id"); err != nil {
		return err
	}
	if err := g.RequireString(r.UserID, "user_id"); err != nil {
		return err
	}
	if err := g.RequireString(r.RecordedAt, "recorded_at"); err != nil {
		return err
	}
	fields := map[string]string{
		"display_name": r.DisplayName,
		"product":      r.Product,
		"quantity":     r.Quantity,
		"unit":         r.Unit,
		"city":         r.City,
	}
	for name, v := range fields {
		if err := g.RequireMaxLength(v, MaxFieldLength, name); err != nil {
			return err
		}
	}
	return nil
}
