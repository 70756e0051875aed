// Package domain contains the conversation entities shared by the engine,
// the webhook intake and the outbound adapters.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode is the single active conversation mode of a user.
type Mode string

const (
	ModeNone              Mode = "none"
	ModeQuotation         Mode = "quotation"
	ModeSingleQuestion    Mode = "single_question"
	ModeContinuousSupport Mode = "continuous_support"
	ModeFeedback          Mode = "feedback"
)

// Stage is a quotation wizard step. Stages only move forward.
type Stage int

const (
	StageProduct Stage = iota
	StageQuantity
	StageUnit
	StageCity
)

func (s Stage) String() string {
	switch s {
	case StageProduct:
		return "product"
	case StageQuantity:
		return "quantity"
	case StageUnit:
		return "unit"
	case StageCity:
		return "city"
	default:
		return "unknown"
	}
}

// Quotation is the wizard record. It exists only while the user is in
// ModeQuotation.
type Quotation struct {
	ID          uuid.UUID
	Stage       Stage
	Product     string
	Quantity    string
	Unit        string
	City        string
	DisplayName string
	StartedAt   time.Time
}

// NewQuotation starts a wizard at the product stage.
func NewQuotation(displayName string, now time.Time) *Quotation {
	return &Quotation{
		ID:          uuid.New(),
		Stage:       StageProduct,
		DisplayName: displayName,
		StartedAt:   now,
	}
}

// Speaker identifies who produced a history turn.
type Speaker string

const (
	SpeakerUser      Speaker = "Usuario"
	SpeakerAssistant Speaker = "Asistente"
)

// Turn is one line of conversation history.
type Turn struct {
	Speaker Speaker
	Text    string
}

// TimestampLayout is the layout used for the timestamp column of sheet rows.
const TimestampLayout = "2006-01-02 15:04:05"

// Row column count shared with the spreadsheet.
const RowWidth = 7

// ContactRow is the partially empty row written on first contact.
func ContactRow(userID, displayName string, at time.Time) []string {
	return []string{userID, displayName, "", "", "", "", at.Format(TimestampLayout)}
}

// Row is the completed quotation row in the fixed column order
// [userId, name, product, quantity, unit, city, timestamp].
func (q *Quotation) Row(userID string, at time.Time) []string {
	return []string{userID, q.DisplayName, q.Product, q.Quantity, q.Unit, q.City, at.Format(TimestampLayout)}
}

// Normalize lower-cases and trims user input for command matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
