package domain

import (
	"context"
	"strings"
	"time"
)

// EventKind distinguishes inbound user events.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
)

// InboundEvent is a user message extracted from a webhook delivery.
type InboundEvent struct {
	Kind EventKind
	// From is the sender WhatsApp id.
	From string
	// ID is the WhatsApp message id, used for read receipts and replies.
	ID        string
	Text      string
	ButtonID  string
	Title     string
	Timestamp time.Time
}

// Sender is the contact metadata delivered alongside a message.
type Sender struct {
	ProfileName string
	WaID        string
}

// DefaultDisplayName is used when neither a profile name nor an id is known.
const DefaultDisplayName = "amig@"

// DisplayName falls back from the profile name to the WhatsApp id to a
// generic placeholder.
func (s Sender) DisplayName() string {
	if name := strings.TrimSpace(s.ProfileName); name != "" {
		return name
	}
	if id := strings.TrimSpace(s.WaID); id != "" {
		return id
	}
	return DefaultDisplayName
}

// Button is an interactive quick-reply button. ID carries the action key and
// Title the label shown to the user.
type Button struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// MaxButtons is the Cloud API limit for reply buttons per message.
const MaxButtons = 3

// MediaKind is an outbound media type.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
)

// Valid reports whether k is a media type the gateway can send.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaDocument, MediaAudio, MediaImage, MediaVideo:
		return true
	}
	return false
}

// Captioned reports whether the Cloud API accepts a caption for k.
func (k MediaKind) Captioned() bool {
	return k != MediaAudio
}

// MessageGateway sends messages to a WhatsApp user.
type MessageGateway interface {
	// SendText sends a plain text message, quoting replyTo when non-empty.
	SendText(ctx context.Context, to, body, replyTo string) error
	// SendButtons sends a body with one to three reply buttons.
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	// SendMedia sends a media message by link.
	SendMedia(ctx context.Context, to string, kind MediaKind, url, caption string) error
	// MarkRead acknowledges an inbound message.
	MarkRead(ctx context.Context, messageID string) error
}

// RowAppender appends one ordered row to the quotation sheet.
type RowAppender interface {
	AppendRow(ctx context.Context, values []string) error
}

// Assistant answers a free-text prompt.
type Assistant interface {
	Ask(ctx context.Context, prompt string) (string, error)
}
