// Package whatsapp talks to the WhatsApp Cloud API: it sends text, reply
// buttons, media and read receipts, and defines the webhook payload models.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/config"
	"github.com/ferraceros/ferrabot/internal/domain"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/sanitize"
)

// Observer receives the outcome of every API call.
type Observer interface {
	RecordOutbound(kind string, err error)
}

type nopObserver struct{}

func (nopObserver) RecordOutbound(string, error) {}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithObserver reports call outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// Client sends messages through the Graph API. It implements
// domain.MessageGateway.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client
	observer    Observer
	logger      *zap.Logger
}

var _ domain.MessageGateway = (*Client)(nil)

// NewClient creates a Cloud API client for the configured phone number.
func NewClient(cfg *config.WhatsAppConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		endpoint: fmt.Sprintf("%s/%s/%s/messages",
			strings.TrimRight(cfg.APIURL, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: timeout},
		observer:    nopObserver{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendText sends a plain text message. A non-empty replyTo quotes that
// inbound message.
func (c *Client) SendText(ctx context.Context, to, body, replyTo string) error {
	msg := SendMessageRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: body},
	}
	if replyTo != "" {
		msg.Context = &MessageContext{MessageID: replyTo}
	}
	return c.send(ctx, "text", msg)
}

// SendButtons sends body with one to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []domain.Button) error {
	if len(buttons) == 0 || len(buttons) > domain.MaxButtons {
		return apperrors.ValidationFailed(fmt.Sprintf("interactive message needs 1-%d buttons, got %d", domain.MaxButtons, len(buttons)))
	}

	wire := make([]Button, len(buttons))
	for i, b := range buttons {
		wire[i] = Button{Type: "reply", Reply: ButtonReply{ID: b.ID, Title: b.Title}}
	}

	msg := SendMessageRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "button",
			Body:   InteractiveBody{Text: body},
			Action: InteractiveAction{Buttons: wire},
		},
	}
	return c.send(ctx, "interactive", msg)
}

// SendMedia sends media by public link. Audio messages carry no caption.
func (c *Client) SendMedia(ctx context.Context, to string, kind domain.MediaKind, link, caption string) error {
	if !kind.Valid() {
		return apperrors.ValidationFailed(fmt.Sprintf("unsupported media type %q", kind))
	}

	media := &MediaObject{Link: link}
	if kind.Captioned() {
		media.Caption = caption
	}

	msg := SendMessageRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             string(kind),
	}
	switch kind {
	case domain.MediaDocument:
		media.Filename = documentFilename(link)
		msg.Document = media
	case domain.MediaAudio:
		msg.Audio = media
	case domain.MediaImage:
		msg.Image = media
	case domain.MediaVideo:
		msg.Video = media
	}
	return c.send(ctx, string(kind), msg)
}

// MarkRead sends a read receipt for an inbound message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	msg := SendMessageRequest{
		MessagingProduct: messagingProduct,
		Status:           "read",
		MessageID:        messageID,
	}
	return c.send(ctx, "read", msg)
}

func (c *Client) send(ctx context.Context, kind string, msg SendMessageRequest) error {
	err := c.doSend(ctx, msg)
	c.observer.RecordOutbound(kind, err)
	if err != nil {
		c.logger.Warn("whatsapp send failed",
			zap.String("kind", kind),
			zap.String("to", sanitize.Phone(msg.To)),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) doSend(ctx context.Context, msg SendMessageRequest) error {
	op := "whatsapp.send"

	payload, err := json.Marshal(msg)
	if err != nil {
		return apperrors.MessagingError(op, 0, fmt.Errorf("marshaling message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return apperrors.MessagingError(op, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.MessagingError(op, 0, fmt.Errorf("sending message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.MessagingError(op, resp.StatusCode, graphErrorDetail(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func graphErrorDetail(body []byte) error {
	var ge GraphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return fmt.Errorf("%s (code %d)", ge.Error.Message, ge.Error.Code)
	}
	return fmt.Errorf("%s", strings.TrimSpace(string(body)))
}

func documentFilename(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
