package whatsapp

import (
	"strconv"
	"time"

	"github.com/ferraceros/ferrabot/internal/domain"
)

// Inbound is one user message with the contact metadata Meta sent alongside it.
type Inbound struct {
	Event  domain.InboundEvent
	Sender domain.Sender
}

// Skipped counts payload messages that carried nothing the bot handles.
type Skipped struct {
	// Unsupported messages have a type other than text or button reply.
	Unsupported int
	// Malformed messages lack a sender, an id or their typed content.
	Malformed int
}

// Extract flattens a webhook payload into inbound events in delivery order.
// Delivery receipts are ignored.
func Extract(p *WebhookPayload) ([]Inbound, Skipped) {
	var out []Inbound
	var skipped Skipped

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			contacts := make(map[string]Contact, len(change.Value.Contacts))
			for _, ct := range change.Value.Contacts {
				contacts[ct.WaID] = ct
			}

			for _, msg := range change.Value.Messages {
				if msg.From == "" || msg.ID == "" {
					skipped.Malformed++
					continue
				}

				ev := domain.InboundEvent{
					From:      msg.From,
					ID:        msg.ID,
					Timestamp: parseTimestamp(msg.Timestamp),
				}
				switch msg.Type {
				case MessageTypeText:
					if msg.Text == nil {
						skipped.Malformed++
						continue
					}
					ev.Kind = domain.EventText
					ev.Text = msg.Text.Body
				case MessageTypeInteractive:
					if msg.Interactive == nil || msg.Interactive.ButtonReply == nil {
						skipped.Unsupported++
						continue
					}
					ev.Kind = domain.EventButton
					ev.ButtonID = msg.Interactive.ButtonReply.ID
					ev.Title = msg.Interactive.ButtonReply.Title
				default:
					skipped.Unsupported++
					continue
				}

				sender := domain.Sender{WaID: msg.From}
				if ct, ok := contacts[msg.From]; ok {
					sender.ProfileName = ct.Profile.Name
				} else if len(change.Value.Contacts) == 1 {
					// Single-contact deliveries sometimes carry a formatted wa_id.
					sender.ProfileName = change.Value.Contacts[0].Profile.Name
				}

				out = append(out, Inbound{Event: ev, Sender: sender})
			}
		}
	}
	return out, skipped
}

func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
