package whatsapp

import (
	"encoding/json"
	"testing"

	"github.com/ferraceros/ferrabot/internal/domain"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA_ID",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "1234567890"},
        "contacts": [
          {"profile": {"name": "Ana Gómez"}, "wa_id": "573001112233"},
          {"profile": {"name": ""}, "wa_id": "573009998877"}
        ],
        "messages": [
          {"from": "573001112233", "id": "wamid.1", "timestamp": "1714650000", "type": "text", "text": {"body": "hola"}},
          {"from": "573009998877", "id": "wamid.2", "timestamp": "1714650001", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "quote", "title": "Cotizar"}}},
          {"from": "573001112233", "id": "wamid.3", "timestamp": "1714650002", "type": "sticker"},
          {"from": "573001112233", "id": "wamid.4", "timestamp": "1714650003", "type": "text"}
        ],
        "statuses": [{"id": "wamid.out", "status": "delivered", "recipient_id": "573001112233"}]
      }
    }]
  }]
}`

func TestExtract(t *testing.T) {
	var p WebhookPayload
	if err := json.Unmarshal([]byte(samplePayload), &p); err != nil {
		t.Fatal(err)
	}

	got, skipped := Extract(&p)
	if len(got) != 2 {
		t.Fatalf("extracted %d events, want 2", len(got))
	}
	if skipped.Unsupported != 1 || skipped.Malformed != 1 {
		t.Errorf("skipped = %+v", skipped)
	}

	text := got[0]
	if text.Event.Kind != domain.EventText || text.Event.Text != "hola" || text.Event.ID != "wamid.1" {
		t.Errorf("text event = %+v", text.Event)
	}
	if text.Sender.DisplayName() != "Ana Gómez" {
		t.Errorf("sender = %+v", text.Sender)
	}
	if text.Event.Timestamp.Unix() != 1714650000 {
		t.Errorf("timestamp = %v", text.Event.Timestamp)
	}

	button := got[1]
	if button.Event.Kind != domain.EventButton || button.Event.ButtonID != "quote" || button.Event.Title != "Cotizar" {
		t.Errorf("button event = %+v", button.Event)
	}
	if button.Sender.DisplayName() != "573009998877" {
		t.Errorf("blank profile should fall back to wa_id, got %q", button.Sender.DisplayName())
	}
}

func TestExtract_StatusOnly(t *testing.T) {
	p := WebhookPayload{Entry: []Entry{{Changes: []Change{{Value: ChangeValue{
		Statuses: []Status{{ID: "wamid.out", Status: "read"}},
	}}}}}}

	got, skipped := Extract(&p)
	if len(got) != 0 || skipped != (Skipped{}) {
		t.Errorf("got %v, skipped %+v", got, skipped)
	}
}
