package webhook

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/clock"
	apperrors "github.com/ferraceros/ferrabot/internal/errors"
	"github.com/ferraceros/ferrabot/internal/whatsapp"
)

type fakeSink struct {
	got    []whatsapp.Inbound
	refuse bool
}

func (s *fakeSink) Enqueue(in whatsapp.Inbound) bool {
	if s.refuse {
		return false
	}
	s.got = append(s.got, in)
	return true
}

type fakeRecorder struct {
	inbound map[string]int
	dropped map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{inbound: map[string]int{}, dropped: map[string]int{}}
}

func (r *fakeRecorder) RecordInboundEvent(t string)   { r.inbound[t]++ }
func (r *fakeRecorder) RecordEventDropped(why string) { r.dropped[why]++ }

type fakeAuditor struct {
	events []int
	valid  []bool
}

func (a *fakeAuditor) WebhookReceived(_ context.Context, events int, valid bool) {
	a.events = append(a.events, events)
	a.valid = append(a.valid, valid)
}

const textDelivery = `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{
  "contacts":[{"profile":{"name":"Ana"},"wa_id":"573001112233"}],
  "messages":[
    {"from":"573001112233","id":"wamid.1","timestamp":"1714650000","type":"text","text":{"body":"hola"}},
    {"from":"573001112233","id":"wamid.2","timestamp":"1714650001","type":"image"}
  ]}}]}]}`

func newTestIntake(t *testing.T, sink Sink) (*Intake, *fakeRecorder, *fakeAuditor) {
	t.Helper()
	d, err := NewDeduper(16, time.Minute, clock.NewMock(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	rec := newFakeRecorder()
	aud := &fakeAuditor{}
	return NewIntake(IntakeConfig{Deduper: d, Sink: sink, Recorder: rec, Auditor: aud, Logger: zap.NewNop()}), rec, aud
}

func TestIntake_Process(t *testing.T) {
	sink := &fakeSink{}
	in, rec, aud := newTestIntake(t, sink)

	res, err := in.Process(context.Background(), []byte(textDelivery))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Accepted != 1 || res.Dropped != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(sink.got) != 1 || sink.got[0].Event.Text != "hola" || sink.got[0].Sender.ProfileName != "Ana" {
		t.Errorf("sink = %+v", sink.got)
	}
	if rec.inbound["text"] != 1 || rec.dropped[DropUnsupported] != 1 {
		t.Errorf("recorder = %+v", rec)
	}
	if len(aud.events) != 1 || aud.events[0] != 1 || !aud.valid[0] {
		t.Errorf("auditor = %+v", aud)
	}
}

func TestIntake_Process_Redelivery(t *testing.T) {
	sink := &fakeSink{}
	in, rec, _ := newTestIntake(t, sink)

	for i := 0; i < 3; i++ {
		if _, err := in.Process(context.Background(), []byte(textDelivery)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.got) != 1 {
		t.Errorf("redelivered message enqueued %d times", len(sink.got))
	}
	if rec.dropped[DropDuplicate] != 2 {
		t.Errorf("duplicates = %d, want 2", rec.dropped[DropDuplicate])
	}
}

func TestIntake_Process_QueueFull(t *testing.T) {
	sink := &fakeSink{refuse: true}
	in, rec, _ := newTestIntake(t, sink)

	res, err := in.Process(context.Background(), []byte(textDelivery))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 0 || rec.dropped[DropQueueFull] != 1 {
		t.Errorf("result = %+v, recorder = %+v", res, rec)
	}

	// A redelivery after a refused enqueue is processed, not deduplicated.
	sink.refuse = false
	res, err = in.Process(context.Background(), []byte(textDelivery))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 1 || rec.dropped[DropDuplicate] != 0 || len(sink.got) != 1 {
		t.Errorf("redelivery: result = %+v, recorder = %+v", res, rec)
	}
}

func TestIntake_Process_Malformed(t *testing.T) {
	in, _, aud := newTestIntake(t, &fakeSink{})

	_, err := in.Process(context.Background(), []byte(`{"entry": [`))
	if apperrors.GetCode(err) != apperrors.CodeWebhookInvalid {
		t.Errorf("error = %v, want webhook invalid", err)
	}
	if len(aud.valid) != 1 || aud.valid[0] {
		t.Errorf("auditor = %+v", aud)
	}
}

func TestIntake_Process_ForeignObject(t *testing.T) {
	sink := &fakeSink{}
	in, _, _ := newTestIntake(t, sink)

	_, err := in.Process(context.Background(), []byte(`{"object": "page", "entry": []}`))
	if apperrors.GetCode(err) != apperrors.CodeWebhookInvalid {
		t.Errorf("error = %v, want webhook invalid", err)
	}
	if len(sink.got) != 0 {
		t.Errorf("sink received %d events", len(sink.got))
	}
}

func TestDeduper_TTL(t *testing.T) {
	mock := clock.NewMock(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	d, err := NewDeduper(8, time.Minute, mock)
	if err != nil {
		t.Fatal(err)
	}

	if d.Seen("wamid.1") {
		t.Fatal("first sighting reported as seen")
	}
	if !d.Seen("wamid.1") {
		t.Fatal("second sighting within TTL not reported")
	}

	mock.Advance(2 * time.Minute)
	if d.Seen("wamid.1") {
		t.Error("expired id should be accepted again")
	}
	if d.Seen("") {
		t.Error("empty ids are never deduplicated")
	}
}

func TestDeduper_Forget(t *testing.T) {
	d, err := NewDeduper(8, time.Minute, clock.NewMock(time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	d.Seen("wamid.1")
	d.Forget("wamid.1")
	if d.Seen("wamid.1") {
		t.Error("forgotten id reported as seen")
	}
}

func TestDeduper_Eviction(t *testing.T) {
	d, err := NewDeduper(2, time.Hour, clock.NewMock(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	d.Seen("a")
	d.Seen("b")
	d.Seen("c")

	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
	if d.Seen("a") {
		t.Error("oldest id should have been evicted")
	}
}
