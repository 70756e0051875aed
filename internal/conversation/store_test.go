package conversation

import (
	"testing"
	"time"

	"github.com/ferraceros/ferrabot/internal/domain"
)

func TestStore_GetOrCreate(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	first, created := s.GetOrCreate(testUser, now)
	if !created || first.Mode != domain.ModeNone || !first.Started.Equal(now) {
		t.Fatalf("first = %+v, created = %v", first, created)
	}

	again, created := s.GetOrCreate(testUser, now.Add(time.Minute))
	if created || again != first {
		t.Error("second call should return the existing session")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestStore_DeleteOnlyCurrent(t *testing.T) {
	s := NewStore()
	now := time.Now()

	old, _ := s.GetOrCreate(testUser, now)
	if !s.Delete(old) {
		t.Fatal("Delete(current) = false")
	}

	fresh, _ := s.GetOrCreate(testUser, now)
	if s.Delete(old) {
		t.Error("deleting a stale session must not remove the new one")
	}
	if got, ok := s.Get(testUser); !ok || got != fresh {
		t.Error("fresh session lost")
	}
}

func TestStore_Drain(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"1", "2", "3"} {
		s.GetOrCreate(id, time.Now())
	}

	if got := len(s.Drain()); got != 3 {
		t.Errorf("Drain() returned %d sessions", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after drain = %d", s.Len())
	}
}

func TestSession_SetModeDropsQuotation(t *testing.T) {
	sess := &Session{Mode: domain.ModeQuotation, Quotation: domain.NewQuotation("Ana", time.Now())}

	sess.setMode(domain.ModeQuotation)
	if sess.Quotation == nil {
		t.Fatal("staying in quotation mode must keep the record")
	}
	sess.setMode(domain.ModeSingleQuestion)
	if sess.Quotation != nil {
		t.Error("leaving quotation mode must drop the record")
	}
}
