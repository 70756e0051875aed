package conversation

import (
	"sync"
	"time"

	"github.com/ferraceros/ferrabot/internal/clock"
	"github.com/ferraceros/ferrabot/internal/domain"
)

// Session is the per-user conversation state. Every field is guarded by mu;
// the engine holds mu for the whole handling of an event.
type Session struct {
	mu sync.Mutex

	UserID      string
	DisplayName string
	Mode        domain.Mode
	// Quotation is non-nil only while Mode is ModeQuotation.
	Quotation *domain.Quotation
	History   []domain.Turn
	// Greeted is set once the welcome was sent (or skipped for a button
	// arriving before any text).
	Greeted  bool
	LastMenu string
	Started  time.Time

	timer      clock.Timer
	generation uint64
	// evicted marks a session removed from the store; holders of a stale
	// pointer must not act on it.
	evicted bool
}

// setMode switches mode, dropping the quotation record when leaving the wizard.
func (s *Session) setMode(m domain.Mode) {
	s.Mode = m
	if m != domain.ModeQuotation {
		s.Quotation = nil
	}
}

func (s *Session) addTurn(speaker domain.Speaker, text string) {
	s.History = append(s.History, domain.Turn{Speaker: speaker, Text: text})
}

// Store maps user ids to sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for userID, creating it when absent.
func (s *Store) GetOrCreate(userID string, now time.Time) (sess *Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess, false
	}
	sess = &Session{UserID: userID, Mode: domain.ModeNone, Started: now}
	s.sessions[userID] = sess
	return sess, true
}

// Get returns the session for userID.
func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Delete removes sess if it is still the current session for its user.
func (s *Store) Delete(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.sessions[sess.UserID]; ok && cur == sess {
		delete(s.sessions, sess.UserID)
		return true
	}
	return false
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Drain removes and returns every session.
func (s *Store) Drain() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, sess)
		delete(s.sessions, id)
	}
	return out
}
