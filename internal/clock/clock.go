// Package clock abstracts wall time and scheduled callbacks so that
// conversation timeouts and breaker windows can be driven deterministically
// in tests.
//
//	mock := clock.NewMock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
//	fired := false
//	mock.AfterFunc(5*time.Minute, func() { fired = true })
//	mock.Advance(5 * time.Minute) // fired == true
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides time operations that can be mocked for testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// AfterFunc calls fn in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending callback scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

type realClock struct{}

// New returns a Clock that uses the real system time.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Mock implements Clock with controllable time for testing.
// Callbacks registered with AfterFunc run synchronously inside Advance or Set
// once their deadline is reached, in deadline order.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

// NewMock creates a new Mock clock set to the given time.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Since returns the duration since t.
func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// AfterFunc registers fn to run when the mock time reaches now+d.
func (m *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{mock: m, deadline: m.current.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Set moves the mock clock to t, firing every timer that became due.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	due := m.collectDue()
	m.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

// Advance moves the mock clock forward by d, firing every timer that became due.
func (m *Mock) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// collectDue removes and returns due timers. Caller must hold m.mu.
func (m *Mock) collectDue() []*mockTimer {
	var due, pending []*mockTimer
	for _, t := range m.timers {
		if !t.deadline.After(m.current) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	m.timers = pending
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	fn       func()
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()

	for i, other := range t.mock.timers {
		if other == t {
			t.mock.timers = append(t.mock.timers[:i], t.mock.timers[i+1:]...)
			return true
		}
	}
	return false
}
