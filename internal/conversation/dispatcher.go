package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/domain"
	"github.com/ferraceros/ferrabot/internal/whatsapp"
)

// DefaultMailboxSize bounds the events queued for one user.
const DefaultMailboxSize = 32

// Handler processes a single inbound event.
type Handler interface {
	Handle(ctx context.Context, ev domain.InboundEvent, sender domain.Sender)
}

// Dispatcher runs handlers off the webhook request path. Events of one user
// are handled one at a time in arrival order; different users run in
// parallel. A user's worker exits as soon as their mailbox is empty.
type Dispatcher struct {
	handler     Handler
	logger      *zap.Logger
	mailboxSize int

	mu        sync.Mutex
	mailboxes map[string]chan whatsapp.Inbound
	closed    bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher feeding handler.
func NewDispatcher(handler Handler, mailboxSize int, logger *zap.Logger) *Dispatcher {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:     handler,
		logger:      logger.Named("dispatcher"),
		mailboxSize: mailboxSize,
		mailboxes:   make(map[string]chan whatsapp.Inbound),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue queues in for its sender. It returns false when the dispatcher is
// shut down or the user's mailbox is full.
func (d *Dispatcher) Enqueue(in whatsapp.Inbound) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	userID := in.Event.From
	mailbox, ok := d.mailboxes[userID]
	if !ok {
		mailbox = make(chan whatsapp.Inbound, d.mailboxSize)
		d.mailboxes[userID] = mailbox
		d.wg.Add(1)
		go d.worker(userID, mailbox)
	}

	select {
	case mailbox <- in:
		return true
	default:
		return false
	}
}

// Pending returns the number of users with queued or in-flight events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

func (d *Dispatcher) worker(userID string, mailbox chan whatsapp.Inbound) {
	defer d.wg.Done()

	for {
		// The empty check and the removal happen under d.mu so Enqueue never
		// writes to a mailbox whose worker has left.
		d.mu.Lock()
		var in whatsapp.Inbound
		select {
		case in = <-mailbox:
		default:
			delete(d.mailboxes, userID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		d.handler.Handle(d.ctx, in.Event, in.Sender)
	}
}

// Shutdown stops accepting events and waits for queued ones to finish. If
// ctx expires first, in-flight handlers see their context cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := len(d.mailboxes)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher", zap.Int("pending_users", pending))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("dispatcher stop timed out")
		return ctx.Err()
	}
}
