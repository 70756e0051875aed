package webhook

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ferraceros/ferrabot/internal/clock"
)

const (
	defaultDedupeSize = 4096
	defaultDedupeTTL  = 10 * time.Minute
)

// Deduper remembers recently seen message ids so Meta redeliveries are
// processed once.
type Deduper struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	clock clock.Clock
}

// NewDeduper creates a deduper holding at most size ids for ttl each.
func NewDeduper(size int, ttl time.Duration, clk clock.Clock) (*Deduper, error) {
	if size <= 0 {
		size = defaultDedupeSize
	}
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("message deduper init: %w", err)
	}
	return &Deduper{cache: cache, ttl: ttl, clock: clk}, nil
}

// Seen reports whether messageID was already seen within the TTL, and
// records it otherwise.
func (d *Deduper) Seen(messageID string) bool {
	if messageID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if ts, ok := d.cache.Get(messageID); ok {
		if now.Sub(ts) <= d.ttl {
			return true
		}
		d.cache.Remove(messageID)
	}
	d.cache.Add(messageID, now)
	return false
}

// Forget drops messageID so a later redelivery is processed again.
func (d *Deduper) Forget(messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(messageID)
}

// Len returns the number of remembered ids.
func (d *Deduper) Len() int {
	return d.cache.Len()
}
