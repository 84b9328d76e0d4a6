// Package dedupe remembers webhook deliveries that were already handled.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL covers LINE's redelivery window
const DefaultTTL = 24 * time.Hour

// Deduper reports whether key was seen before and records it if not.
// A false result means the caller owns the key and should process it.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// MemoryDeduper keeps keys in process until they expire
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryDeduper{
		ttl:  ttl,
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

var _ Deduper = (*MemoryDeduper)(nil)

func (d *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.keys[key]; ok && now.Before(exp) {
		return true, nil
	}
	d.keys[key] = now.Add(d.ttl)

	// sweep expired keys while holding the lock
	for k, exp := range d.keys {
		if !now.Before(exp) {
			delete(d.keys, k)
		}
	}
	return false, nil
}
