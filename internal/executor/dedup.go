package executor

import (
	"sync"
	"time"
)

// Dedup suppresses re-execution of the same basket within a TTL window. Keys
// are opportunity signatures, so a basket rediscovered on the next scan pass
// under a fresh id is still recognised. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // signature -> last executed
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether signature was seen within the TTL. An unseen or
// expired signature is recorded and false is returned.
func (d *Dedup) IsDuplicate(signature string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[signature]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[signature] = now
	return false
}

// Forget drops a signature so it may run again immediately.
func (d *Dedup) Forget(signature string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, signature)
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for sig, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, sig)
		}
	}
}

// Len returns the number of tracked signatures.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
