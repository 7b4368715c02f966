package state

import (
	"sync"
	"time"
)

// RateLimiter is a per-owner sliding-window counter. An action is permitted
// only while the pruned window holds fewer than ceiling entries; a rejected
// attempt spends nothing, so bursts of rejections cannot starve an owner.
type RateLimiter struct {
	mu      sync.Mutex
	ceiling int
	window  time.Duration
	actions map[int64][]time.Time
}

func NewRateLimiter(ceiling int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		ceiling: ceiling,
		window:  window,
		actions: make(map[int64][]time.Time),
	}
}

// TryAcquire prunes entries older than the window and, if capacity remains,
// records now and returns true. On the false path the window is left
// unmodified apart from pruning.
func (r *RateLimiter) TryAcquire(owner int64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.actions[owner][:0]
	for _, t := range r.actions[owner] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.ceiling {
		r.actions[owner] = kept
		return false
	}
	r.actions[owner] = append(kept, now)
	return true
}

// Sweep prunes every owner's window and drops owners with nothing left, so
// the map stays bounded by the set of recently active owners.
func (r *RateLimiter) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	for owner, ts := range r.actions {
		kept := ts[:0]
		for _, t := range ts {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(r.actions, owner)
			continue
		}
		r.actions[owner] = kept
	}
}
