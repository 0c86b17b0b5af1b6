// Package ratelimit implements the sliding-window-plus-cooldown request
// gate in front of the tracking API. Single-process and in-memory: the
// limiter is an injectable value owned by the server composition root,
// not ambient global state.
package ratelimit

import (
	"context"
	"sync"
	"time"

	log "github.com/quickutil/toolstats/internal/logging"
)

// Defaults matching the documented policy: 100 requests per trailing
// minute, then a 5 minute cooldown.
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 100
	DefaultCooldown    = 5 * time.Minute
)

type entry struct {
	requests  []time.Time
	blocked   bool
	blockedAt time.Time
	lastSeen  time.Time
}

// Limiter tracks request timestamps per client key. All unidentifiable
// clients share the single "unknown" bucket, which is intentionally
// conservative.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	window      time.Duration
	maxRequests int
	cooldown    time.Duration

	now func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter. Non-positive parameters fall back to defaults.
func New(window time.Duration, maxRequests int, cooldown time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	l := &Limiter{
		entries:     make(map[string]*entry),
		window:      window,
		maxRequests: maxRequests,
		cooldown:    cooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndRecord applies the policy for one request from clientKey and
// reports whether it may proceed. It never fails; worst case is over- or
// under-blocking, not a correctness error.
//
// Policy, in order:
//  1. A blocked entry inside its cooldown is rejected untouched.
//  2. A blocked entry past its cooldown resets and is re-evaluated.
//  3. Timestamps older than the window are pruned lazily.
//  4. The current request is recorded; exceeding the threshold blocks
//     the key and rejects the request.
func (l *Limiter) CheckAndRecord(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, exists := l.entries[clientKey]
	if !exists {
		e = &entry{}
		l.entries[clientKey] = e
	}
	e.lastSeen = now

	if e.blocked {
		if now.Sub(e.blockedAt) < l.cooldown {
			return false
		}
		e.blocked = false
		e.requests = e.requests[:0]
	}

	// Lazy prune: keep only timestamps inside the trailing window.
	kept := e.requests[:0]
	for _, t := range e.requests {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	e.requests = append(kept, now)

	if len(e.requests) > l.maxRequests {
		e.blocked = true
		e.blockedAt = now
		return false
	}
	return true
}

// Len returns the number of tracked client entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep removes entries idle for longer than the cooldown. Keys inside an
// active block are kept so a cooldown is never shortened by eviction.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if e.blocked && now.Sub(e.blockedAt) < l.cooldown {
			continue
		}
		if now.Sub(e.lastSeen) > l.cooldown {
			delete(l.entries, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("ratelimit: swept %d idle client entries", removed)
	}
}

// StartSweep reclaims idle entries every interval until ctx is cancelled.
// With interval <= 0 the map grows with every distinct client for the
// process lifetime.
func (l *Limiter) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}
