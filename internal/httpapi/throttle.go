package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleIdle  = 30 * time.Minute
	throttleSweep = 5 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipThrottle keeps one token bucket per client IP and forgets idle ones.
type ipThrottle struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*ipEntry
	lastSweep time.Time
	now       func() time.Time
}

func newIPThrottle(limit rate.Limit, burst int, now func() time.Time) *ipThrottle {
	return &ipThrottle{
		limit:     limit,
		burst:     burst,
		entries:   make(map[string]*ipEntry),
		lastSweep: now(),
		now:       now,
	}
}

func (t *ipThrottle) allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) >= throttleSweep {
		cutoff := now.Add(-throttleIdle)
		for key, e := range t.entries {
			if e.lastSeen.Before(cutoff) {
				delete(t.entries, key)
			}
		}
		t.lastSweep = now
	}

	e, ok := t.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (t *ipThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
