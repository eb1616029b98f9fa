package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps tracked rate-limit keys so a sender rotating
	// IDs can't grow this map without bound.
	maxTrackedSenders = 4096

	senderRateWindow  = 60 * time.Second
	senderRateMaxHits = 30
)

type senderRateEntry struct {
	windowStart time.Time
	count       int
}

// InboundRateLimiter bounds how many inbound messages per minute one
// sender can push into the bus per channel adapter (spec §2 "Channel
// Fabric" treats adapters as untrusted input — a compromised or
// misbehaving bot-facing API must not be able to flood the Agent Turn
// Engine). Safe for concurrent use.
type InboundRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*senderRateEntry
}

// NewInboundRateLimiter builds an empty, bounded rate limiter.
func NewInboundRateLimiter() *InboundRateLimiter {
	return &InboundRateLimiter{entries: make(map[string]*senderRateEntry)}
}

// Allow reports whether senderID is still within its rate window,
// recording the hit either way.
func (r *InboundRateLimiter) Allow(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if len(r.entries) >= maxTrackedSenders {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= senderRateWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedSenders {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[senderID]
	if !ok || now.Sub(e.windowStart) >= senderRateWindow {
		r.entries[senderID] = &senderRateEntry{windowStart: now, count: 1}
		return true
	}
	e.count++
	return e.count <= senderRateMaxHits
}
