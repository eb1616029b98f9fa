package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter bounds inbound WS chat frames per client, keyed by client
// ID, at the configured requests-per-minute ceiling (spec §6 "the gateway
// enforces a per-connection rate limit"). A zero RPM disables limiting.
type RateLimiter struct {
	rpm   int
	mu    sync.Mutex
	peers map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter at rpm requests/minute. rpm <= 0
// disables limiting entirely.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{rpm: rpm, peers: make(map[string]*rate.Limiter)}
}

// Enabled reports whether rate limiting is active.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether clientID may send another frame right now.
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.peers[clientID]
	if !ok {
		// burst of 5: a client bursting a short exchange shouldn't stall
		// on the first message after reconnecting.
		lim = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), 5)
		r.peers[clientID] = lim
	}
	return lim.Allow()
}

// Forget drops clientID's bucket on disconnect so the map doesn't grow
// unbounded across reconnects.
func (r *RateLimiter) Forget(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, clientID)
}
