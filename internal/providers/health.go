package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthConfig configures the rolling failure window (spec §4.4 "Health tracker").
type HealthConfig struct {
	Window           time.Duration
	FailureThreshold int
}

// DefaultHealthConfig matches spec defaults: 60s window, 3 failures.
var DefaultHealthConfig = HealthConfig{Window: 60 * time.Second, FailureThreshold: 3}

// HealthTracker records per-provider success/failure outcomes in a rolling
// window and reports unhealthiness once failures reach the threshold
// within that window (spec §4.4). Backed by Redis sorted sets (pack:
// goa-ai, manifold use go-redis for exactly this kind of rolling-window
// bookkeeping) when a client is configured, so the window survives gateway
// restarts across multiple instances; falls back to an in-process map
// otherwise, mirroring goclaw's optional-Postgres/standalone-mode duality.
type HealthTracker struct {
	cfg HealthConfig
	rdb *redis.Client

	mu    sync.Mutex
	local map[string][]time.Time // provider -> failure timestamps, in-process fallback
}

// NewHealthTracker builds a tracker. rdb may be nil to use the in-process fallback.
func NewHealthTracker(cfg HealthConfig, rdb *redis.Client) *HealthTracker {
	if cfg.Window <= 0 {
		cfg = DefaultHealthConfig
	}
	return &HealthTracker{cfg: cfg, rdb: rdb, local: make(map[string][]time.Time)}
}

func (h *HealthTracker) key(provider string) string { return "aria:health:" + provider }

// RecordSuccess clears nothing (failures age out naturally) but is called
// for symmetry and potential future success-rate metrics.
func (h *HealthTracker) RecordSuccess(ctx context.Context, provider string) {
	// No-op beyond window aging: a success does not reset the failure
	// count early, matching spec §4.4's window-expiry-only reset.
}

// RecordFailure appends a failure timestamp for provider.
func (h *HealthTracker) RecordFailure(ctx context.Context, provider string, at time.Time) {
	if h.rdb != nil {
		key := h.key(provider)
		member := fmt.Sprintf("%d", at.UnixNano())
		pipe := h.rdb.TxPipeline()
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", at.Add(-h.cfg.Window).UnixNano()))
		pipe.Expire(ctx, key, h.cfg.Window*2)
		if _, err := pipe.Exec(ctx); err == nil {
			return
		}
		// fall through to local tracking on redis error
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.local[provider] = append(pruneOlder(h.local[provider], at, h.cfg.Window), at)
}

// IsHealthy reports whether provider has fewer than FailureThreshold
// failures in the current window.
func (h *HealthTracker) IsHealthy(ctx context.Context, provider string, now time.Time) bool {
	if h.rdb != nil {
		key := h.key(provider)
		h.rdb.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-h.cfg.Window).UnixNano()))
		count, err := h.rdb.ZCard(ctx, key).Result()
		if err == nil {
			return int(count) < h.cfg.FailureThreshold
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.local[provider] = pruneOlder(h.local[provider], now, h.cfg.Window)
	return len(h.local[provider]) < h.cfg.FailureThreshold
}

func pruneOlder(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
