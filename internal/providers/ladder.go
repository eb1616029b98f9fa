package providers

import (
	"context"
	"sync"
	"time"

	"github.com/arialabs/aria/pkg/protocol"
)

// TierOffline is the synthetic terminal tier of the degradation ladder.
const TierOffline Tier = "offline"

// LadderState reports the ladder's current standing (spec §4.4 "getState()").
type LadderState struct {
	CurrentTier    Tier
	AvailableTiers []Tier
	DegradedSince  *time.Time
	Message        string
}

// DegradationLadder tries an ordered list of tiers, each via the Router's
// fallback chain, terminating in a synthetic offline response rather than
// an error (spec §4.4 "Degradation ladder"). It never returns an error to
// its caller: spec §8 invariant "the Degradation Ladder always returns a
// response".
type DegradationLadder struct {
	router *Router
	order  []Tier

	mu            sync.Mutex
	currentTier   Tier
	degradedSince *time.Time
	offlineMsg    string
}

// NewDegradationLadder builds a ladder trying tiers in order, ending
// implicitly with TierOffline.
func NewDegradationLadder(router *Router, order []Tier, offlineMessage string) *DegradationLadder {
	if offlineMessage == "" {
		offlineMessage = "I'm currently running in offline mode — all configured model providers are unavailable."
	}
	return &DegradationLadder{router: router, order: order, currentTier: order[0], offlineMsg: offlineMessage}
}

// Execute tries each tier in order via the Router's fallback chain,
// returning the first success. If every tier fails it returns a synthetic
// offline response flagged Degraded=true rather than an error.
func (d *DegradationLadder) Execute(ctx context.Context, req ChatRequest) *LadderResponse {
	for _, tier := range d.order {
		res := d.router.FallbackChain(ctx, tier, req)
		if res.Success {
			d.setTier(tier, false)
			return &LadderResponse{ChatResponse: res.Response, Tier: tier, Degraded: false}
		}
	}

	d.setTier(TierOffline, true)
	return &LadderResponse{
		ChatResponse: &ChatResponse{
			Message:    protocol.AssistantText(d.offlineMsg),
			StopReason: StopEndTurn,
		},
		Tier:     TierOffline,
		Degraded: true,
	}
}

// LadderResponse wraps a ChatResponse with the degradation outcome.
type LadderResponse struct {
	*ChatResponse
	Tier     Tier
	Degraded bool
}

func (d *DegradationLadder) setTier(tier Tier, degraded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tier == d.currentTier {
		return
	}
	d.currentTier = tier
	if degraded {
		now := time.Now()
		d.degradedSince = &now
	} else {
		d.degradedSince = nil
	}
}

// GetState reports the ladder's current standing (spec §4.4).
func (d *DegradationLadder) GetState() LadderState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := LadderState{CurrentTier: d.currentTier, AvailableTiers: append([]Tier(nil), d.order...)}
	if d.degradedSince != nil {
		t := *d.degradedSince
		s.DegradedSince = &t
		s.Message = d.offlineMsg
	}
	return s
}

// IsDegraded reports whether the ladder currently sits on the offline tier.
func (d *DegradationLadder) IsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentTier == TierOffline
}
