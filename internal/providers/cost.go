package providers

import (
	"context"
	"sync"
	"time"
)

// CostRecord is one provider-call ledger row (spec §4.4 "Cost tracking").
type CostRecord struct {
	SessionID    string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	At           time.Time
}

// CostStore persists the ledger; implementations live under internal/store.
type CostStore interface {
	Record(ctx context.Context, r CostRecord) error
	SpentSince(ctx context.Context, since time.Time) (float64, error)
	TopModels(ctx context.Context, since time.Time, limit int) ([]ModelSpend, error)
	TotalRequests(ctx context.Context, since time.Time) (int, error)
}

// ModelSpend is one row of the top-models-by-cost breakdown.
type ModelSpend struct {
	Model string
	Cost  float64
}

// ModelPricing maps a model name to its per-million-token input/output
// price, used to estimate cost before a call and to record actual cost
// after one. Unknown models fall back to DefaultPricing.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing is used when a model has no explicit entry.
var DefaultPricing = ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

// PricingTable holds per-model pricing, override-able via config.
type PricingTable map[string]ModelPricing

// EstimateCost computes the dollar cost of usage against model's pricing.
func (pt PricingTable) EstimateCost(model string, usage Usage) float64 {
	p, ok := pt[model]
	if !ok {
		p = DefaultPricing
	}
	return float64(usage.InputTokens)/1_000_000*p.InputPerMTok + float64(usage.OutputTokens)/1_000_000*p.OutputPerMTok
}

// CostTracker wraps a Provider, recording every call into a CostStore
// (spec §4.4 "Every provider call is wrapped to record ..."). Grounded on
// the teacher's pattern of decorating a Provider with cross-cutting
// concerns (retry/timeout live in each adapter; cost/budget live in these
// wrapper types) rather than baking accounting into each adapter.
type CostTracker struct {
	inner   Provider
	store   CostStore
	pricing PricingTable
	mu      sync.Mutex
}

// NewCostTracker wraps inner with cost recording.
func NewCostTracker(inner Provider, store CostStore, pricing PricingTable) *CostTracker {
	return &CostTracker{inner: inner, store: store, pricing: pricing}
}

func (c *CostTracker) Name() string         { return c.inner.Name() }
func (c *CostTracker) DefaultModel() string { return c.inner.DefaultModel() }

func (c *CostTracker) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := c.inner.Chat(ctx, req)
	if err == nil {
		c.record(ctx, req, resp.Usage)
	}
	return resp, err
}

func (c *CostTracker) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := c.inner.ChatStream(ctx, req, onChunk)
	if err == nil {
		c.record(ctx, req, resp.Usage)
	}
	return resp, err
}

func (c *CostTracker) record(ctx context.Context, req ChatRequest, usage Usage) {
	model := req.Model
	if model == "" {
		model = c.inner.DefaultModel()
	}
	rec := CostRecord{
		SessionID:    req.SessionID,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         c.pricing.EstimateCost(model, usage),
		At:           time.Now(),
	}
	// Best-effort: a storage failure here must never fail the chat call
	// that already succeeded (spec §7 "Storage error ... non-terminal").
	_ = c.store.Record(ctx, rec)
}
