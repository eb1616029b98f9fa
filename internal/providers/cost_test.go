package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCostStore struct {
	records []CostRecord
	failRecord bool
}

func (f *fakeCostStore) Record(ctx context.Context, r CostRecord) error {
	if f.failRecord {
		return errors.New("store unavailable")
	}
	f.records = append(f.records, r)
	return nil
}
func (f *fakeCostStore) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	return 0, nil
}
func (f *fakeCostStore) TopModels(ctx context.Context, since time.Time, limit int) ([]ModelSpend, error) {
	return nil, nil
}
func (f *fakeCostStore) TotalRequests(ctx context.Context, since time.Time) (int, error) {
	return len(f.records), nil
}

type fakeProvider struct {
	name    string
	model   string
	usage   Usage
	chatErr error
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) DefaultModel() string { return p.model }
func (p *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.chatErr != nil {
		return nil, p.chatErr
	}
	return &ChatResponse{StopReason: StopEndTurn, Usage: p.usage}, nil
}
func (p *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return p.Chat(ctx, req)
}

func TestCostTracker_RecordsOnSuccessfulChat(t *testing.T) {
	store := &fakeCostStore{}
	inner := &fakeProvider{name: "anthropic", model: "claude-x", usage: Usage{InputTokens: 1000, OutputTokens: 500}}
	tracker := NewCostTracker(inner, store, PricingTable{})

	_, err := tracker.Chat(context.Background(), ChatRequest{SessionID: "sess1", Model: "claude-x"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("got %d records, want 1", len(store.records))
	}
	rec := store.records[0]
	if rec.SessionID != "sess1" || rec.Model != "claude-x" {
		t.Errorf("record = %+v, want SessionID=sess1 Model=claude-x", rec)
	}
	wantCost := DefaultPricing.InputPerMTok*1000/1_000_000 + DefaultPricing.OutputPerMTok*500/1_000_000
	if rec.Cost != wantCost {
		t.Errorf("rec.Cost = %v, want %v (default pricing, no override)", rec.Cost, wantCost)
	}
}

func TestCostTracker_NoRecordOnProviderError(t *testing.T) {
	store := &fakeCostStore{}
	inner := &fakeProvider{chatErr: errors.New("provider down")}
	tracker := NewCostTracker(inner, store, PricingTable{})

	_, err := tracker.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected the provider's error to propagate")
	}
	if len(store.records) != 0 {
		t.Errorf("got %d records, want 0: a failed call must not be billed", len(store.records))
	}
}

func TestCostTracker_StorageFailureDoesNotFailTheChatCall(t *testing.T) {
	store := &fakeCostStore{failRecord: true}
	inner := &fakeProvider{name: "anthropic", model: "claude-x"}
	tracker := NewCostTracker(inner, store, PricingTable{})

	resp, err := tracker.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned an error from a ledger write failure: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a non-nil response despite the ledger write failing")
	}
}

func TestCostTracker_FallsBackToProviderDefaultModel(t *testing.T) {
	store := &fakeCostStore{}
	inner := &fakeProvider{name: "anthropic", model: "claude-default", usage: Usage{InputTokens: 10, OutputTokens: 10}}
	tracker := NewCostTracker(inner, store, PricingTable{})

	_, err := tracker.Chat(context.Background(), ChatRequest{}) // Model left empty
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if store.records[0].Model != "claude-default" {
		t.Errorf("record.Model = %q, want provider's DefaultModel when the request omits one", store.records[0].Model)
	}
}

func TestPricingTable_EstimateCost_UsesOverrideWhenPresent(t *testing.T) {
	pt := PricingTable{"cheap-model": ModelPricing{InputPerMTok: 1, OutputPerMTok: 2}}
	got := pt.EstimateCost("cheap-model", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	if got != 3 {
		t.Errorf("EstimateCost = %v, want 3 (1 + 2 per million tokens)", got)
	}
}

func TestPricingTable_EstimateCost_FallsBackToDefaultForUnknownModel(t *testing.T) {
	pt := PricingTable{}
	got := pt.EstimateCost("unknown-model", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	want := DefaultPricing.InputPerMTok + DefaultPricing.OutputPerMTok
	if got != want {
		t.Errorf("EstimateCost = %v, want %v (DefaultPricing)", got, want)
	}
}
