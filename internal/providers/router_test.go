package providers

import (
	"context"
	"errors"
	"testing"
)

var errContextCanceled = errors.New("boom")

func TestRouter_SelectProvider_ReturnsFirstHealthyInTier(t *testing.T) {
	p1 := &fakeProvider{name: "a"}
	p2 := &fakeProvider{name: "b"}
	r := NewRouter(map[Tier][]Provider{"cloud_premium": {p1, p2}}, nil, nil)

	got := r.SelectProvider(context.Background(), "cloud_premium")
	if got == nil || got.Name() != "a" {
		t.Fatalf("SelectProvider = %v, want provider 'a' (no health tracker means all providers are healthy)", got)
	}
}

func TestRouter_SelectProvider_NilForUnknownTier(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{"local": {&fakeProvider{name: "x"}}}, nil, nil)
	if got := r.SelectProvider(context.Background(), "cloud_premium"); got != nil {
		t.Errorf("SelectProvider(unconfigured tier) = %v, want nil", got)
	}
}

func TestRouter_FallbackChain_FallsThroughOnError(t *testing.T) {
	failing := &fakeProvider{name: "failing", chatErr: errContextCanceled}
	working := &fakeProvider{name: "working"}
	r := NewRouter(map[Tier][]Provider{"cloud_premium": {failing, working}}, nil, nil)

	res := r.FallbackChain(context.Background(), "cloud_premium", ChatRequest{})
	if !res.Success {
		t.Fatalf("FallbackChain.Success = false, want true once it reaches the working provider; err=%v", res.Err)
	}
	if res.Provider.Name() != "working" {
		t.Errorf("FallbackChain.Provider = %q, want 'working'", res.Provider.Name())
	}
}

func TestRouter_FallbackChain_AllFailReturnsError(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{"local": {&fakeProvider{name: "a", chatErr: errContextCanceled}}}, nil, nil)

	res := r.FallbackChain(context.Background(), "local", ChatRequest{})
	if res.Success {
		t.Fatal("FallbackChain.Success = true, want false: every provider in the tier failed")
	}
	if res.Err == nil {
		t.Error("expected a non-nil Err when every provider in the chain fails")
	}
}

func TestRouter_FallbackChain_EmptyTierReturnsNoHealthyProvidersError(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{}, nil, nil)
	res := r.FallbackChain(context.Background(), "cloud_premium", ChatRequest{})
	if res.Success {
		t.Fatal("expected failure for a tier with no configured providers")
	}
	if res.Err == nil {
		t.Error("expected a non-nil no-healthy-providers Err for an empty tier")
	}
}
