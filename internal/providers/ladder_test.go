package providers

import (
	"context"
	"testing"
)

func TestDegradationLadder_SucceedsOnFirstHealthyTier(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{
		"cloud_premium": {&fakeProvider{name: "premium"}},
		"local":         {&fakeProvider{name: "local"}},
	}, nil, nil)
	ladder := NewDegradationLadder(r, []Tier{"cloud_premium", "local"}, "")

	res := ladder.Execute(context.Background(), ChatRequest{})
	if res.Degraded {
		t.Error("Degraded = true, want false: the premium tier succeeded")
	}
	if res.Tier != "cloud_premium" {
		t.Errorf("Tier = %v, want cloud_premium", res.Tier)
	}
	if ladder.IsDegraded() {
		t.Error("IsDegraded() = true after a successful top-tier call")
	}
}

func TestDegradationLadder_FallsThroughToLowerTier(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{
		"cloud_premium": {&fakeProvider{name: "premium", chatErr: errContextCanceled}},
		"local":         {&fakeProvider{name: "local"}},
	}, nil, nil)
	ladder := NewDegradationLadder(r, []Tier{"cloud_premium", "local"}, "")

	res := ladder.Execute(context.Background(), ChatRequest{})
	if res.Tier != "local" {
		t.Errorf("Tier = %v, want local (premium tier exhausted)", res.Tier)
	}
	if res.Degraded {
		t.Error("Degraded = true, want false: a lower tier still succeeded")
	}
}

func TestDegradationLadder_NeverErrorsEvenWhenEveryTierFails(t *testing.T) {
	r := NewRouter(map[Tier][]Provider{
		"cloud_premium": {&fakeProvider{name: "premium", chatErr: errContextCanceled}},
		"local":         {&fakeProvider{name: "local", chatErr: errContextCanceled}},
	}, nil, nil)
	ladder := NewDegradationLadder(r, []Tier{"cloud_premium", "local"}, "")

	res := ladder.Execute(context.Background(), ChatRequest{})
	if !res.Degraded {
		t.Fatal("Degraded = false, want true: every tier failed")
	}
	if res.Tier != TierOffline {
		t.Errorf("Tier = %v, want TierOffline", res.Tier)
	}
	if res.ChatResponse == nil {
		t.Fatal("expected a synthetic offline ChatResponse, got nil")
	}
	if !ladder.IsDegraded() {
		t.Error("IsDegraded() = false after falling all the way to offline")
	}

	state := ladder.GetState()
	if state.DegradedSince == nil {
		t.Error("GetState().DegradedSince is nil after a degraded transition")
	}
	if state.CurrentTier != TierOffline {
		t.Errorf("GetState().CurrentTier = %v, want offline", state.CurrentTier)
	}
}

func TestDegradationLadder_RecoversFromDegradedStateOnSuccess(t *testing.T) {
	premium := &fakeProvider{name: "premium", chatErr: errContextCanceled}
	r := NewRouter(map[Tier][]Provider{"cloud_premium": {premium}}, nil, nil)
	ladder := NewDegradationLadder(r, []Tier{"cloud_premium"}, "")

	ladder.Execute(context.Background(), ChatRequest{})
	if !ladder.IsDegraded() {
		t.Fatal("setup: expected the ladder to be degraded after an all-tier failure")
	}

	premium.chatErr = nil
	res := ladder.Execute(context.Background(), ChatRequest{})
	if res.Degraded {
		t.Error("Degraded = true after a subsequent successful call, want false")
	}
	if ladder.IsDegraded() {
		t.Error("IsDegraded() = true after recovery, want false")
	}
	if ladder.GetState().DegradedSince != nil {
		t.Error("GetState().DegradedSince should clear on recovery")
	}
}
