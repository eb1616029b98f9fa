package main

import (
	"reflect"
	"testing"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/providers"
)

func TestTierOrder_PutsKnownPrecedenceFirst(t *testing.T) {
	tiers := map[string][]string{
		"local":         {"ollama"},
		"cloud_budget":  {"openai"},
		"cloud_premium": {"anthropic"},
	}
	got := tierOrder(tiers)
	want := []providers.Tier{"cloud_premium", "cloud_budget", "local"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tierOrder() = %v, want %v", got, want)
	}
}

func TestTierOrder_AppendsUnknownTiersAfterKnownOnes(t *testing.T) {
	tiers := map[string][]string{
		"cloud_premium": {"anthropic"},
		"on_prem":       {"custom"},
	}
	got := tierOrder(tiers)
	if len(got) != 2 {
		t.Fatalf("got %d tiers, want 2", len(got))
	}
	if got[0] != "cloud_premium" {
		t.Errorf("got[0] = %v, want cloud_premium first", got[0])
	}
	if got[1] != "on_prem" {
		t.Errorf("got[1] = %v, want the unknown tier appended after", got[1])
	}
}

func TestTierOrder_SkipsPrecedenceEntriesNotConfigured(t *testing.T) {
	tiers := map[string][]string{"local": {"ollama"}}
	got := tierOrder(tiers)
	want := []providers.Tier{"local"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tierOrder() = %v, want %v", got, want)
	}
}

func TestToMemoryFusionConfig_CarriesNumericFieldsAcross(t *testing.T) {
	cfg := config.FusionConfig{
		MinClusterSize:     3,
		MaxClusters:        5,
		MinProminence:      0.1,
		MaxProminence:      0.5,
		CrossCategoryDeep:  false,
		CrossCategorySleep: true,
	}
	got := toMemoryFusionConfig(cfg)
	if got.MinClusterSize != 3 || got.MaxClusters != 5 {
		t.Errorf("got = %+v, want cluster bounds carried over from cfg", got)
	}
	if got.MinProminence != 0.1 || got.MaxProminence != 0.5 {
		t.Errorf("got = %+v, want prominence band carried over from cfg", got)
	}
}
