package file

import (
	"fmt"
	"testing"
	"time"

	"github.com/arialabs/aria/internal/memory"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return s
}

func putEntry(s *MemoryStore, e *memory.Entry) {
	u := s.user(e.UserID)
	u.Entries[e.ID] = e
}

func TestListForDecay_LightTickFiltersToEligibilityWindow(t *testing.T) {
	s := newTestMemoryStore(t)
	now := time.Now()

	recentlyUpdated := &memory.Entry{
		ID: "recent", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-1 * time.Minute),
		Prominence: 0.05,
	}
	staleBelowFloor := &memory.Entry{
		ID: "stale-below-floor", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-10 * 24 * time.Hour),
		Prominence: 0.05,
	}
	staleAboveFloor := &memory.Entry{
		ID: "stale-above-floor", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-10 * 24 * time.Hour),
		Prominence: 0.4,
	}
	tooYoungForArchiveRule := &memory.Entry{
		ID: "young-untouched", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-12 * time.Hour), UpdatedAt: now.Add(-12 * time.Hour),
		Prominence: 0.4,
	}

	for _, e := range []*memory.Entry{recentlyUpdated, staleBelowFloor, staleAboveFloor, tooYoungForArchiveRule} {
		putEntry(s, e)
	}

	got, err := s.listForDecayAt("u1", false, 0, now)
	if err != nil {
		t.Fatalf("listForDecayAt: %v", err)
	}

	ids := map[string]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if !ids["recent"] {
		t.Error("expected recently-updated entry to be eligible")
	}
	if !ids["stale-above-floor"] {
		t.Error("expected stale entry above the archive floor to be eligible")
	}
	if ids["stale-below-floor"] {
		t.Error("did not expect stale entry at/below the archive floor to be eligible")
	}
	if ids["young-untouched"] {
		t.Error("did not expect a <1-day-old, not-recently-touched entry to be eligible")
	}
}

func TestListForDecay_NoEligibleEntriesReturnsNone(t *testing.T) {
	s := newTestMemoryStore(t)
	now := time.Now()

	putEntry(s, &memory.Entry{
		ID: "dormant", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-30 * 24 * time.Hour), UpdatedAt: now.Add(-30 * 24 * time.Hour),
		Prominence: 0.02,
	})

	got, err := s.listForDecayAt("u1", false, 500, now)
	if err != nil {
		t.Fatalf("listForDecayAt: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0 when nothing is eligible", len(got))
	}
}

func TestListForDecay_OrdersByProminenceDescending(t *testing.T) {
	s := newTestMemoryStore(t)
	now := time.Now()

	for i, p := range []float64{0.2, 0.9, 0.5} {
		putEntry(s, &memory.Entry{
			ID: fmt.Sprintf("e%d", i), UserID: "u1", MemoryType: memory.TypeRegular,
			DocumentTimestamp: now, UpdatedAt: now, Prominence: p,
		})
	}

	got, err := s.listForDecayAt("u1", false, 0, now)
	if err != nil {
		t.Fatalf("listForDecayAt: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Prominence < got[i].Prominence {
			t.Errorf("entries not ordered by descending prominence: %v", got)
			break
		}
	}
}

func TestListForDecay_FullScanIgnoresEligibilityWindowButExcludesStatic(t *testing.T) {
	s := newTestMemoryStore(t)
	now := time.Now()

	putEntry(s, &memory.Entry{
		ID: "dormant", UserID: "u1", MemoryType: memory.TypeRegular,
		DocumentTimestamp: now.Add(-30 * 24 * time.Hour), UpdatedAt: now.Add(-30 * 24 * time.Hour),
		Prominence: 0.02,
	})
	putEntry(s, &memory.Entry{
		ID: "profile", UserID: "u1", MemoryType: memory.TypeStaticProfile,
		DocumentTimestamp: now, UpdatedAt: now, Prominence: 1.0,
	})

	got, err := s.listForDecayAt("u1", true, 0, now)
	if err != nil {
		t.Fatalf("listForDecayAt: %v", err)
	}
	if len(got) != 1 || got[0].ID != "dormant" {
		t.Errorf("full scan should include the dormant entry and exclude static profile, got %v", got)
	}
}
