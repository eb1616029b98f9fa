package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFindClusters_SplitsByCategoryUnlessCrossCategory(t *testing.T) {
	entries := []*Entry{
		{ID: "a", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "b", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "c", Category: CategoryEvent, MemoryType: TypeRegular, Prominence: 0.2},
	}
	relations := []*Relation{
		{SourceID: "a", TargetID: "b", Type: RelationExtends},
		{SourceID: "b", TargetID: "c", Type: RelationExtends},
	}
	cfg := FusionConfig{MinClusterSize: 2, MaxClusters: 5, MinProminence: 0.1, MaxProminence: 0.5}

	clusters := FindClusters(entries, relations, cfg)
	if len(clusters) != 1 {
		t.Fatalf("within-category: got %d clusters, want 1 (a-b only, c is a different category)", len(clusters))
	}
	if len(clusters[0].Entries) != 2 {
		t.Errorf("cluster size = %d, want 2", len(clusters[0].Entries))
	}
	if clusters[0].Category != CategoryFact {
		t.Errorf("cluster category = %v, want fact", clusters[0].Category)
	}

	cfg.CrossCategory = true
	crossClusters := FindClusters(entries, relations, cfg)
	if len(crossClusters) != 1 || len(crossClusters[0].Entries) != 3 {
		t.Fatalf("cross-category: got %+v, want one 3-entry cluster", crossClusters)
	}
	if crossClusters[0].Category != "" {
		t.Errorf("cross-category cluster.Category = %q, want empty", crossClusters[0].Category)
	}
}

func TestFindClusters_ExcludesDerivedAndSupersededAndOutOfBandProminence(t *testing.T) {
	entries := []*Entry{
		{ID: "a", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "b", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "derived", Category: CategoryFact, MemoryType: TypeDerived, Prominence: 0.2},
		{ID: "superseded", Category: CategoryFact, MemoryType: TypeSuperseded, Prominence: 0.2},
		{ID: "active", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.9},
	}
	relations := []*Relation{
		{SourceID: "a", TargetID: "b", Type: RelationExtends},
		{SourceID: "a", TargetID: "derived", Type: RelationDerives},
		{SourceID: "a", TargetID: "superseded", Type: RelationUpdates},
		{SourceID: "a", TargetID: "active", Type: RelationExtends},
	}
	cfg := FusionConfig{MinClusterSize: 2, MaxClusters: 5, MinProminence: 0.1, MaxProminence: 0.5}

	clusters := FindClusters(entries, relations, cfg)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Entries) != 2 {
		t.Errorf("cluster entries = %d, want 2 (a, b only)", len(clusters[0].Entries))
	}
}

func TestFindClusters_DropsBelowMinSizeAndCapsAtMaxClusters(t *testing.T) {
	entries := []*Entry{
		{ID: "solo", Category: CategoryFact, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "p1", Category: CategoryEvent, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "p2", Category: CategoryEvent, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "q1", Category: CategoryInsight, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "q2", Category: CategoryInsight, MemoryType: TypeRegular, Prominence: 0.2},
		{ID: "q3", Category: CategoryInsight, MemoryType: TypeRegular, Prominence: 0.2},
	}
	relations := []*Relation{
		{SourceID: "p1", TargetID: "p2", Type: RelationExtends},
		{SourceID: "q1", TargetID: "q2", Type: RelationExtends},
		{SourceID: "q2", TargetID: "q3", Type: RelationExtends},
	}
	cfg := FusionConfig{MinClusterSize: 2, MaxClusters: 1, MinProminence: 0.1, MaxProminence: 0.5}

	clusters := FindClusters(entries, relations, cfg)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1 (capped by MaxClusters, solo dropped by MinClusterSize)", len(clusters))
	}
	if len(clusters[0].Entries) != 3 {
		t.Errorf("kept cluster size = %d, want the larger 3-entry cluster", len(clusters[0].Entries))
	}
}

type stubSummarizer struct {
	response string
	err      error
}

func (s stubSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func TestFuseCluster_Accepted(t *testing.T) {
	now := time.Now()
	cl := Cluster{
		Category: CategoryFact,
		Entries: []*Entry{
			{ID: "a", Content: "likes tea", Category: CategoryFact, Importance: 3, Confidence: 0.9},
			{ID: "b", Content: "drinks green tea daily", Category: CategoryFact, Importance: 5, Confidence: 0.6},
		},
	}
	llm := stubSummarizer{response: `{"summary": "drinks tea", "importance": 5, "category": "fact"}`}
	ids := []string{"id1", "id2", "id3"}
	i := 0
	newID := func() string { v := ids[i]; i++; return v }

	derived, relations, sourceIDs, err := FuseCluster(context.Background(), llm, cl, "u1", newID, now)
	if err != nil {
		t.Fatalf("FuseCluster error: %v", err)
	}
	if derived == nil {
		t.Fatal("FuseCluster returned nil derived entry for an accepted cluster")
	}
	if derived.Importance != 5 {
		t.Errorf("derived.Importance = %d, want max(3,5)=5", derived.Importance)
	}
	if derived.Confidence != 0.6 {
		t.Errorf("derived.Confidence = %v, want min(0.9,0.6)=0.6", derived.Confidence)
	}
	if derived.MemoryType != TypeDerived {
		t.Errorf("derived.MemoryType = %v, want TypeDerived", derived.MemoryType)
	}
	if len(relations) != 2 {
		t.Errorf("len(relations) = %d, want 2 (one DERIVES edge per source)", len(relations))
	}
	if len(sourceIDs) != 2 {
		t.Errorf("len(sourceIDs) = %d, want 2", len(sourceIDs))
	}
}

func TestFuseCluster_RejectsOversizedSummary(t *testing.T) {
	cl := Cluster{Entries: []*Entry{{ID: "a", Content: "x", Importance: 1, Confidence: 1}}}
	llm := stubSummarizer{response: `{"summary": "a summary far longer than the one-byte source content provided", "importance": 1, "category": "fact"}`}

	derived, relations, sourceIDs, err := FuseCluster(context.Background(), llm, cl, "u1", func() string { return "x" }, time.Now())
	if err != nil {
		t.Fatalf("FuseCluster error: %v", err)
	}
	if derived != nil || relations != nil || sourceIDs != nil {
		t.Errorf("expected silent rejection of oversized summary, got derived=%v relations=%v sourceIDs=%v", derived, relations, sourceIDs)
	}
}

func TestFuseCluster_RejectsInvalidJSON(t *testing.T) {
	cl := Cluster{Entries: []*Entry{{ID: "a", Content: "some long enough content here", Importance: 1, Confidence: 1}}}
	llm := stubSummarizer{response: "not json at all"}

	derived, _, _, err := FuseCluster(context.Background(), llm, cl, "u1", func() string { return "x" }, time.Now())
	if err != nil {
		t.Fatalf("FuseCluster error: %v", err)
	}
	if derived != nil {
		t.Error("expected silent rejection of invalid JSON, got a derived entry")
	}
}

func TestFuseCluster_PropagatesLLMError(t *testing.T) {
	cl := Cluster{Entries: []*Entry{{ID: "a", Content: "x"}}}
	wantErr := errors.New("provider down")
	llm := stubSummarizer{err: wantErr}

	_, _, _, err := FuseCluster(context.Background(), llm, cl, "u1", func() string { return "x" }, time.Now())
	if err == nil {
		t.Fatal("expected an error when the Summarizer fails")
	}
}

func TestFuseCluster_EmptyClusterIsNoop(t *testing.T) {
	derived, relations, sourceIDs, err := FuseCluster(context.Background(), stubSummarizer{}, Cluster{}, "u1", func() string { return "x" }, time.Now())
	if err != nil || derived != nil || relations != nil || sourceIDs != nil {
		t.Errorf("FuseCluster(empty cluster) = (%v, %v, %v, %v), want all nil", derived, relations, sourceIDs, err)
	}
}
