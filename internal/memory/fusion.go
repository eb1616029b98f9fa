package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Summarizer is the narrow contract fusion needs from the Provider Router:
// one structured completion call. Kept minimal (rather than importing
// internal/providers.Provider wholesale) so the Fusion Engine does not pull
// in the router's tier/health/budget machinery — it only ever needs a
// single best-effort completion (spec §4.2 "Fuse one cluster").
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// FusionConfig bounds cluster discovery (spec §4.2 "Find clusters").
type FusionConfig struct {
	MinClusterSize int
	MaxClusters    int
	MinProminence  float64
	MaxProminence  float64
	CrossCategory  bool
}

// DefaultFusionConfig matches spec §4.2 defaults.
var DefaultFusionConfig = FusionConfig{MinClusterSize: 3, MaxClusters: 5, MinProminence: 0.1, MaxProminence: 0.5}

// Cluster is a connected component of dormant-band memories, optionally
// split by category.
type Cluster struct {
	Category Category // empty when CrossCategory produced a mixed cluster
	Entries  []*Entry
}

// FindClusters builds connected components over existing relations among
// entries within [cfg.MinProminence, cfg.MaxProminence), excluding derived
// and superseded entries, splitting by category unless cfg.CrossCategory,
// dropping components smaller than cfg.MinClusterSize, and keeping the
// cfg.MaxClusters largest (spec §4.2 "Find clusters").
func FindClusters(entries []*Entry, relations []*Relation, cfg FusionConfig) []Cluster {
	byID := make(map[string]*Entry, len(entries))
	eligible := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.MemoryType == TypeDerived || e.MemoryType == TypeSuperseded {
			continue
		}
		if e.Prominence < cfg.MinProminence || e.Prominence >= cfg.MaxProminence {
			continue
		}
		byID[e.ID] = e
		eligible[e.ID] = true
	}

	adj := make(map[string][]string)
	addEdge := func(a, b string) {
		if !eligible[a] || !eligible[b] {
			return
		}
		if !cfg.CrossCategory && byID[a].Category != byID[b].Category {
			return
		}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, r := range relations {
		addEdge(r.SourceID, r.TargetID)
	}

	visited := make(map[string]bool, len(eligible))
	var clusters []Cluster
	// Deterministic iteration order for reproducible clustering.
	ids := make([]string, 0, len(eligible))
	for id := range eligible {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, start := range ids {
		if visited[start] {
			continue
		}
		var comp []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, n := range adj[cur] {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		if len(comp) < cfg.MinClusterSize {
			continue
		}
		sort.Strings(comp)
		cl := Cluster{}
		for _, id := range comp {
			cl.Entries = append(cl.Entries, byID[id])
		}
		if !cfg.CrossCategory {
			cl.Category = byID[comp[0]].Category
		}
		clusters = append(clusters, cl)
	}

	sort.SliceStable(clusters, func(i, j int) bool { return len(clusters[i].Entries) > len(clusters[j].Entries) })
	if cfg.MaxClusters > 0 && len(clusters) > cfg.MaxClusters {
		clusters = clusters[:cfg.MaxClusters]
	}
	return clusters
}

// fusionResult is the JSON shape requested from the LLM.
type fusionResult struct {
	Summary    string   `json:"summary"`
	Importance int      `json:"importance"`
	Category   Category `json:"category"`
}

// FuseCluster sends cluster to the Summarizer and, on an accepted result,
// returns a derived Entry plus the DERIVES relations and the ids of sources
// to mark superseded (spec §4.2 "Fuse one cluster", §8 invariant: derived
// importance = max of sources, confidence = min of sources).
//
// Per spec §7, invalid JSON or an oversized summary rejects the cluster
// silently (returns nil, nil) rather than erroring the whole fusion pass.
func FuseCluster(ctx context.Context, llm Summarizer, cl Cluster, userID string, newID func() string, now time.Time) (*Entry, []*Relation, []string, error) {
	if len(cl.Entries) == 0 {
		return nil, nil, nil, nil
	}

	prompt := buildFusionPrompt(cl)
	raw, err := llm.Summarize(ctx, prompt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fusion llm call: %w", err)
	}

	var res fusionResult
	if err := json.Unmarshal(extractJSON(raw), &res); err != nil {
		slog.Warn("fusion: invalid json from llm, rejecting cluster", "error", err)
		return nil, nil, nil, nil
	}

	sourceLen := 0
	maxImportance := 0
	minConfidence := 1.0
	var sourceIDs []string
	for _, e := range cl.Entries {
		sourceLen += len(e.Content)
		if e.Importance > maxImportance {
			maxImportance = e.Importance
		}
		if e.Confidence < minConfidence {
			minConfidence = e.Confidence
		}
		sourceIDs = append(sourceIDs, e.ID)
	}
	if len(res.Summary) > sourceLen {
		slog.Warn("fusion: summary longer than sources, rejecting cluster", "summaryLen", len(res.Summary), "sourceLen", sourceLen)
		return nil, nil, nil, nil
	}
	if strings.TrimSpace(res.Summary) == "" {
		return nil, nil, nil, nil
	}

	category := res.Category
	if category == "" {
		category = cl.Category
	}

	derivedID := newID()
	derived := &Entry{
		ID:                derivedID,
		UserID:            userID,
		Content:           res.Summary,
		Category:          category,
		MemoryType:        TypeDerived,
		Importance:        maxImportance,
		Confidence:        minConfidence,
		IsLatest:          true,
		Prominence:        0.7, // fresh derived memories start mid-active, then decay normally
		DocumentTimestamp: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var relations []*Relation
	for _, id := range sourceIDs {
		relations = append(relations, &Relation{
			ID:        newID(),
			SourceID:  derivedID,
			TargetID:  id,
			Type:      RelationDerives,
			Confidence: minConfidence,
			CreatedAt: now,
		})
	}

	return derived, relations, sourceIDs, nil
}

func buildFusionPrompt(cl Cluster) string {
	var b strings.Builder
	b.WriteString("You are consolidating a cluster of related, dormant memories into one summary.\n")
	b.WriteString("Respond with ONLY a JSON object: {\"summary\": string, \"importance\": 0-10, \"category\": one of preference|fact|event|relationship|insight}.\n")
	b.WriteString("The summary must not be longer than the combined source content.\n\nMemories:\n")
	for _, e := range cl.Entries {
		fmt.Fprintf(&b, "- (%s, importance=%d) %s\n", e.Category, e.Importance, e.Content)
	}
	return b.String()
}

// extractJSON trims leading/trailing prose the LLM may add around the JSON
// object (models are inconsistent about "only JSON" instructions).
func extractJSON(raw string) []byte {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
