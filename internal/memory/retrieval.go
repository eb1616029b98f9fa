package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// RetrievalConfig weights the hybrid score (spec §4.1 step 3).
type RetrievalConfig struct {
	VectorWeight float64
	TextWeight   float64
	MinScore     float64
	MaxResults   int
	RecencyBoost bool
}

// DefaultRetrievalConfig matches the teacher's agents.defaults.memory block.
var DefaultRetrievalConfig = RetrievalConfig{VectorWeight: 0.7, TextWeight: 0.3, MinScore: 0.35, MaxResults: 6, RecencyBoost: true}

// Scored pairs a retrieved entry with its final hybrid score.
type Scored struct {
	Entry *Entry
	Score float64
}

// VectorIndex is the narrow contract retrieval needs from an embedded
// vector index (backed by github.com/philippgille/chromem-go in
// internal/memory/vectorindex.go) — cosine similarity search over a
// per-user collection of memory embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, userID, entryID, content string, embedding []float32, metadata map[string]string) error
	Delete(ctx context.Context, userID, entryID string) error
	// Query returns entryID -> cosine similarity in [0,1], best first.
	Query(ctx context.Context, userID string, embedding []float32, n int) (map[string]float64, error)
}

// Retrieve runs the hybrid BM25+cosine retrieval described in spec §4.1
// step 3: normalize both scores, combine with cfg's weights, optionally
// boost by recency, re-rank by spreading activation, and cap at top-k.
func Retrieve(ctx context.Context, candidates []*Entry, relations []*Relation, query string, queryEmbedding []float32, vectorScores map[string]float64, cfg RetrievalConfig, actCfg ActivationConfig, now time.Time) []Scored {
	if len(candidates) == 0 {
		return nil
	}

	bm25 := bm25Scores(candidates, query)
	maxBM25 := 0.0
	for _, s := range bm25 {
		if s > maxBM25 {
			maxBM25 = s
		}
	}

	var seedIDs []string
	rawScores := make(map[string]float64, len(candidates))
	for _, e := range candidates {
		textScore := 0.0
		if maxBM25 > 0 {
			textScore = bm25[e.ID] / maxBM25
		}
		vecScore := vectorScores[e.ID] // already in [0,1] cosine similarity

		combined := cfg.VectorWeight*vecScore + cfg.TextWeight*textScore
		if cfg.RecencyBoost {
			combined *= recencyMultiplier(e, now)
		}
		rawScores[e.ID] = combined
		if combined >= cfg.MinScore {
			seedIDs = append(seedIDs, e.ID)
		}
	}
	if len(seedIDs) == 0 {
		// Fall back to the single best candidate so a query never returns
		// nothing purely because every score sits under the floor.
		best := candidates[0].ID
		for _, e := range candidates {
			if rawScores[e.ID] > rawScores[best] {
				best = e.ID
			}
		}
		seedIDs = []string{best}
	}

	activation := SpreadActivation(seedIDs, relations, actCfg)

	byID := make(map[string]*Entry, len(candidates))
	for _, e := range candidates {
		byID[e.ID] = e
	}

	out := make([]Scored, 0, len(candidates))
	for id, score := range rawScores {
		act := activation[id]
		final := score * (1 + act*byID[id].Prominence)
		out = append(out, Scored{Entry: byID[id], Score: final})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if cfg.MaxResults > 0 && len(out) > cfg.MaxResults {
		out = out[:cfg.MaxResults]
	}
	return out
}

// recencyMultiplier softly boosts entries whose document timestamp is
// recent, matching the "optionally boosted by recency" clause of spec
// §4.1 step 3.
func recencyMultiplier(e *Entry, now time.Time) float64 {
	ageDays := now.Sub(e.DocumentTimestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 + 0.2*math.Exp(-ageDays/14)
}

// bm25Scores computes a simplified Okapi BM25 term-overlap score per entry.
// No BM25 library exists in the retrieval pack for this concern (the pack's
// vector libraries handle embeddings only), so this is hand-computed,
// matching the ledger's standard-library justification.
func bm25Scores(entries []*Entry, query string) map[string]float64 {
	const k1, b = 1.2, 0.75

	qTerms := tokenize(query)
	if len(qTerms) == 0 {
		return map[string]float64{}
	}

	docTerms := make(map[string][]string, len(entries))
	totalLen := 0.0
	df := make(map[string]int)
	for _, e := range entries {
		terms := tokenize(e.Content)
		docTerms[e.ID] = terms
		totalLen += float64(len(terms))
		seen := make(map[string]bool)
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	avgLen := totalLen / float64(len(entries))
	if avgLen == 0 {
		avgLen = 1
	}
	n := float64(len(entries))

	scores := make(map[string]float64, len(entries))
	for _, e := range entries {
		terms := docTerms[e.ID]
		tf := make(map[string]int)
		for _, t := range terms {
			tf[t]++
		}
		dl := float64(len(terms))
		var score float64
		for _, qt := range qTerms {
			f := float64(tf[qt])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[qt])+0.5)/(float64(df[qt])+0.5))
			score += idf * (f * (k1 + 1)) / (f + k1*(1-b+b*dl/avgLen))
		}
		scores[e.ID] = score
	}
	return scores
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}
