package memory

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// ArchiveFloor is the ARCHIVED threshold from spec §4.2's band table. The
// light tick uses it as the "prominence above the archive floor" cutoff for
// pulling in older, not-recently-touched entries.
const ArchiveFloor = 0.1

// lightTickWindow is how recently an entry must have been updated or
// accessed to qualify for a light tick on recency alone (spec §4.2).
const lightTickWindow = 5 * time.Minute

// EligibleForLightTick reports whether e belongs in a light-tick decay scan
// as of now (spec §4.2 Light tick): updated or accessed within the last 5
// minutes, or older than a day with prominence still above the archive
// floor. Static and superseded entries are excluded by the caller before
// this check runs.
func EligibleForLightTick(e *Entry, now time.Time) bool {
	if now.Sub(e.UpdatedAt) <= lightTickWindow {
		return true
	}
	if e.LastAccessedAt != nil && now.Sub(*e.LastAccessedAt) <= lightTickWindow {
		return true
	}
	return now.Sub(e.DocumentTimestamp) > day && e.Prominence > ArchiveFloor
}

// typeDecayRate and categoryDecayRate are the per-type/per-category decay
// base tables from spec §4.2: decayRate = max(typeRate, categoryRate).
// Values chosen so static-adjacent types (dynamic_profile) decay slowly and
// ephemeral event memories decay fastest, matching the prose's ordering.
var typeDecayRate = map[EntryType]float64{
	TypeStaticProfile:  1.0, // never decays (handled by the early-return below too)
	TypeDynamicProfile: 0.997,
	TypeRegular:        0.985,
	TypeDerived:        0.99,
	TypeSuperseded:     0.90,
}

var categoryDecayRate = map[Category]float64{
	CategoryPreference:   0.993,
	CategoryFact:         0.99,
	CategoryEvent:        0.95,
	CategoryRelationship: 0.995,
	CategoryInsight:      0.992,
}

const (
	accessBoostK   = 0.1
	accessBoostMax = 10
	maxAccessBoost = 1 + accessBoostK*accessBoostMax // normalizer
	maxRecencyBoost = 1.3                            // 1 + 0.3*exp(0) normalizer
)

// DecayWeights are the fixed combination weights of the decay formula.
type DecayWeights struct {
	Age, Access, Recency, Importance float64
}

// DefaultDecayWeights matches spec §4.2: 0.30/0.25/0.25/0.20.
var DefaultDecayWeights = DecayWeights{Age: 0.30, Access: 0.25, Recency: 0.25, Importance: 0.20}

// Prominence computes the decay formula of spec §4.2 for entry e as of now,
// given the combination weights w. It is pure and non-suspending (spec §5).
//
// Reapplying Prominence to an unchanged entry at the same now yields the
// same result (spec §8 round-trip property): the function reads only e and
// now, never mutates e, and performs no I/O.
func Prominence(e *Entry, w DecayWeights, now time.Time) float64 {
	if e.MemoryType == TypeStaticProfile {
		return 1.0
	}

	ageDays := now.Sub(e.DocumentTimestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	// Grace clause: memories younger than one day with zero accesses are
	// fully prominent regardless of type/category.
	if ageDays < 1 && e.AccessCount == 0 {
		return 1.0
	}

	decayRate := typeDecayRate[e.MemoryType]
	if cr := categoryDecayRate[e.Category]; cr > decayRate {
		decayRate = cr
	}
	if decayRate <= 0 {
		decayRate = 0.99
	}
	ageDecay := math.Pow(decayRate, ageDays)

	var accessBoost float64
	if e.AccessCount == 0 {
		accessBoost = 0.5
	} else {
		n := e.AccessCount
		if n > accessBoostMax {
			n = accessBoostMax
		}
		accessBoost = 1 + accessBoostK*float64(n)
	}
	normAccessBoost := accessBoost / maxAccessBoost

	var recencyBoost float64 = 1.0
	if e.LastAccessedAt != nil {
		lastAccessAgeDays := now.Sub(*e.LastAccessedAt).Hours() / 24
		if lastAccessAgeDays < 0 {
			lastAccessAgeDays = 0
		}
		recencyBoost = 1 + 0.3*math.Exp(-lastAccessAgeDays/7)
	}
	normRecencyBoost := recencyBoost / maxRecencyBoost

	importanceWeight := float64(e.Importance) / 10

	p := w.Age*ageDecay + w.Access*normAccessBoost + w.Recency*normRecencyBoost + w.Importance*importanceWeight

	// Sticky-identity clause: high-importance facts/relationships never
	// fall below 0.2, so durable identity claims survive long dormancy.
	if e.Importance >= 8 && (e.Category == CategoryFact || e.Category == CategoryRelationship) {
		if p < 0.2 {
			p = 0.2
		}
	}

	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// ProminenceDelta reports whether newProminence differs from old by more
// than the gardener's write-back threshold (spec §4.2 light tick: "write
// back only when it changes by more than 0.01").
func ProminenceDelta(old, new float64) bool {
	return math.Abs(new-old) > 0.01
}

// BandOf classifies a prominence value per the ACTIVE/DORMANT/ARCHIVED
// thresholds (spec §4.2 "Thresholds").
func BandOf(prominence, active, dormant float64) Band {
	switch {
	case prominence >= active:
		return BandActive
	case prominence >= dormant:
		return BandDormant
	default:
		return BandArchived
	}
}
