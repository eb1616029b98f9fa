// Package memory implements the Memory Store's data model and the Decay,
// Fusion, hybrid-retrieval, and spreading-activation engines that operate
// over it (spec §3, §4.2). Grounded on the teacher's session/store
// interfaces (goclaw internal/store/session_store.go, stores.go) for shape
// conventions, and on manifold's internal/agent/memory/evolving.go for the
// decay/prune arithmetic this package generalizes into spec-exact formulas.
package memory

import "time"

// Category classifies a memory entry's subject matter.
type Category string

const (
	CategoryPreference   Category = "preference"
	CategoryFact         Category = "fact"
	CategoryEvent        Category = "event"
	CategoryRelationship Category = "relationship"
	CategoryInsight      Category = "insight"
)

// EntryType distinguishes how a memory entry came to exist and how it
// decays.
type EntryType string

const (
	TypeStaticProfile  EntryType = "static_profile"
	TypeDynamicProfile EntryType = "dynamic_profile"
	TypeRegular        EntryType = "regular"
	TypeDerived        EntryType = "derived"
	TypeSuperseded     EntryType = "superseded"
)

// Band is the prominence classification used by gating logic throughout the
// gardener (spec Glossary "Dormant band").
type Band string

const (
	BandActive   Band = "active"
	BandDormant  Band = "dormant"
	BandArchived Band = "archived"
)

// Entry is a Memory Entry (spec §3). Invariants enforced by the Store, not
// by this struct: at most one IsLatest=true per (UserID, Subject);
// static_profile entries fixed at Prominence=1.0; Superseded implies
// IsLatest=false.
type Entry struct {
	ID         string
	UserID     string
	Content    string
	Category   Category
	MemoryType EntryType
	Importance int // 0-10
	Confidence float64 // [0,1]
	IsLatest   bool

	// Subject groups entries that describe "the same logical fact" for the
	// at-most-one-IsLatest invariant (e.g. "home_address"). Empty means the
	// entry is not subject to supersession.
	Subject string

	DocumentTimestamp time.Time
	EventTimestamp    *time.Time

	Prominence     float64
	LastAccessedAt *time.Time
	AccessCount    int

	SourceChunkID string
	Embedding     []float32
	Metadata      map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Band classifies the entry's current prominence per spec thresholds.
func (e *Entry) Band(active, dormant float64) Band {
	switch {
	case e.Prominence >= active:
		return BandActive
	case e.Prominence >= dormant:
		return BandDormant
	default:
		return BandArchived
	}
}

// RelationType is the directed edge kind between two memories.
type RelationType string

const (
	RelationUpdates RelationType = "UPDATES"
	RelationExtends RelationType = "EXTENDS"
	RelationDerives RelationType = "DERIVES"
)

// Relation is a Memory Relation (spec §3): created on ingest classification
// or fusion, never mutated, deleted only when an endpoint is pruned.
type Relation struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       RelationType
	Confidence float64
	CreatedAt  time.Time
}

// ScheduledItemStatus is the lifecycle state of a Scheduled Item.
type ScheduledItemStatus string

const (
	ScheduledPending   ScheduledItemStatus = "pending"
	ScheduledFired     ScheduledItemStatus = "fired"
	ScheduledExpired   ScheduledItemStatus = "expired"
	ScheduledCancelled ScheduledItemStatus = "cancelled"
)

// ScheduledItemSource names who created the item.
type ScheduledItemSource string

const (
	SourceAgent ScheduledItemSource = "agent"
	SourceUser  ScheduledItemSource = "user"
)

// ScheduledItem is a Scheduled Item (spec §3).
type ScheduledItem struct {
	ID        string
	UserID    string
	Source    ScheduledItemSource
	Type      string // "follow_up", "reminder", ...
	Message   string
	Context   map[string]any
	TriggerAt time.Time
	Status    ScheduledItemStatus
	FiredAt   *time.Time
}

// Proactiveness is the per-user dial that gates how aggressively the
// gardener creates new scheduled items.
type Proactiveness string

const (
	ProactivenessConservative Proactiveness = "conservative"
	ProactivenessModerate     Proactiveness = "moderate"
	ProactivenessEager        Proactiveness = "eager"
)

// BehavioralPattern is the per-user smoothed affect and cadence state
// (spec §3 "Behavioral Patterns").
type BehavioralPattern struct {
	UserID        string
	Valence       float64
	Arousal       float64
	EmotionLabel  string
	GoalSignal    string
	Proactiveness Proactiveness
	MsgFreqPerDay float64

	// TrustScore is a smoothed [0,1] reading of how reliable the user's
	// latest asserted facts have been (spec §4.2 deep tick "trust-score
	// updates"), tracked as an exponential moving average of Entry.Confidence
	// across the user's current (IsLatest) memories.
	TrustScore float64

	UpdatedAt time.Time
}
