package memory

import (
	"context"
	"time"
)

// Store is the Memory Store's command surface (spec §2, §5 "Shared-resource
// policy"): every other component holds a reference to a Store and speaks
// to it through this narrow interface rather than touching rows directly.
// Concrete implementations live under internal/store (file-backed for
// standalone mode, pg for managed mode) and are responsible for their own
// locking/transactions, matching the teacher's store.SessionStore pattern
// of exposing behavior, not a raw table handle.
type Store interface {
	// CreateEntry inserts a new Entry, applying the at-most-one-IsLatest
	// supersession rule for non-empty e.Subject: any existing IsLatest=true
	// entry for (e.UserID, e.Subject) is flipped to IsLatest=false (and, if
	// it was TypeRegular or TypeDynamicProfile, relinked with an UPDATES
	// relation from the new entry).
	CreateEntry(ctx context.Context, e *Entry) error

	GetEntry(ctx context.Context, id string) (*Entry, error)

	// UpdateProminence writes back a recomputed prominence value. Callers
	// (the Decay Engine) are expected to have already applied the "only
	// write back when the delta exceeds 0.01" gate themselves; the Store
	// does not re-check it.
	UpdateProminence(ctx context.Context, id string, prominence float64, now time.Time) error

	// MarkSuperseded flips isLatest=false and memoryType=superseded for id.
	MarkSuperseded(ctx context.Context, id string) error

	// RecordAccess bumps AccessCount and LastAccessedAt for id to now.
	RecordAccess(ctx context.Context, id string, now time.Time) error

	// ListForDecay returns candidate entries for a decay scan. fullScan=false
	// restricts to the light-tick eligibility window (spec §4.2 Light tick);
	// fullScan=true is the deep-tick full non-static scan. limit<=0 means
	// unbounded.
	ListForDecay(ctx context.Context, userID string, fullScan bool, limit int) ([]*Entry, error)

	// ListByBand returns non-derived, non-superseded entries whose
	// prominence lies in [minProminence, maxProminence), for fusion cluster
	// discovery.
	ListByBand(ctx context.Context, userID string, minProminence, maxProminence float64) ([]*Entry, error)

	// ListArchived returns archived-status entries older than cutoff, for
	// enhanced forgetting.
	ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]*Entry, error)

	// Search performs the storage layer's half of hybrid retrieval: a
	// lexical (BM25-ish) candidate scan. Vector scoring is layered on top
	// by retrieval.go using the Store's embedding index.
	Search(ctx context.Context, userID, query string, limit int) ([]*Entry, error)

	DeleteEntry(ctx context.Context, id string) error

	// Relations.
	CreateRelation(ctx context.Context, r *Relation) error
	RelationsFor(ctx context.Context, userID string, entryIDs []string) ([]*Relation, error)
	DeleteRelationsFor(ctx context.Context, entryID string) error

	// Scheduled items.
	CreateScheduledItem(ctx context.Context, item *ScheduledItem) error
	ListPendingScheduledItems(ctx context.Context, before time.Time) ([]*ScheduledItem, error)
	ListDueScheduledItems(ctx context.Context, now time.Time) ([]*ScheduledItem, error)
	MarkFired(ctx context.Context, id string, firedAt time.Time) error
	MarkExpired(ctx context.Context, id string) error
	CancelScheduledItem(ctx context.Context, id string) error

	// Behavioral patterns.
	GetBehavioralPattern(ctx context.Context, userID string) (*BehavioralPattern, error)
	UpsertBehavioralPattern(ctx context.Context, p *BehavioralPattern) error

	// Ping is the cheap health check the light tick runs every cycle
	// (spec §4.2 Light tick "database health ping").
	Ping(ctx context.Context) error
}

// EmbedFunc embeds text into a vector, the only contract the core holds
// with the embedding provider (spec §1 "out of scope ... embedding provider").
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)
