// Package file implements the standalone-mode, JSON-file-backed Store
// interfaces (internal/memory.Store, internal/providers.CostStore and the
// auth store); session persistence is internal/sessions.NewFileStore,
// not this package. Adapted from the teacher's internal/store/file/sessions.go atomic
// temp-file-then-rename write pattern.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arialabs/aria/internal/memory"
)

// MemoryStore implements memory.Store with one JSON document per user under
// a base directory. Adequate for the single-process standalone deployment
// mode; the managed deployment mode uses store/pg instead.
type MemoryStore struct {
	mu   sync.Mutex
	dir  string
	data map[string]*userMemory // userID -> in-memory working set, mirrored to disk
}

type userMemory struct {
	Entries    map[string]*memory.Entry    `json:"entries"`
	Relations  map[string]*memory.Relation `json:"relations"`
	Scheduled  map[string]*memory.ScheduledItem `json:"scheduled"`
	Behavioral *memory.BehavioralPattern  `json:"behavioral,omitempty"`
}

func newUserMemory() *userMemory {
	return &userMemory{
		Entries:   make(map[string]*memory.Entry),
		Relations: make(map[string]*memory.Relation),
		Scheduled: make(map[string]*memory.ScheduledItem),
	}
}

// NewMemoryStore builds a file-backed MemoryStore rooted at dir.
func NewMemoryStore(dir string) (*MemoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MemoryStore{dir: dir, data: make(map[string]*userMemory)}, nil
}

func (s *MemoryStore) path(userID string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(userID, "/", "_")+".json")
}

// user returns the in-memory working set for userID, lazily loading it from
// disk on first touch. Caller must hold s.mu.
func (s *MemoryStore) user(userID string) *userMemory {
	if u, ok := s.data[userID]; ok {
		return u
	}
	u := newUserMemory()
	if data, err := os.ReadFile(s.path(userID)); err == nil {
		_ = json.Unmarshal(data, u)
		if u.Entries == nil {
			u.Entries = make(map[string]*memory.Entry)
		}
		if u.Relations == nil {
			u.Relations = make(map[string]*memory.Relation)
		}
		if u.Scheduled == nil {
			u.Scheduled = make(map[string]*memory.ScheduledItem)
		}
	}
	s.data[userID] = u
	return u
}

// persist writes userID's working set atomically. Caller must hold s.mu.
func (s *MemoryStore) persist(userID string) error {
	u := s.data[userID]
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "memory-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()
	return os.Rename(tmpPath, s.path(userID))
}

func (s *MemoryStore) CreateEntry(ctx context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	u := s.user(e.UserID)
	if e.Subject != "" {
		for _, other := range u.Entries {
			if other.Subject == e.Subject && other.IsLatest && other.ID != e.ID {
				other.IsLatest = false
				if other.MemoryType == memory.TypeRegular || other.MemoryType == memory.TypeDynamicProfile {
					rel := &memory.Relation{
						ID:        uuid.NewString(),
						SourceID:  e.ID,
						TargetID:  other.ID,
						Type:      memory.RelationUpdates,
						CreatedAt: e.CreatedAt,
					}
					u.Relations[rel.ID] = rel
				}
			}
		}
	}
	u.Entries[e.ID] = e
	return s.persist(e.UserID)
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data {
		if e, ok := u.Entries[id]; ok {
			return e, nil
		}
	}
	if e, ok := s.scanDiskForEntry(id); ok {
		return e, nil
	}
	return nil, fmt.Errorf("entry %q not found", id)
}

// scanDiskForEntry loads every on-disk user file to find id, for the case
// where the entry's owning user hasn't been touched yet this process.
func (s *MemoryStore) scanDiskForEntry(id string) (*memory.Entry, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, false
	}
	for _, fi := range entries {
		if fi.IsDir() || filepath.Ext(fi.Name()) != ".json" {
			continue
		}
		userID := strings.TrimSuffix(fi.Name(), ".json")
		u := s.user(userID)
		if e, ok := u.Entries[id]; ok {
			return e, true
		}
	}
	return nil, false
}

func (s *MemoryStore) UpdateProminence(ctx context.Context, id string, prominence float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if e, ok := u.Entries[id]; ok {
			e.Prominence = prominence
			e.UpdatedAt = now
			return s.persist(userID)
		}
	}
	return fmt.Errorf("entry %q not found", id)
}

func (s *MemoryStore) MarkSuperseded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if e, ok := u.Entries[id]; ok {
			e.IsLatest = false
			e.MemoryType = memory.TypeSuperseded
			return s.persist(userID)
		}
	}
	return fmt.Errorf("entry %q not found", id)
}

func (s *MemoryStore) RecordAccess(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if e, ok := u.Entries[id]; ok {
			e.AccessCount++
			e.LastAccessedAt = &now
			return s.persist(userID)
		}
	}
	return fmt.Errorf("entry %q not found", id)
}

func (s *MemoryStore) ListForDecay(ctx context.Context, userID string, fullScan bool, limit int) ([]*memory.Entry, error) {
	return s.listForDecayAt(userID, fullScan, limit, time.Now())
}

// listForDecayAt is ListForDecay with an injectable now, so the light-tick
// eligibility window (spec §4.2) is testable without wall-clock sleeps.
func (s *MemoryStore) listForDecayAt(userID string, fullScan bool, limit int, now time.Time) ([]*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	var out []*memory.Entry
	for _, e := range u.Entries {
		if e.MemoryType == memory.TypeStaticProfile {
			continue
		}
		if !fullScan && e.MemoryType == memory.TypeSuperseded {
			continue
		}
		if !fullScan && !memory.EligibleForLightTick(e, now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prominence > out[j].Prominence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByBand(ctx context.Context, userID string, minProminence, maxProminence float64) ([]*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	var out []*memory.Entry
	for _, e := range u.Entries {
		if e.MemoryType == memory.TypeDerived || e.MemoryType == memory.TypeSuperseded {
			continue
		}
		if e.Prominence >= minProminence && e.Prominence < maxProminence {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	var out []*memory.Entry
	for _, e := range u.Entries {
		if e.Band(0.6, 0.25) == memory.BandArchived && e.UpdatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, userID, query string, limit int) ([]*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		e     *memory.Entry
		score int
	}
	var candidates []scored
	for _, e := range u.Entries {
		content := strings.ToLower(e.Content)
		hits := 0
		for _, t := range terms {
			if strings.Contains(content, t) {
				hits++
			}
		}
		if hits > 0 {
			candidates = append(candidates, scored{e, hits})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*memory.Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.e
	}
	return out, nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if _, ok := u.Entries[id]; ok {
			delete(u.Entries, id)
			return s.persist(userID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateRelation(ctx context.Context, r *memory.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	userID := s.ownerOf(r.SourceID)
	if userID == "" {
		userID = s.ownerOf(r.TargetID)
	}
	if userID == "" {
		return fmt.Errorf("relation endpoints not found")
	}
	u := s.user(userID)
	u.Relations[r.ID] = r
	return s.persist(userID)
}

func (s *MemoryStore) ownerOf(entryID string) string {
	for userID, u := range s.data {
		if _, ok := u.Entries[entryID]; ok {
			return userID
		}
	}
	return ""
}

func (s *MemoryStore) RelationsFor(ctx context.Context, userID string, entryIDs []string) ([]*memory.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	want := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		want[id] = true
	}
	var out []*memory.Relation
	for _, r := range u.Relations {
		if want[r.SourceID] || want[r.TargetID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteRelationsFor(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		changed := false
		for id, r := range u.Relations {
			if r.SourceID == entryID || r.TargetID == entryID {
				delete(u.Relations, id)
				changed = true
			}
		}
		if changed {
			return s.persist(userID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateScheduledItem(ctx context.Context, item *memory.ScheduledItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	u := s.user(item.UserID)
	u.Scheduled[item.ID] = item
	return s.persist(item.UserID)
}

func (s *MemoryStore) ListPendingScheduledItems(ctx context.Context, before time.Time) ([]*memory.ScheduledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*memory.ScheduledItem
	for _, u := range s.data {
		for _, it := range u.Scheduled {
			if it.Status == memory.ScheduledPending && it.TriggerAt.Before(before) {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListDueScheduledItems(ctx context.Context, now time.Time) ([]*memory.ScheduledItem, error) {
	return s.ListPendingScheduledItems(ctx, now)
}

func (s *MemoryStore) MarkFired(ctx context.Context, id string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if it, ok := u.Scheduled[id]; ok {
			it.Status = memory.ScheduledFired
			it.FiredAt = &firedAt
			return s.persist(userID)
		}
	}
	return fmt.Errorf("scheduled item %q not found", id)
}

func (s *MemoryStore) MarkExpired(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if it, ok := u.Scheduled[id]; ok {
			it.Status = memory.ScheduledExpired
			return s.persist(userID)
		}
	}
	return fmt.Errorf("scheduled item %q not found", id)
}

func (s *MemoryStore) CancelScheduledItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, u := range s.data {
		if it, ok := u.Scheduled[id]; ok {
			it.Status = memory.ScheduledCancelled
			return s.persist(userID)
		}
	}
	return fmt.Errorf("scheduled item %q not found", id)
}

func (s *MemoryStore) GetBehavioralPattern(ctx context.Context, userID string) (*memory.BehavioralPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if u.Behavioral == nil {
		return nil, fmt.Errorf("no behavioral pattern for user %q", userID)
	}
	return u.Behavioral, nil
}

func (s *MemoryStore) UpsertBehavioralPattern(ctx context.Context, p *memory.BehavioralPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(p.UserID)
	u.Behavioral = p
	return s.persist(p.UserID)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.dir)
	return err
}
