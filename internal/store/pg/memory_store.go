package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arialabs/aria/internal/memory"
)

// MemoryStore implements memory.Store against Postgres tables created by
// internal/store/migrations. Adapted from the teacher's PGSessionStore
// shape (lock-free, transaction-per-call) but without the teacher's
// in-process read cache: the Decay/Fusion/Gardener tick cadence here reads
// in bulk and infrequently enough that a cache buys little and risks
// staleness across the light/deep tick boundary.
type MemoryStore struct {
	pool *pgxpool.Pool
}

func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{pool: pool}
}

func (s *MemoryStore) CreateEntry(ctx context.Context, e *memory.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if e.Subject != "" {
		rows, err := tx.Query(ctx,
			`SELECT id, memory_type FROM memory_entries WHERE user_id=$1 AND subject=$2 AND is_latest`,
			e.UserID, e.Subject)
		if err != nil {
			return err
		}
		type prior struct {
			id, kind string
		}
		var priors []prior
		for rows.Next() {
			var p prior
			if err := rows.Scan(&p.id, &p.kind); err != nil {
				rows.Close()
				return err
			}
			priors = append(priors, p)
		}
		rows.Close()
		for _, p := range priors {
			if _, err := tx.Exec(ctx, `UPDATE memory_entries SET is_latest=false WHERE id=$1`, p.id); err != nil {
				return err
			}
			if memory.EntryType(p.kind) == memory.TypeRegular || memory.EntryType(p.kind) == memory.TypeDynamicProfile {
				if _, err := tx.Exec(ctx,
					`INSERT INTO memory_relations (id, source_id, target_id, type, confidence, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
					uuid.NewString(), e.ID, p.id, memory.RelationUpdates, 1.0, e.CreatedAt); err != nil {
					return err
				}
			}
		}
	}

	meta, _ := json.Marshal(e.Metadata)
	_, err = tx.Exec(ctx, `
		INSERT INTO memory_entries (
			id, user_id, content, category, memory_type, importance, confidence, is_latest,
			subject, document_timestamp, event_timestamp, prominence, last_accessed_at,
			access_count, source_chunk_id, embedding, metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.UserID, e.Content, e.Category, e.MemoryType, e.Importance, e.Confidence, e.IsLatest,
		e.Subject, e.DocumentTimestamp, e.EventTimestamp, e.Prominence, e.LastAccessedAt,
		e.AccessCount, e.SourceChunkID, floatSliceToBytes(e.Embedding), meta, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (*memory.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM memory_entries WHERE id=$1`, id)
	return scanEntry(row)
}

func (s *MemoryStore) UpdateProminence(ctx context.Context, id string, prominence float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memory_entries SET prominence=$1, updated_at=$2 WHERE id=$3`, prominence, now, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %q not found", id)
	}
	return nil
}

func (s *MemoryStore) MarkSuperseded(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE memory_entries SET is_latest=false, memory_type=$1 WHERE id=$2`, memory.TypeSuperseded, id)
	return err
}

func (s *MemoryStore) RecordAccess(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE memory_entries SET access_count=access_count+1, last_accessed_at=$1 WHERE id=$2`, now, id)
	return err
}

// ListForDecay implements memory.Store's decay-scan contract. fullScan=false
// applies spec §4.2's light-tick eligibility window: entries touched in the
// last 5 minutes, or older than a day with prominence still above the
// archive floor, ordered by current prominence so the highest-value
// candidates survive a budget cutoff first.
func (s *MemoryStore) ListForDecay(ctx context.Context, userID string, fullScan bool, limit int) ([]*memory.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM memory_entries WHERE user_id=$1 AND memory_type != $2`
	args := []interface{}{userID, memory.TypeStaticProfile}
	if !fullScan {
		now := time.Now()
		q += fmt.Sprintf(` AND memory_type != $%d`, len(args)+1)
		args = append(args, memory.TypeSuperseded)
		q += fmt.Sprintf(` AND (updated_at >= $%d OR last_accessed_at >= $%d OR (document_timestamp < $%d AND prominence > $%d))`,
			len(args)+1, len(args)+1, len(args)+2, len(args)+3)
		args = append(args, now.Add(-5*time.Minute), now.Add(-24*time.Hour), memory.ArchiveFloor)
		q += ` ORDER BY prominence DESC`
	} else {
		q += ` ORDER BY updated_at ASC`
	}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *MemoryStore) ListByBand(ctx context.Context, userID string, minProminence, maxProminence float64) ([]*memory.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM memory_entries
		WHERE user_id=$1 AND memory_type NOT IN ($2,$3) AND prominence >= $4 AND prominence < $5`,
		userID, memory.TypeDerived, memory.TypeSuperseded, minProminence, maxProminence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *MemoryStore) ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]*memory.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM memory_entries
		WHERE user_id=$1 AND prominence < 0.25 AND updated_at < $2`, userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *MemoryStore) Search(ctx context.Context, userID, query string, limit int) ([]*memory.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`,
			ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', $2)) AS rank
		FROM memory_entries
		WHERE user_id=$1 AND to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3`, userID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*memory.Entry
	for rows.Next() {
		e, rank, err := scanEntryWithRank(rows)
		_ = rank
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memory_entries WHERE id=$1`, id)
	return err
}

func (s *MemoryStore) CreateRelation(ctx context.Context, r *memory.Relation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_relations (id, source_id, target_id, type, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, r.ID, r.SourceID, r.TargetID, r.Type, r.Confidence, r.CreatedAt)
	return err
}

func (s *MemoryStore) RelationsFor(ctx context.Context, userID string, entryIDs []string) ([]*memory.Relation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.source_id, r.target_id, r.type, r.confidence, r.created_at
		FROM memory_relations r
		JOIN memory_entries e ON e.id = r.source_id OR e.id = r.target_id
		WHERE e.user_id=$1 AND (r.source_id = ANY($2) OR r.target_id = ANY($2))`,
		userID, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	var out []*memory.Relation
	for rows.Next() {
		var r memory.Relation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *MemoryStore) DeleteRelationsFor(ctx context.Context, entryID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memory_relations WHERE source_id=$1 OR target_id=$1`, entryID)
	return err
}

func (s *MemoryStore) CreateScheduledItem(ctx context.Context, item *memory.ScheduledItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	ctxJSON, _ := json.Marshal(item.Context)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_items (id, user_id, source, type, message, context, trigger_at, status, fired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		item.ID, item.UserID, item.Source, item.Type, item.Message, ctxJSON, item.TriggerAt, item.Status, item.FiredAt)
	return err
}

func (s *MemoryStore) ListPendingScheduledItems(ctx context.Context, before time.Time) ([]*memory.ScheduledItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, source, type, message, context, trigger_at, status, fired_at
		FROM scheduled_items WHERE status=$1 AND trigger_at < $2`, memory.ScheduledPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledItems(rows)
}

func (s *MemoryStore) ListDueScheduledItems(ctx context.Context, now time.Time) ([]*memory.ScheduledItem, error) {
	return s.ListPendingScheduledItems(ctx, now)
}

func (s *MemoryStore) MarkFired(ctx context.Context, id string, firedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE scheduled_items SET status=$1, fired_at=$2 WHERE id=$3`, memory.ScheduledFired, firedAt, id)
	return err
}

func (s *MemoryStore) MarkExpired(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE scheduled_items SET status=$1 WHERE id=$2`, memory.ScheduledExpired, id)
	return err
}

func (s *MemoryStore) CancelScheduledItem(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE scheduled_items SET status=$1 WHERE id=$2`, memory.ScheduledCancelled, id)
	return err
}

func (s *MemoryStore) GetBehavioralPattern(ctx context.Context, userID string) (*memory.BehavioralPattern, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, valence, arousal, emotion_label, goal_signal, proactiveness, msg_freq_per_day, updated_at
		FROM behavioral_patterns WHERE user_id=$1`, userID)
	var p memory.BehavioralPattern
	if err := row.Scan(&p.UserID, &p.Valence, &p.Arousal, &p.EmotionLabel, &p.GoalSignal, &p.Proactiveness, &p.MsgFreqPerDay, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemoryStore) UpsertBehavioralPattern(ctx context.Context, p *memory.BehavioralPattern) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO behavioral_patterns (user_id, valence, arousal, emotion_label, goal_signal, proactiveness, msg_freq_per_day, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			valence=$2, arousal=$3, emotion_label=$4, goal_signal=$5, proactiveness=$6, msg_freq_per_day=$7, updated_at=$8`,
		p.UserID, p.Valence, p.Arousal, p.EmotionLabel, p.GoalSignal, p.Proactiveness, p.MsgFreqPerDay, p.UpdatedAt)
	return err
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const entryColumns = `id, user_id, content, category, memory_type, importance, confidence, is_latest,
	subject, document_timestamp, event_timestamp, prominence, last_accessed_at,
	access_count, source_chunk_id, embedding, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*memory.Entry, error) {
	var e memory.Entry
	var embedding, meta []byte
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Content, &e.Category, &e.MemoryType, &e.Importance, &e.Confidence, &e.IsLatest,
		&e.Subject, &e.DocumentTimestamp, &e.EventTimestamp, &e.Prominence, &e.LastAccessedAt,
		&e.AccessCount, &e.SourceChunkID, &embedding, &meta, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Embedding = bytesToFloatSlice(embedding)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &e.Metadata)
	}
	return &e, nil
}

func scanEntryWithRank(rows pgx.Rows) (*memory.Entry, float64, error) {
	var e memory.Entry
	var embedding, meta []byte
	var rank float64
	if err := rows.Scan(
		&e.ID, &e.UserID, &e.Content, &e.Category, &e.MemoryType, &e.Importance, &e.Confidence, &e.IsLatest,
		&e.Subject, &e.DocumentTimestamp, &e.EventTimestamp, &e.Prominence, &e.LastAccessedAt,
		&e.AccessCount, &e.SourceChunkID, &embedding, &meta, &e.CreatedAt, &e.UpdatedAt, &rank,
	); err != nil {
		return nil, 0, err
	}
	e.Embedding = bytesToFloatSlice(embedding)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &e.Metadata)
	}
	return &e, rank, nil
}

func scanEntries(rows pgx.Rows) ([]*memory.Entry, error) {
	var out []*memory.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanScheduledItems(rows pgx.Rows) ([]*memory.ScheduledItem, error) {
	var out []*memory.ScheduledItem
	for rows.Next() {
		var it memory.ScheduledItem
		var ctxJSON []byte
		if err := rows.Scan(&it.ID, &it.UserID, &it.Source, &it.Type, &it.Message, &ctxJSON, &it.TriggerAt, &it.Status, &it.FiredAt); err != nil {
			return nil, err
		}
		if len(ctxJSON) > 0 {
			_ = json.Unmarshal(ctxJSON, &it.Context)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// floatSliceToBytes/bytesToFloatSlice store embeddings as a flat
// JSON array rather than pgvector, since the vector index
// itself lives in chromem-go (internal/memory/vectorindex.go) — Postgres
// only needs to round-trip the embedding alongside the entry it belongs to.
func floatSliceToBytes(v []float32) []byte {
	if v == nil {
		return nil
	}
	data, _ := json.Marshal(v)
	return data
}

func bytesToFloatSlice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	var v []float32
	_ = json.Unmarshal(data, &v)
	return v
}
