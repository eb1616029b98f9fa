package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arialabs/aria/internal/sessions"
)

// SessionStore implements sessions.Persistence against Postgres, the
// managed-mode counterpart to sessions.NewFileStore.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Save(sess *sessions.Session) error {
	ctx := context.Background()
	msgs, err := json.Marshal(sess.Messages)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (
			session_key, messages, summary, created_at, updated_at, model, provider, channel,
			input_tokens, output_tokens, compaction_count, memory_flush_compaction_count, memory_flush_at,
			label, spawned_by, spawn_depth, context_window, last_prompt_tokens, last_message_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (session_key) DO UPDATE SET
			messages=$2, summary=$3, updated_at=$5, model=$6, provider=$7, channel=$8,
			input_tokens=$9, output_tokens=$10, compaction_count=$11, memory_flush_compaction_count=$12,
			memory_flush_at=$13, label=$14, spawned_by=$15, spawn_depth=$16, context_window=$17,
			last_prompt_tokens=$18, last_message_count=$19`,
		sess.Key, msgs, sess.Summary, sess.Created, sess.Updated, sess.Model, sess.Provider, sess.Channel,
		sess.InputTokens, sess.OutputTokens, sess.CompactionCount, sess.MemoryFlushCompactionCount, sess.MemoryFlushAt,
		sess.Label, sess.SpawnedBy, sess.SpawnDepth, sess.ContextWindow, sess.LastPromptTokens, sess.LastMessageCount,
	)
	return err
}

func (s *SessionStore) Load(key string) (*sessions.Session, bool, error) {
	ctx := context.Background()
	row := s.pool.QueryRow(ctx, `
		SELECT session_key, messages, summary, created_at, updated_at, model, provider, channel,
			input_tokens, output_tokens, compaction_count, memory_flush_compaction_count, memory_flush_at,
			label, spawned_by, spawn_depth, context_window, last_prompt_tokens, last_message_count
		FROM sessions WHERE session_key=$1`, key)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *SessionStore) Delete(key string) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_key=$1`, key)
	return err
}

func (s *SessionStore) LoadAll() ([]*sessions.Session, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT session_key, messages, summary, created_at, updated_at, model, provider, channel,
			input_tokens, output_tokens, compaction_count, memory_flush_compaction_count, memory_flush_at,
			label, spawned_by, spawn_depth, context_window, last_prompt_tokens, last_message_count
		FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*sessions.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (*sessions.Session, error) {
	var sess sessions.Session
	var msgs []byte
	if err := row.Scan(
		&sess.Key, &msgs, &sess.Summary, &sess.Created, &sess.Updated, &sess.Model, &sess.Provider, &sess.Channel,
		&sess.InputTokens, &sess.OutputTokens, &sess.CompactionCount, &sess.MemoryFlushCompactionCount, &sess.MemoryFlushAt,
		&sess.Label, &sess.SpawnedBy, &sess.SpawnDepth, &sess.ContextWindow, &sess.LastPromptTokens, &sess.LastMessageCount,
	); err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		_ = json.Unmarshal(msgs, &sess.Messages)
	}
	return &sess, nil
}
