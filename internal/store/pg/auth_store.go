package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arialabs/aria/internal/store"
)

// AuthStore implements store.AuthStore against Postgres.
type AuthStore struct {
	pool *pgxpool.Pool
}

func NewAuthStore(pool *pgxpool.Pool) *AuthStore {
	return &AuthStore{pool: pool}
}

func (s *AuthStore) Create(ctx context.Context, k *store.APIKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (key_hash, user_id, label, created_at, revoked_at)
		VALUES ($1,$2,$3,$4,$5)`, k.Hash, k.UserID, k.Label, k.CreatedAt, k.RevokedAt)
	return err
}

func (s *AuthStore) Lookup(ctx context.Context, hash string) (*store.APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT key_hash, user_id, label, created_at, revoked_at FROM api_keys WHERE key_hash=$1`, hash)
	var k store.APIKey
	if err := row.Scan(&k.Hash, &k.UserID, &k.Label, &k.CreatedAt, &k.RevokedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *AuthStore) Revoke(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET revoked_at=now() WHERE key_hash=$1`, hash)
	return err
}

func (s *AuthStore) ListForUser(ctx context.Context, userID string) ([]*store.APIKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT key_hash, user_id, label, created_at, revoked_at FROM api_keys WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.APIKey
	for rows.Next() {
		var k store.APIKey
		if err := rows.Scan(&k.Hash, &k.UserID, &k.Label, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}
