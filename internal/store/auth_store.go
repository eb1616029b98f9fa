package store

import (
	"context"
	"time"
)

// APIKey is one issued gateway credential (spec §6 "Authentication":
// WebSocket and HTTP callers present a bearer token; validateRequest looks
// it up here). The cookie-session layer itself is out of scope (spec.md
// Non-goals) — this only covers bearer-token issuance/revocation.
type APIKey struct {
	Hash      string // sha256 of the raw key; the raw key is never stored
	UserID    string
	Label     string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// AuthStore persists and looks up API keys.
type AuthStore interface {
	Create(ctx context.Context, k *APIKey) error
	Lookup(ctx context.Context, hash string) (*APIKey, error)
	Revoke(ctx context.Context, hash string) error
	ListForUser(ctx context.Context, userID string) ([]*APIKey, error)
}
