package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arialabs/aria/internal/store"
)

// AuthStore implements store.AuthStore as a single JSON document, adequate
// for the standalone deployment's typically-small key count.
type AuthStore struct {
	mu   sync.Mutex
	path string
	keys map[string]*store.APIKey
}

func NewAuthStore(path string) (*AuthStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &AuthStore{path: path, keys: make(map[string]*store.APIKey)}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &s.keys)
	}
	return s, nil
}

func (s *AuthStore) persist() error {
	data, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *AuthStore) Create(ctx context.Context, k *store.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.Hash] = k
	return s.persist()
}

func (s *AuthStore) Lookup(ctx context.Context, hash string) (*store.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, fmt.Errorf("api key not found")
	}
	return k, nil
}

func (s *AuthStore) Revoke(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return fmt.Errorf("api key not found")
	}
	now := time.Now()
	k.RevokedAt = &now
	return s.persist()
}

func (s *AuthStore) ListForUser(ctx context.Context, userID string) ([]*store.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.APIKey
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}
