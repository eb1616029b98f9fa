package file

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arialabs/aria/internal/providers"
)

// CostStore implements providers.CostStore as an append-only JSON-lines
// ledger, the standalone-mode counterpart to store/pg.CostStore. Adequate
// for the single-process deployment's modest request volume; the managed
// deployment mode uses store/pg instead.
type CostStore struct {
	mu   sync.Mutex
	path string
}

// NewCostStore opens (creating if absent) a JSON-lines ledger file at path.
func NewCostStore(path string) (*CostStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		return nil, err
	}
	return &CostStore{path: path}, nil
}

func (s *CostStore) Record(_ context.Context, r providers.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

func (s *CostStore) readAll() ([]providers.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []providers.CostRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var r providers.CostRecord
		if err := dec.Decode(&r); err != nil {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *CostStore) SpentSince(_ context.Context, since time.Time) (float64, error) {
	records, err := s.readAll()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range records {
		if !r.At.Before(since) {
			total += r.Cost
		}
	}
	return total, nil
}

func (s *CostStore) TopModels(_ context.Context, since time.Time, limit int) ([]providers.ModelSpend, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	byModel := map[string]float64{}
	for _, r := range records {
		if !r.At.Before(since) {
			byModel[r.Model] += r.Cost
		}
	}
	out := make([]providers.ModelSpend, 0, len(byModel))
	for model, cost := range byModel {
		out = append(out, providers.ModelSpend{Model: model, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *CostStore) TotalRequests(_ context.Context, since time.Time) (int, error) {
	records, err := s.readAll()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if !r.At.Before(since) {
			n++
		}
	}
	return n, nil
}
