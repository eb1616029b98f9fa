package memory

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemIndex implements VectorIndex using an embedded chromem-go database,
// one collection per user so cross-user similarity search is never
// possible even by accident. Grounded on hector's pkg/vector/chromem.go
// provider: pre-computed embeddings passed through an identity embedding
// function, one *chromem.Collection cached per user.
type ChromemIndex struct {
	db   *chromem.DB
	mu   sync.Mutex
	cols map[string]*chromem.Collection
}

// NewChromemIndex opens an in-memory chromem database, or a persistent one
// when persistPath is non-empty (standalone-mode file storage).
func NewChromemIndex(persistPath string, compress bool) (*ChromemIndex, error) {
	var db *chromem.DB
	if persistPath != "" {
		existing, err := chromem.NewPersistentDB(persistPath, compress)
		if err == nil {
			db = existing
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}
	return &ChromemIndex{db: db, cols: make(map[string]*chromem.Collection)}, nil
}

func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding requested from vector index; embeddings must be precomputed by the EmbedFunc")
}

func (c *ChromemIndex) collection(userID string) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.cols[userID]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection("mem_"+userID, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("get/create collection: %w", err)
	}
	c.cols[userID] = col
	return col, nil
}

// Upsert implements retrieval.VectorIndex.
func (c *ChromemIndex) Upsert(ctx context.Context, userID, entryID, content string, embedding []float32, metadata map[string]string) error {
	col, err := c.collection(userID)
	if err != nil {
		return err
	}
	doc := chromem.Document{ID: entryID, Content: content, Metadata: metadata, Embedding: embedding}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// Delete implements retrieval.VectorIndex.
func (c *ChromemIndex) Delete(ctx context.Context, userID, entryID string) error {
	col, err := c.collection(userID)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, entryID)
}

// Query implements retrieval.VectorIndex.
func (c *ChromemIndex) Query(ctx context.Context, userID string, embedding []float32, n int) (map[string]float64, error) {
	col, err := c.collection(userID)
	if err != nil {
		return nil, err
	}
	if col.Count() == 0 {
		return map[string]float64{}, nil
	}
	if n > col.Count() {
		n = col.Count()
	}
	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.ID] = float64(r.Similarity)
	}
	return out, nil
}
