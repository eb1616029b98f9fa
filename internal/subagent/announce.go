package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arialabs/aria/internal/providers"
)

// InProcessAnnouncer queues announce entries in memory, FIFO per parent
// session (spec §5 "Announce queue: FIFO per parent session"). Used in
// standalone deployments with no Redis configured.
type InProcessAnnouncer struct {
	mu     sync.Mutex
	queues map[string][]AnnounceEntry
}

// NewInProcessAnnouncer builds an empty in-memory announcer.
func NewInProcessAnnouncer() *InProcessAnnouncer {
	return &InProcessAnnouncer{queues: make(map[string][]AnnounceEntry)}
}

func (a *InProcessAnnouncer) Announce(_ context.Context, parentSessionID string, entry AnnounceEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[parentSessionID] = append(a.queues[parentSessionID], entry)
	return nil
}

// Drain pops every queued entry for parentSessionID in FIFO order, clearing
// the queue. Called by the gateway/channel layer when rendering a session's
// next turn (spec §4.3 "announce their results to the parent session").
func (a *InProcessAnnouncer) Drain(parentSessionID string) []AnnounceEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.queues[parentSessionID]
	delete(a.queues, parentSessionID)
	return entries
}

// RedisAnnouncer persists the announce queue in a Redis list so entries
// survive a gateway restart between a sub-agent's completion and the
// parent session next polling for it. Grounded on the teacher's use of
// redis/go-redis/v9 for the rolling health-tracker window
// (internal/providers/health.go) — the same client, a different list-based
// structure.
type RedisAnnouncer struct {
	client *redis.Client
}

// NewRedisAnnouncer wraps an existing Redis client.
func NewRedisAnnouncer(client *redis.Client) *RedisAnnouncer {
	return &RedisAnnouncer{client: client}
}

func announceKey(parentSessionID string) string {
	return "aria:announce:" + parentSessionID
}

func (a *RedisAnnouncer) Announce(ctx context.Context, parentSessionID string, entry AnnounceEntry) error {
	data, err := json.Marshal(redisAnnounceEntry{
		RunID: entry.RunID, ParentSessionID: entry.ParentSessionID, Label: entry.Label,
		Status: string(entry.Result.Status), Text: entry.Result.Text,
		InputTokens: entry.TokenUsage.InputTokens, OutputTokens: entry.TokenUsage.OutputTokens,
		TimestampUnix: entry.Timestamp.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal announce entry: %w", err)
	}
	return a.client.RPush(ctx, announceKey(parentSessionID), data).Err()
}

// Drain pops every queued entry for parentSessionID in FIFO order.
func (a *RedisAnnouncer) Drain(ctx context.Context, parentSessionID string) ([]AnnounceEntry, error) {
	key := announceKey(parentSessionID)
	raw, err := a.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read announce queue: %w", err)
	}
	if len(raw) > 0 {
		if err := a.client.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("clear announce queue: %w", err)
		}
	}
	out := make([]AnnounceEntry, 0, len(raw))
	for _, r := range raw {
		var e redisAnnounceEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e.toEntry())
	}
	return out, nil
}

// redisAnnounceEntry is the JSON wire shape stored in Redis; kept separate
// from AnnounceEntry so the Err field (not serializable) and time.Time
// layout never leak into the wire format.
type redisAnnounceEntry struct {
	RunID           string `json:"runId"`
	ParentSessionID string `json:"parentSessionId"`
	Label           string `json:"label"`
	Status          string `json:"status"`
	Text            string `json:"text"`
	InputTokens     int    `json:"inputTokens"`
	OutputTokens    int    `json:"outputTokens"`
	TimestampUnix   int64  `json:"timestamp"`
}

func (e redisAnnounceEntry) toEntry() AnnounceEntry {
	return AnnounceEntry{
		RunID:           e.RunID,
		ParentSessionID: e.ParentSessionID,
		Label:           e.Label,
		Timestamp:       time.Unix(e.TimestampUnix, 0),
		TokenUsage:      providers.Usage{InputTokens: e.InputTokens, OutputTokens: e.OutputTokens},
		Result:          Result{RunID: e.RunID, Status: Status(e.Status), Text: e.Text},
	}
}
