package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arialabs/aria/pkg/protocol"
)

// Session stores conversation history and bookkeeping for one session key.
type Session struct {
	Key      string             `json:"key"`
	Messages []protocol.Message `json:"messages"`
	Summary  string             `json:"summary,omitempty"`
	Created  time.Time          `json:"created"`
	Updated  time.Time          `json:"updated"`

	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Channel      string `json:"channel,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty"`

	CompactionCount            int   `json:"compactionCount,omitempty"`
	MemoryFlushCompactionCount int   `json:"memoryFlushCompactionCount,omitempty"`
	MemoryFlushAt              int64 `json:"memoryFlushAt,omitempty"`

	Label      string `json:"label,omitempty"`
	SpawnedBy  string `json:"spawnedBy,omitempty"`
	SpawnDepth int    `json:"spawnDepth,omitempty"`

	ContextWindow    int `json:"contextWindow,omitempty"`
	LastPromptTokens int `json:"lastPromptTokens,omitempty"`
	LastMessageCount int `json:"lastMessageCount,omitempty"`
}

// Persistence is the pluggable storage backend for sessions. The standalone
// deployment mode uses fileStore (below); the managed mode wires
// internal/store/pg instead, satisfying the same interface.
type Persistence interface {
	Save(s *Session) error
	Load(key string) (*Session, bool, error)
	Delete(key string) error
	LoadAll() ([]*Session, error)
}

// Manager is the in-process session cache backed by a Persistence.
// Reads and writes to the in-memory map are the fast path; Persistence
// calls happen on explicit Save (spec §5: sessions are read-modify-written
// entirely in memory during a turn, durable writes are a deliberate step
// rather than on every mutation).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	persist  Persistence
}

// NewManager builds a Manager. persist may be nil, in which case sessions
// live only in memory for the process lifetime.
func NewManager(persist Persistence) *Manager {
	m := &Manager{sessions: make(map[string]*Session), persist: persist}
	if persist != nil {
		if all, err := persist.LoadAll(); err == nil {
			for _, s := range all {
				m.sessions[s.Key] = s
			}
		}
	}
	return m
}

// GetOrCreate returns the cached session for key, creating and caching an
// empty one if absent. It does not consult Persistence beyond the initial
// LoadAll done at construction.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	now := time.Now()
	s := &Session{Key: key, Created: now, Updated: now}
	m.sessions[key] = s
	return s
}

// AddMessage appends a message to a session's history.
func (m *Manager) AddMessage(key string, msg protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Created: time.Now()}
		m.sessions[key] = s
	}
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
}

// History returns a copy of a session's message slice.
func (m *Manager) History(key string) []protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	out := make([]protocol.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Summary returns a session's current running summary, or "" if the
// session is unknown or has never been summarized.
func (m *Manager) Summary(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.Summary
	}
	return ""
}

// SetSummary overwrites a session's running summary (spec's session
// compaction feature).
func (m *Manager) SetSummary(key, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.Summary = summary
		s.Updated = time.Now()
	}
}

// TruncateHistory keeps only the most recent keepLast messages, used by the
// Context Manager's hot-window pruning.
func (m *Manager) TruncateHistory(key string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return
	}
	if keepLast <= 0 {
		s.Messages = nil
	} else if len(s.Messages) > keepLast {
		s.Messages = s.Messages[len(s.Messages)-keepLast:]
	}
	s.Updated = time.Now()
}

// AccumulateTokens adds token counts from a completed turn.
func (m *Manager) AccumulateTokens(key string, input, output int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.InputTokens += input
		s.OutputTokens += output
	}
}

// IncrementCompaction bumps the compaction counter after a summarization
// pass and returns the new count.
func (m *Manager) IncrementCompaction(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return 0
	}
	s.CompactionCount++
	return s.CompactionCount
}

// MemoryFlushPending reports whether no memory-extraction flush has run
// since the last compaction.
func (m *Manager) MemoryFlushPending(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return false
	}
	return s.MemoryFlushCompactionCount < s.CompactionCount
}

// SetMemoryFlushDone records that a memory-extraction flush ran at the
// current compaction count.
func (m *Manager) SetMemoryFlushDone(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.MemoryFlushCompactionCount = s.CompactionCount
		s.MemoryFlushAt = time.Now().UnixMilli()
	}
}

// SetSpawnInfo records sub-agent origin metadata on a session.
func (m *Manager) SetSpawnInfo(key, spawnedBy string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.SpawnedBy = spawnedBy
		s.SpawnDepth = depth
	}
}

// Reset clears a session's history and summary in place.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.Messages = nil
		s.Summary = ""
		s.Updated = time.Now()
	}
}

// Delete removes a session from the cache and from Persistence, if wired.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	if m.persist == nil {
		return nil
	}
	return m.persist.Delete(key)
}

// Save snapshots a session under lock and writes it through Persistence.
func (m *Manager) Save(key string) error {
	if m.persist == nil {
		return nil
	}
	m.mu.RLock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	snapshot := *s
	snapshot.Messages = make([]protocol.Message, len(s.Messages))
	copy(snapshot.Messages, s.Messages)
	m.mu.RUnlock()
	return m.persist.Save(&snapshot)
}

// Info is a lightweight session descriptor for listing endpoints.
type Info struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// List returns descriptors for every cached session, optionally filtered to
// those belonging to userID.
func (m *Manager) List(userID string) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := ""
	if userID != "" {
		prefix = "user:" + userID + ":"
	}
	var out []Info
	for key, s := range m.sessions {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Info{Key: key, MessageCount: len(s.Messages), Created: s.Created, Updated: s.Updated})
	}
	return out
}

// LastUsedChannel finds userID's most recently updated channel session
// (excluding subagent/cron sessions) and returns its channel and peer ID,
// used to resolve a proactive delivery target of "last".
func (m *Manager) LastUsedChannel(userID string) (channel, peerID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := "user:" + userID + ":"
	var bestKey string
	var bestUpdated time.Time
	for key, s := range m.sessions {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if s.Updated.After(bestUpdated) {
			bestUpdated = s.Updated
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", ""
	}
	parts := strings.SplitN(bestKey, ":", 5)
	if len(parts) >= 5 {
		return parts[2], parts[4]
	}
	return "", ""
}

// fileStore is the standalone-mode Persistence: one JSON file per session
// under a base directory, written atomically via a temp-file rename.
type fileStore struct {
	dir string
}

// NewFileStore builds a directory-backed Persistence, creating dir if
// necessary.
func NewFileStore(dir string) (Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) path(key string) string {
	return filepath.Join(f.dir, strings.ReplaceAll(key, ":", "_")+".json")
}

func (f *fileStore) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "session-*.tmp")
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
	return os.Rename(tmpPath, f.path(s.Key))
}

func (f *fileStore) Load(key string) (*Session, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (f *fileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *fileStore) LoadAll() ([]*Session, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, e.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}
