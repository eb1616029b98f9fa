// Package subagent implements the Sub-Agent Scheduler (spec §4.3): bounded
// spawning of child agent runs with a restricted capability surface,
// serialized per runId, announcing completion back to the parent session.
// Grounded on the teacher's internal/agent/scheduler.go (goclaw) goroutine
// pool and per-key serialization pattern, adapted from its flat
// sub-agent-as-tool-name dispatch to the filtering-view capability model of
// internal/skills.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arialabs/aria/internal/agent"
	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/metrics"
	"github.com/arialabs/aria/internal/providers"
	"github.com/arialabs/aria/internal/sessions"
	"github.com/arialabs/aria/internal/skills"
	"github.com/arialabs/aria/pkg/protocol"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// SpawnInput describes a requested child run (spec §4.3 "spawn(parentSession, input)").
type SpawnInput struct {
	Task          string
	Label         string
	Tier          providers.Tier
	AllowedSkills []string
	Depth         int
}

// Result is what spawnAndWait or an announce entry carries.
type Result struct {
	RunID    string
	Status   Status
	Text     string
	Usage    providers.Usage
	Err      error
	Finished time.Time
}

// run tracks one in-flight or completed sub-agent run.
type run struct {
	id     string
	parent string
	label  string
	status Status
	result Result
	cancel context.CancelFunc
	mu     sync.Mutex
}

// Announcer delivers a completed run's outcome to the parent session's
// announce queue (spec §5 "Announce queue: FIFO per parent session").
// Implementations live in announce.go: RedisAnnouncer, with
// InProcessAnnouncer as the fallback for standalone mode.
type Announcer interface {
	Announce(ctx context.Context, parentSessionID string, entry AnnounceEntry) error
}

// AnnounceEntry is one completed-run notification (spec §4.3 step 11).
type AnnounceEntry struct {
	RunID           string
	ParentSessionID string
	Label           string
	Result          Result
	TokenUsage      providers.Usage
	Timestamp       time.Time
}

// Scheduler spawns and tracks sub-agent runs (spec §4.3).
type Scheduler struct {
	cfg       config.SubagentsConfig
	sessions  *sessions.Manager
	registry  *skills.Registry
	memStore  memory.Store
	embed     memory.EmbedFunc
	vectorIdx memory.VectorIndex
	router    *providers.Router
	costStore providers.CostStore
	pricing   providers.PricingTable
	announcer Announcer
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu   sync.Mutex
	runs map[string]*run
}

// Deps bundles the Scheduler's collaborators.
type Deps struct {
	Sessions    *sessions.Manager
	Registry    *skills.Registry
	MemStore    memory.Store
	Embed       memory.EmbedFunc
	VectorIndex memory.VectorIndex
	Router      *providers.Router
	CostStore   providers.CostStore
	Pricing     providers.PricingTable
	Announcer   Announcer
	Log         *slog.Logger
	Metrics     *metrics.Metrics
}

// NewScheduler builds a Scheduler from cfg and deps, applying spec defaults.
func NewScheduler(cfg config.SubagentsConfig, deps Deps) *Scheduler {
	if cfg.MaxSpawnDepth <= 0 {
		cfg.MaxSpawnDepth = 1
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = 20_000
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 180
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 6
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		sessions:  deps.Sessions,
		registry:  deps.Registry,
		memStore:  deps.MemStore,
		embed:     deps.Embed,
		vectorIdx: deps.VectorIndex,
		router:    deps.Router,
		costStore: deps.CostStore,
		pricing:   deps.Pricing,
		announcer: deps.Announcer,
		log:       log,
		metrics:   deps.Metrics,
		runs:      make(map[string]*run),
	}
}

// ErrMaxDepthExceeded is returned when a spawn request would recurse past
// the configured maximum spawn depth (spec §4.3 "without recursion").
var ErrMaxDepthExceeded = errors.New("subagent: maximum spawn depth exceeded")

// Spawn enqueues an asynchronous child run and returns immediately with its
// identifiers (spec §4.3 "spawn(...) → {runId, childSessionId}").
func (s *Scheduler) Spawn(ctx context.Context, parentSessionID string, in SpawnInput, progress agent.ProgressFunc) (runID, childSessionID string, err error) {
	if in.Depth >= s.cfg.MaxSpawnDepth {
		return "", "", ErrMaxDepthExceeded
	}

	runID = uuid.NewString()
	label := in.Label
	if label == "" {
		label = "run"
	}
	childSessionID = sessions.BuildSubagentKey(fmt.Sprintf("%s:%s", label, runID))

	r := &run{id: runID, parent: parentSessionID, label: in.Label, status: StatusQueued}
	s.mu.Lock()
	s.runs[runID] = r
	s.mu.Unlock()

	go s.execute(context.Background(), runID, childSessionID, parentSessionID, in, progress)

	return runID, childSessionID, nil
}

// SpawnAndWait spawns a child run and blocks until it reaches a terminal
// status (spec §4.3 "spawnAndWait(...) → Result").
func (s *Scheduler) SpawnAndWait(ctx context.Context, parentSessionID string, in SpawnInput, progress agent.ProgressFunc) (*Result, error) {
	runID, _, err := s.Spawn(ctx, parentSessionID, in, progress)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(s.cfg.TimeoutSeconds) * time.Second)
	for {
		if res, ok := s.resultIfTerminal(runID); ok {
			return res, nil
		}
		if time.Now().After(deadline) {
			return &Result{RunID: runID, Status: StatusTimedOut, Err: fmt.Errorf("subagent run %s: wait deadline exceeded", runID)}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *Scheduler) resultIfTerminal(runID string) (*Result, bool) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		res := r.result
		res.RunID = runID
		res.Status = r.status
		return &res, true
	default:
		return nil, false
	}
}

// Cancel cancels a single in-flight run, reporting whether it was running
// (spec §4.3 "cancel(runId) → bool").
func (s *Scheduler) Cancel(runID string) bool {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusQueued && r.status != StatusRunning {
		return false
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.status = StatusCancelled
	return true
}

// CancelForParent cancels every in-flight run belonging to parentSessionID,
// returning the count cancelled (spec §4.3 "cancelForParent(parentSession) → int").
func (s *Scheduler) CancelForParent(parentSessionID string) int {
	s.mu.Lock()
	var ids []string
	for id, r := range s.runs {
		if r.parent == parentSessionID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// execute runs steps 1-11 of spec §4.3's run-execution algorithm. It is the
// body of the goroutine Spawn starts, serialized implicitly because each
// run gets its own goroutine and touches only its own child session.
func (s *Scheduler) execute(parentCtx context.Context, runID, childSessionID, parentSessionID string, in SpawnInput, progress agent.ProgressFunc) {
	ctx, cancel := context.WithTimeout(parentCtx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	s.setStatus(runID, StatusRunning)
	s.setCancelFunc(runID, cancel)

	s.sessions.SetSpawnInfo(childSessionID, parentSessionID, in.Depth+1)

	tier := in.Tier
	if tier == "" {
		tier = "cloud_budget"
	}

	filter := skills.DeriveCapabilitySurface(s.registry, skills.CapabilitySpec{AllowedSkills: in.AllowedSkills, TaskText: in.Task})
	if in.Depth+1 >= s.cfg.MaxSpawnDepth {
		filter = skills.LeafFilter(filter, "subagent_spawn", "subagent_spawn_wait")
	}
	view := skills.NewView(s.registry, filter)

	childCtxMgr := agent.NewContextManager(config.ContextPruningConfig{
		Mode:                 "cache-ttl",
		KeepLastAssistants:   6,
		SoftTrimRatio:        0.6,
		HardClearRatio:       0.85,
		ToolOutputCapChars:   2000,
		MinPrunableToolChars: 100,
	}, s.cfg.MaxInputTokens)

	memStore := s.memStore
	if memStore != nil {
		memStore = readOnlyMemoryStore{Store: memStore}
	}

	loop := agent.NewLoop(agent.Deps{
		Sessions:    s.sessions,
		MemStore:    memStore,
		Embed:       s.embed,
		VectorIndex: s.vectorIdx,
		Skills:      view,
		Validator:   mustValidator(view),
		Ladder:      providers.NewDegradationLadder(s.router, []providers.Tier{tier, providers.TierOffline}, ""),
		Budget:      nil,
		Pricing:     s.pricing,
		ContextMgr:  childCtxMgr,
	}, agent.Config{
		Identity:      subagentIdentity(in.Task),
		MaxIterations: s.cfg.MaxIterations,
		MaxTokens:     1024,
	})

	relabel := func(e protocol.Event) {
		if progress == nil {
			return
		}
		e.SessionID = in.Label
		progress(e)
	}

	res, err := loop.Run(ctx, agent.RunRequest{
		SessionKey: childSessionID,
		Message:    in.Task,
		Tier:       tier,
		Progress:   relabel,
		Cancel:     func() bool { return ctx.Err() != nil },
	})

	entry := AnnounceEntry{RunID: runID, ParentSessionID: parentSessionID, Label: in.Label, Timestamp: time.Now()}

	var result Result
	switch {
	case err != nil:
		result = Result{RunID: runID, Status: StatusFailed, Err: err}
	case ctx.Err() != nil:
		result = Result{RunID: runID, Status: StatusTimedOut, Text: res.Text}
	case !res.Done:
		// Exhausted maxIterations without ever emitting the completion
		// sentinel (a cancelled run is caught by the ctx.Err case above and
		// reported timed_out) — not a successful run (spec §9
		// Open Question: deny-list/iteration-cap ambiguity resolved in favor
		// of requiring [DONE] explicitly).
		result = Result{RunID: runID, Status: StatusFailed, Text: res.Text, Err: fmt.Errorf("subagent run %s: exhausted iterations without completing", runID)}
	default:
		result = Result{RunID: runID, Status: StatusCompleted, Text: res.Text, Usage: res.Usage, Finished: time.Now()}
		entry.TokenUsage = res.Usage
	}
	entry.Result = result
	s.finish(runID, result)
	s.metrics.RecordSubagentRun(string(result.Status))

	if s.announcer != nil {
		if err := s.announcer.Announce(context.Background(), parentSessionID, entry); err != nil {
			s.log.Warn("subagent: announce failed", "run", runID, "error", err)
		}
	}
}

func (s *Scheduler) setStatus(runID string, st Status) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}

// finish records a run's terminal result and status together, so a
// concurrent SpawnAndWait reader never observes a terminal status with a
// stale (zero-value) result.
func (s *Scheduler) finish(runID string, result Result) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.status = result.Status
	r.result = result
	r.mu.Unlock()
}

func (s *Scheduler) setCancelFunc(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

func subagentIdentity(task string) string {
	return "You are a focused sub-agent. Complete the following task and reply with [DONE] " +
		"once finished, or explain what blocked you if you cannot finish:\n\n" + task
}

func mustValidator(view *skills.View) *skills.Validator {
	reg := skills.NewRegistry()
	for _, sk := range view.List() {
		reg.Register(sk)
	}
	v, err := skills.NewValidator(reg)
	if err != nil {
		// A malformed schema on an already-validated registry would have
		// failed at boot; this path only reachable via programmer error.
		slog.Error("subagent: validator build failed", "error", err)
		return &skills.Validator{}
	}
	return v
}

// readOnlyMemoryStore wraps a Store so sub-agent runs can read memories for
// context but never mutate them (spec §4.3 step 8 "read-only guard that
// returns harmless no-ops for all write operations").
type readOnlyMemoryStore struct {
	memory.Store
}

func (readOnlyMemoryStore) CreateEntry(context.Context, *memory.Entry) error            { return nil }
func (readOnlyMemoryStore) UpdateProminence(context.Context, string, float64, time.Time) error { return nil }
func (readOnlyMemoryStore) MarkSuperseded(context.Context, string) error                { return nil }
func (readOnlyMemoryStore) RecordAccess(context.Context, string, time.Time) error        { return nil }
func (readOnlyMemoryStore) DeleteEntry(context.Context, string) error                    { return nil }
func (readOnlyMemoryStore) CreateRelation(context.Context, *memory.Relation) error        { return nil }
func (readOnlyMemoryStore) DeleteRelationsFor(context.Context, string) error              { return nil }
func (readOnlyMemoryStore) CreateScheduledItem(context.Context, *memory.ScheduledItem) error { return nil }
func (readOnlyMemoryStore) MarkFired(context.Context, string, time.Time) error            { return nil }
func (readOnlyMemoryStore) MarkExpired(context.Context, string) error                     { return nil }
func (readOnlyMemoryStore) CancelScheduledItem(context.Context, string) error              { return nil }
func (readOnlyMemoryStore) UpsertBehavioralPattern(context.Context, *memory.BehavioralPattern) error {
	return nil
}

