// Package agent implements the Agent Turn Engine (spec §4.1): the
// iterative plan → tool-use → feedback loop driving one user turn to
// completion. Adapted from the teacher's internal/agent/loop.go — kept the
// Loop type, the iteration-capped tool-use cycle, and the loop-detector
// idea (tool calls run one at a time, in tool_use block order) — replacing goclaw's
// flattened Message.Content string and channel-specific AgentEvent
// vocabulary with pkg/protocol's tagged content blocks and the spec's
// response/chunk/skill_*/memory/... event taxonomy.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/metrics"
	"github.com/arialabs/aria/internal/providers"
	"github.com/arialabs/aria/internal/sessions"
	"github.com/arialabs/aria/internal/skills"
	"github.com/arialabs/aria/internal/tracing"
	"github.com/arialabs/aria/pkg/protocol"
)

// ProgressFunc streams intermediate events back to the caller's adapter
// (spec §4.1 "optional progress callback"; §9 "coroutine progress
// callbacks → pass progress events as sends on an owned channel"). nil is
// a valid no-op callback.
type ProgressFunc func(protocol.Event)

func (f ProgressFunc) emit(e protocol.Event) {
	if f != nil {
		f(e)
	}
}

// CancelFunc is checked between iterations and before every provider/tool
// call (spec §5 "Cancellation"). nil means never cancel.
type CancelFunc func() bool

func (f CancelFunc) tripped() bool { return f != nil && f() }

// sessionKeyCtxKey tags the current turn's session key onto the context
// handed to skill handlers, so a skill that needs to know which session it
// is running under (internal/skills/builtin's subagent_spawn_wait, which must
// tell the scheduler who its parent is) does not need a bespoke parameter
// threaded through Handler's signature.
type sessionKeyCtxKey struct{}

// WithSessionKey tags ctx with the running turn's session key.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtxKey{}, key)
}

// SessionKeyFromContext retrieves the session key tagged by WithSessionKey,
// if any.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyCtxKey{}).(string)
	return key, ok
}

// RunRequest is one user turn handed to the Agent Turn Engine.
type RunRequest struct {
	SessionKey string
	UserID     string
	Message    string
	Tier       providers.Tier
	Model      string
	Stream     bool
	Progress   ProgressFunc
	Cancel     CancelFunc
}

// RunResult is returned after a turn completes, times out on iteration
// cap, or is cancelled.
type RunResult struct {
	Text       string
	Iterations int
	Usage      providers.Usage
	Session    *sessions.Session
	// Done reports whether the model emitted the completion sentinel before
	// the turn ended, as opposed to exhausting maxIterations or being
	// cancelled mid-turn (spec §4.3 "Termination criteria" / §9 Open
	// Question: an iteration-cap exit without the sentinel is not a
	// successful completion).
	Done bool
}

// Deps bundles the Loop's collaborators (spec §2 component table: every
// higher-level component "holds a reference to the store and speaks to it
// through a narrow command interface").
type Deps struct {
	Sessions    *sessions.Manager
	MemStore    memory.Store
	Embed       memory.EmbedFunc
	VectorIndex memory.VectorIndex
	Skills      SkillView
	Validator   *skills.Validator
	Ladder      *providers.DegradationLadder
	Budget      *providers.BudgetGuard
	Pricing     providers.PricingTable
	ContextMgr  *ContextManager
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// SkillView is the narrow surface the loop needs from a skills.Registry or
// a filtered skills.View — satisfied by both, so a sub-agent's filtered
// capability surface plugs in without the loop knowing the difference
// (spec §4.3 step 6).
type SkillView interface {
	Get(name string) (skills.Skill, bool)
	ToolDefinitions() []providers.ToolDefinition
}

// Loop is one Agent Turn Engine instance (spec §4.1). A deployment may run
// several — one per agent identity (SPEC_FULL.md §1.1) — each with its own
// Deps (in particular, a sub-agent run gets a tight-budget, filtered-skill
// Loop built by internal/subagent).
type Loop struct {
	deps Deps

	identity      string
	maxIterations int
	maxTokens     int
	temperature   float64
	retrievalCfg  memory.RetrievalConfig
	activationCfg memory.ActivationConfig
	decayWeights  memory.DecayWeights
}

// Config configures a new Loop.
type Config struct {
	Identity      string
	MaxIterations int // default 10
	MaxTokens     int
	Temperature   float64
	RetrievalCfg  memory.RetrievalConfig
	ActivationCfg memory.ActivationConfig
	DecayWeights  memory.DecayWeights
}

// NewLoop builds a Loop from deps and cfg, applying spec defaults for any
// zero-valued cfg fields.
func NewLoop(deps Deps, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.RetrievalCfg == (memory.RetrievalConfig{}) {
		cfg.RetrievalCfg = memory.DefaultRetrievalConfig
	}
	if cfg.ActivationCfg == (memory.ActivationConfig{}) {
		cfg.ActivationCfg = memory.DefaultActivationConfig
	}
	if cfg.DecayWeights == (memory.DecayWeights{}) {
		cfg.DecayWeights = memory.DefaultDecayWeights
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Tracer("aria/agent")
	}
	return &Loop{
		deps:          deps,
		identity:      cfg.Identity,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		retrievalCfg:  cfg.RetrievalCfg,
		activationCfg: cfg.ActivationCfg,
		decayWeights:  cfg.DecayWeights,
	}
}

// doneSentinel marks a sub-agent run complete (spec §4.3 "Termination
// criteria"; SPEC_FULL.md §6 Open Question #1 resolution: only the
// sentinel counts, not merely finishing under the iteration cap).
const doneSentinel = "[DONE]"

// Run drives req through plan → tool-use loop → final response (spec
// §4.1 "Algorithm").
func (l *Loop) Run(ctx context.Context, req RunRequest) (result *RunResult, runErr error) {
	progress := req.Progress
	cancel := req.Cancel
	ctx = WithSessionKey(ctx, req.SessionKey)
	turnStart := time.Now()

	ctx, turnSpan := tracing.StartSpan(ctx, l.deps.Tracer, "agent.turn", trace.SpanKindInternal,
		attribute.String(tracing.AttrSessionKey, req.SessionKey))
	defer func() { tracing.EndSpan(turnSpan, runErr) }()

	session := l.deps.Sessions.GetOrCreate(req.SessionKey)
	l.deps.Sessions.AddMessage(req.SessionKey, protocol.UserText(req.Message))

	system, err := l.buildSystemPrompt(ctx, req, progress)
	if err != nil {
		slog.Warn("agent: system prompt build failed, continuing without memory context", "error", err)
	}

	var loopDetector toolLoopState
	var totalUsage providers.Usage
	iteration := 0
	var finalText string
	done := false

	for iteration < l.maxIterations {
		iteration++

		if cancel.tripped() {
			break
		}

		messages := l.deps.Sessions.History(req.SessionKey)
		if l.deps.ContextMgr != nil {
			messages = l.deps.ContextMgr.ClipToolResults(messages)
			if l.deps.ContextMgr.ShouldPrune(messages) {
				messages = l.deps.ContextMgr.Prune(messages)
			}
		}

		toolDefs := l.deps.Skills.ToolDefinitions()

		chatReq := providers.ChatRequest{
			Messages:    messages,
			System:      system,
			Tools:       toolDefs,
			Model:       req.Model,
			Temperature: l.temperature,
			MaxTokens:   l.maxTokens,
			SessionID:   req.SessionKey,
		}

		if l.deps.Budget != nil {
			estCost := l.estimateCost(chatReq)
			if err := l.deps.Budget.Check(ctx, estCost, time.Now()); err != nil {
				progress.emit(protocol.NewError(err.Error()))
				return nil, err
			}
		}

		if cancel.tripped() {
			break
		}

		_, llmSpan := tracing.StartSpan(ctx, l.deps.Tracer, "agent.llm_call", trace.SpanKindClient,
			attribute.String(tracing.AttrModel, req.Model),
			attribute.Int(tracing.AttrIteration, iteration))
		resp := l.deps.Ladder.Execute(ctx, chatReq)
		totalUsage = addUsage(totalUsage, resp.Usage)
		tracing.EndSpan(llmSpan, nil,
			attribute.String(tracing.AttrProvider, string(resp.Tier)),
			attribute.Int(tracing.AttrInputTokens, resp.Usage.InputTokens),
			attribute.Int(tracing.AttrOutputTokens, resp.Usage.OutputTokens),
			attribute.String(tracing.AttrFinishReason, string(resp.StopReason)))

		progress.emit(protocol.NewResponse(req.SessionKey, resp.Message.Text()))

		if resp.StopReason != providers.StopToolUse || len(resp.Message.ToolUses()) == 0 {
			finalText = resp.Message.Text()
			done = strings.Contains(finalText, doneSentinel)
			finalText = strings.ReplaceAll(finalText, doneSentinel, "")
			l.deps.Sessions.AddMessage(req.SessionKey, protocol.Message{Role: protocol.RoleAssistant, Content: resp.Message.Content})
			break
		}

		l.deps.Sessions.AddMessage(req.SessionKey, resp.Message)

		toolUses := resp.Message.ToolUses()
		results := make([]protocol.ContentBlock, len(toolUses))
		for i, tc := range toolUses {
			if cancel.tripped() {
				results[i] = protocol.ToolResultBlock(tc.ID, "Turn cancelled before this tool ran.", true)
				continue
			}
			results[i] = l.invokeSkill(ctx, tc, &loopDetector, progress)
		}

		feedback := protocol.Message{Role: protocol.RoleUser, Content: results}
		l.deps.Sessions.AddMessage(req.SessionKey, feedback)

		if cancel.tripped() {
			break
		}
	}

	if finalText == "" && iteration >= l.maxIterations {
		finalText = "I've reached the maximum iterations for this turn and need to stop here. Please let me know how you'd like to continue."
		l.deps.Sessions.AddMessage(req.SessionKey, protocol.AssistantText(finalText))
	}

	l.deps.Sessions.AccumulateTokens(req.SessionKey, int64(totalUsage.InputTokens), int64(totalUsage.OutputTokens))
	if err := l.deps.Sessions.Save(req.SessionKey); err != nil {
		slog.Warn("agent: session save failed", "session", req.SessionKey, "error", err)
	}

	outcome := "incomplete"
	if done {
		outcome = "done"
	} else if iteration >= l.maxIterations {
		outcome = "max_iterations"
	}
	l.deps.Metrics.RecordTurn(outcome, time.Since(turnStart), iteration)

	return &RunResult{Text: finalText, Iterations: iteration, Usage: totalUsage, Session: session, Done: done}, nil
}

// invokeSkill executes one tool_use block, emitting skill_start/complete/
// error progress events and returning its paired tool_result block (spec
// §4.1 step 4, §7 "Tool-invocation error"/"Unknown-tool error").
func (l *Loop) invokeSkill(ctx context.Context, tc protocol.ContentBlock, loopDetector *toolLoopState, progress ProgressFunc) protocol.ContentBlock {
	progress.emit(protocol.NewSkillStart(tc.Name, json.RawMessage(tc.Input)))

	key := loopDetector.record(tc.Name, tc.Input)

	skill, ok := l.deps.Skills.Get(tc.Name)
	if !ok {
		msg := fmt.Sprintf("Unknown skill: %q", tc.Name)
		progress.emit(protocol.NewSkillError(tc.Name, msg))
		loopDetector.recordResult(key, msg)
		return protocol.ToolResultBlock(tc.ID, msg, true)
	}

	if l.deps.Validator != nil {
		if err := l.deps.Validator.Validate(tc.Name, tc.Input); err != nil {
			msg := fmt.Sprintf("invalid arguments for %s: %v", tc.Name, err)
			progress.emit(protocol.NewSkillError(tc.Name, msg))
			loopDetector.recordResult(key, msg)
			return protocol.ToolResultBlock(tc.ID, msg, true)
		}
	}

	if skill.Kind != skills.KindExecutable || skill.Handler == nil {
		msg := fmt.Sprintf("%s is documentation-only and cannot be invoked", tc.Name)
		progress.emit(protocol.NewSkillError(tc.Name, msg))
		return protocol.ToolResultBlock(tc.ID, msg, true)
	}

	_, toolSpan := tracing.StartSpan(ctx, l.deps.Tracer, "agent.tool_call", trace.SpanKindInternal,
		attribute.String(tracing.AttrToolName, tc.Name),
		attribute.String(tracing.AttrToolCallID, tc.ID))

	callStart := time.Now()
	result, err := skill.Handler(ctx, tc.Input)
	if err != nil {
		l.deps.Metrics.RecordToolCall(tc.Name, time.Since(callStart), true)
		tracing.EndSpan(toolSpan, err)
		msg := err.Error()
		progress.emit(protocol.NewSkillError(tc.Name, msg))
		loopDetector.recordResult(key, msg)
		return protocol.ToolResultBlock(tc.ID, msg, true)
	}
	l.deps.Metrics.RecordToolCall(tc.Name, time.Since(callStart), result.IsError)
	tracing.EndSpan(toolSpan, nil, attribute.Bool(tracing.AttrToolIsError, result.IsError))

	loopDetector.recordResult(key, result.ForLLM)
	if !result.Silent {
		progress.emit(protocol.NewSkillComplete(tc.Name, result.ForLLM))
	}
	if level, msg := loopDetector.detect(tc.Name, key); level == "warning" {
		slog.Warn("agent: tool loop warning", "tool", tc.Name, "message", msg)
	}

	return protocol.ToolResultBlock(tc.ID, result.ForLLM, result.IsError)
}

// buildSystemPrompt assembles identity, tool descriptions, and retrieved
// memories (spec §4.1 step 2-3).
func (l *Loop) buildSystemPrompt(ctx context.Context, req RunRequest, progress ProgressFunc) (string, error) {
	var b strings.Builder
	b.WriteString(l.identity)
	b.WriteString("\n\n")

	if tools := l.deps.Skills.ToolDefinitions(); len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\n")
	}

	if l.deps.MemStore != nil && req.UserID != "" {
		scored, err := l.retrieveMemories(ctx, req.UserID, req.Message)
		if err != nil {
			return b.String(), err
		}
		if len(scored) > 0 {
			b.WriteString("Relevant memories:\n")
			items := make([]protocol.MemoryItem, 0, len(scored))
			now := time.Now()
			for _, sc := range scored {
				fmt.Fprintf(&b, "- (%s) %s\n", sc.Entry.Category, sc.Entry.Content)
				items = append(items, protocol.MemoryItem{Type: string(sc.Entry.Category), Subject: sc.Entry.Subject, Content: sc.Entry.Content})
				_ = l.deps.MemStore.RecordAccess(ctx, sc.Entry.ID, now)
			}
			progress.emit(protocol.NewMemoryEvent("search", items))
		}
	}

	return b.String(), nil
}

// retrieveMemories runs the hybrid retrieval described in spec §4.1 step 3.
func (l *Loop) retrieveMemories(ctx context.Context, userID, query string) ([]memory.Scored, error) {
	candidates, err := l.deps.MemStore.Search(ctx, userID, query, 50)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, e := range candidates {
		ids[i] = e.ID
	}
	relations, err := l.deps.MemStore.RelationsFor(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("relations lookup: %w", err)
	}

	vectorScores := map[string]float64{}
	if l.deps.Embed != nil && l.deps.VectorIndex != nil {
		qEmbed, err := l.deps.Embed(ctx, query)
		if err == nil {
			vectorScores, _ = l.deps.VectorIndex.Query(ctx, userID, qEmbed, len(candidates))
		}
	}

	return memory.Retrieve(ctx, candidates, relations, query, nil, vectorScores, l.retrievalCfg, l.activationCfg, time.Now()), nil
}

func (l *Loop) estimateCost(req providers.ChatRequest) float64 {
	est := providers.Usage{InputTokens: EstimateTokens(req.Messages), OutputTokens: l.maxTokens / 4}
	model := req.Model
	return l.deps.Pricing.EstimateCost(model, est)
}

func addUsage(total providers.Usage, delta providers.Usage) providers.Usage {
	total.InputTokens += delta.InputTokens
	total.OutputTokens += delta.OutputTokens
	total.CacheCreationTokens += delta.CacheCreationTokens
	total.CacheReadTokens += delta.CacheReadTokens
	return total
}

