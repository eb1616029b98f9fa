package gardener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/sessions"
)

// runSleep performs spec §4.2's sleep tick: a wider, cross-category dream
// cycle, self-reflection into insight memories, and a gap scanner that
// triages diagnosed gaps into new scheduled items through the
// proactiveness dial. Only runs during the user's configured quiet hours
// (enforced by the caller, RunTick).
func (g *Gardener) runSleep(ctx context.Context, now time.Time) error {
	userIDs, err := g.allUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("sleep tick: list users: %w", err)
	}

	dreamCfg := g.fusionCfg
	dreamCfg.MinProminence = 0
	dreamCfg.MaxProminence = 0.7 // wider band than the deep tick's dormant-only fuse
	dreamCfg.CrossCategory = true

	for _, uid := range userIDs {
		if err := g.fusionPassUser(ctx, uid, dreamCfg, now); err != nil {
			g.log.Error("sleep tick: dream cycle failed", "user", uid, "error", err)
		}
		if err := g.selfReflect(ctx, uid, now); err != nil {
			g.log.Error("sleep tick: self-reflection failed", "user", uid, "error", err)
		}
		if err := g.gapScan(ctx, uid, now); err != nil {
			g.log.Error("sleep tick: gap scan failed", "user", uid, "error", err)
		}
	}
	return nil
}

// selfReflect synthesizes recent session summaries into one insight memory
// per user (spec §4.2 "synthesize recent session summaries into one or
// more insight memories").
func (g *Gardener) selfReflect(ctx context.Context, userID string, now time.Time) error {
	if g.fusionLLM == nil {
		return nil
	}
	prefix := "user:" + userID + ":"
	var summaries []string
	for _, info := range g.sessions.List(userID) {
		if sessions.IsSubagentKey(info.Key) || sessions.IsCronKey(info.Key) {
			continue
		}
		if !strings.HasPrefix(info.Key, prefix) {
			continue
		}
		if now.Sub(info.Updated) > 7*24*time.Hour {
			continue
		}
		if s := g.sessionSummary(info.Key); s != "" {
			summaries = append(summaries, s)
		}
	}
	if len(summaries) < 2 {
		return nil // not enough material for a synthesis worth making
	}

	var b strings.Builder
	b.WriteString("Reflect on these recent conversation summaries and state one concise insight " +
		"about the person's goals, habits, or concerns. Respond with just the insight sentence:\n\n")
	for _, s := range summaries {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}

	insight, err := g.fusionLLM.Summarize(ctx, b.String())
	if err != nil {
		return fmt.Errorf("self-reflection llm call: %w", err)
	}
	insight = strings.TrimSpace(insight)
	if insight == "" {
		return nil
	}

	entry := &memory.Entry{
		ID:                g.newID(),
		UserID:            userID,
		Content:           insight,
		Category:          memory.CategoryInsight,
		MemoryType:        memory.TypeDerived,
		Importance:        5,
		Confidence:        0.6,
		IsLatest:          true,
		Prominence:        0.6,
		DocumentTimestamp: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return g.store.CreateEntry(ctx, entry)
}

// sessionSummary returns a session's stored summary via the session
// manager's in-memory cache; Persistence-backed summaries are loaded at
// Manager construction (internal/sessions.NewManager), so this never hits
// storage directly.
func (g *Gardener) sessionSummary(key string) string {
	return g.sessions.Summary(key)
}

// gapCandidate is one diagnosed gap before it becomes a scheduled item:
// a stretch of inactivity, a goal nearing its deadline, or an unresolved
// conversation thread. sourceID identifies what produced it, for dedup.
type gapCandidate struct {
	sourceID  string
	message   string
	context   map[string]any
	triggerAt time.Time
}

// gapScan detects stale goals, unresolved threads, and behavioral
// anomalies, triaging them into new scheduled items gated by the user's
// proactiveness dial (spec §4.2 "Gap scanner"). A full NLU-driven gap
// detector is out of scope for the core (spec §1 Non-goals); this combines
// the gaps the core can detect purely from its own state — inactivity,
// goals approaching deadline, and summarization-pending threads gone
// quiet — then dedups the resulting candidates by (sourceId, word-overlap)
// before turning survivors into scheduled items, so a reworded restatement
// of the same gap from the same source doesn't fire twice.
func (g *Gardener) gapScan(ctx context.Context, userID string, now time.Time) error {
	p, err := g.store.GetBehavioralPattern(ctx, userID)
	if err != nil {
		return fmt.Errorf("get behavioral pattern: %w", err)
	}
	if p == nil || p.Proactiveness == memory.ProactivenessConservative {
		return nil
	}

	var candidates []gapCandidate
	if c, ok := g.inactivityGapCandidate(userID, p, now); ok {
		candidates = append(candidates, c)
	}
	goalCandidates, err := g.staleGoalCandidates(ctx, userID, now)
	if err != nil {
		g.log.Warn("sleep tick: stale goal scan failed", "user", userID, "error", err)
	} else {
		candidates = append(candidates, goalCandidates...)
	}
	candidates = append(candidates, g.unresolvedThreadCandidates(userID, now)...)

	for _, c := range dedupeGapCandidates(candidates) {
		item := &memory.ScheduledItem{
			ID:        g.newID(),
			UserID:    userID,
			Source:    memory.SourceAgent,
			Type:      "follow_up",
			Message:   c.message,
			Context:   c.context,
			TriggerAt: c.triggerAt,
			Status:    memory.ScheduledPending,
		}
		if err := g.lifecycle.Create(ctx, item); err != nil {
			g.log.Warn("sleep tick: gap action create failed", "user", userID, "source", c.sourceID, "error", err)
		}
	}
	return nil
}

// inactivityGapCandidate flags a long stretch of inactivity following a
// prior active conversation.
func (g *Gardener) inactivityGapCandidate(userID string, p *memory.BehavioralPattern, now time.Time) (gapCandidate, bool) {
	channel, peerID := g.sessions.LastUsedChannel(userID)
	if channel == "" {
		return gapCandidate{}, false
	}
	idleDays := now.Sub(p.UpdatedAt).Hours() / 24
	if idleDays < 10 {
		return gapCandidate{}, false
	}
	return gapCandidate{
		sourceID:  "inactivity:" + userID,
		message:   fmt.Sprintf("Reach out — it's been %.0f days quiet on %s.", idleDays, channel),
		context:   map[string]any{"channel": channel, "peerId": peerID},
		triggerAt: now.Add(time.Hour),
	}, true
}

// staleGoalCandidates flags the user's pending goal-type scheduled items
// due within the next day, so a proactive nudge can land before the
// deadline rather than only after it's missed (the deep tick's
// checkGoalDeadlines handles the already-missed case).
func (g *Gardener) staleGoalCandidates(ctx context.Context, userID string, now time.Time) ([]gapCandidate, error) {
	pending, err := g.store.ListPendingScheduledItems(ctx, now.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list pending scheduled items: %w", err)
	}
	var candidates []gapCandidate
	for _, item := range pending {
		if item.UserID != userID || item.Type != "goal" {
			continue
		}
		candidates = append(candidates, gapCandidate{
			sourceID:  "goal:" + item.ID,
			message:   fmt.Sprintf("Goal deadline approaching: %q — worth a nudge?", item.Message),
			context:   map[string]any{"goalId": item.ID},
			triggerAt: now.Add(time.Hour),
		})
	}
	return candidates, nil
}

// unresolvedThreadCandidates flags sessions whose last exchange still
// awaits a memory-flush summarization and has sat quiet for days — an
// unresolved thread, distinct from general inactivity.
func (g *Gardener) unresolvedThreadCandidates(userID string, now time.Time) []gapCandidate {
	prefix := "user:" + userID + ":"
	var candidates []gapCandidate
	for _, info := range g.sessions.List(userID) {
		if sessions.IsSubagentKey(info.Key) || sessions.IsCronKey(info.Key) {
			continue
		}
		if !strings.HasPrefix(info.Key, prefix) {
			continue
		}
		if !g.sessions.MemoryFlushPending(info.Key) {
			continue
		}
		idle := now.Sub(info.Updated)
		if idle < 3*24*time.Hour {
			continue
		}
		candidates = append(candidates, gapCandidate{
			sourceID:  "thread:" + info.Key,
			message:   fmt.Sprintf("Unresolved thread on %s went quiet %.0f days ago — worth following up?", info.Key, idle.Hours()/24),
			context:   map[string]any{"session": info.Key},
			triggerAt: now.Add(time.Hour),
		})
	}
	return candidates
}

// dedupeGapCandidates drops any candidate whose sourceID matches an
// already-kept candidate with word-overlap >= 0.8 against its message
// (spec §8 "Dedup of gap-action candidates by (sourceId, word-overlap ≥
// 0.8) is idempotent"). Each candidate is compared only against survivors
// already kept, so re-running the dedup over its own output is a no-op.
func dedupeGapCandidates(candidates []gapCandidate) []gapCandidate {
	var kept []gapCandidate
	for _, c := range candidates {
		dup := false
		for _, k := range kept {
			if k.sourceID == c.sourceID && wordOverlap(k.message, c.message) >= 0.8 {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

// wordOverlap returns the Jaccard similarity of a and b's lowercased word
// sets, in [0,1].
func wordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
