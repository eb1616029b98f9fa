package gardener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/sessions"
)

// runDeep performs spec §4.2's deep tick: full decay scan, fusion pass,
// session summarization, enhanced forgetting, behavioral-pattern
// inference, and a goal/inner-thoughts pass gated by the proactiveness
// dial. Every sub-step logs and continues on a per-user or per-item error
// rather than aborting the whole tick.
func (g *Gardener) runDeep(ctx context.Context, now time.Time) error {
	userIDs, err := g.allUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("deep tick: list users: %w", err)
	}

	weights := memory.DefaultDecayWeights
	fusionCfg := g.fusionCfg
	fusionCfg.CrossCategory = false // deep tick fuses within-category only; sleep tick relaxes this

	for _, uid := range userIDs {
		if err := g.fullDecayUser(ctx, uid, weights, now); err != nil {
			g.log.Error("deep tick: full decay failed", "user", uid, "error", err)
		}
		if err := g.fusionPassUser(ctx, uid, fusionCfg, now); err != nil {
			g.log.Error("deep tick: fusion pass failed", "user", uid, "error", err)
		}
		if err := g.enhancedForgetting(ctx, uid, now); err != nil {
			g.log.Error("deep tick: enhanced forgetting failed", "user", uid, "error", err)
		}
		if err := g.updateTrustScore(ctx, uid, now); err != nil {
			g.log.Error("deep tick: trust score update failed", "user", uid, "error", err)
		}
		if err := g.inferBehavioralPattern(ctx, uid, now); err != nil {
			g.log.Error("deep tick: behavioral pattern inference failed", "user", uid, "error", err)
		}
		if err := g.innerThoughts(ctx, uid, now); err != nil {
			g.log.Error("deep tick: inner-thoughts pass failed", "user", uid, "error", err)
		}
	}

	g.summarizeStaleSessions(ctx, now)
	if err := g.checkGoalDeadlines(ctx, now); err != nil {
		g.log.Error("deep tick: goal deadline check failed", "error", err)
	}
	return nil
}

// updateTrustScore recomputes the user's trust-score reading (spec §4.2
// deep tick "trust-score updates") as an exponential moving average of
// Entry.Confidence across their current (IsLatest) memories — a corpus of
// confident, stable facts holds the score near 1; frequent low-confidence
// or superseded assertions pull it down.
func (g *Gardener) updateTrustScore(ctx context.Context, userID string, now time.Time) error {
	p, err := g.store.GetBehavioralPattern(ctx, userID)
	if err != nil {
		return fmt.Errorf("get behavioral pattern: %w", err)
	}
	if p == nil {
		return nil
	}

	entries, err := g.store.ListForDecay(ctx, userID, true, 0)
	if err != nil {
		return fmt.Errorf("list for decay: %w", err)
	}
	var sum float64
	var n int
	for _, e := range entries {
		if !e.IsLatest {
			continue
		}
		sum += e.Confidence
		n++
	}
	if n == 0 {
		return nil
	}
	observed := sum / float64(n)

	const smoothing = 0.1
	if p.TrustScore == 0 {
		p.TrustScore = observed // first reading: adopt outright rather than smooth from zero
	} else {
		p.TrustScore += (observed - p.TrustScore) * smoothing
	}
	p.UpdatedAt = now
	return g.store.UpsertBehavioralPattern(ctx, p)
}

// checkGoalDeadlines fires a check-in nudge for every pending goal-type
// scheduled item whose deadline has passed (spec §4.2 deep tick
// "goal-deadline check"), then marks the goal fired so it isn't re-flagged
// on the next deep tick. Runs once per tick across all users, matching
// ExpireOverdue's global-scan shape rather than refetching the pending set
// once per user.
func (g *Gardener) checkGoalDeadlines(ctx context.Context, now time.Time) error {
	pending, err := g.store.ListPendingScheduledItems(ctx, now)
	if err != nil {
		return fmt.Errorf("list pending scheduled items: %w", err)
	}
	for _, item := range pending {
		if item.Type != "goal" {
			continue
		}
		nudge := &memory.ScheduledItem{
			ID:        g.newID(),
			UserID:    item.UserID,
			Source:    memory.SourceAgent,
			Type:      "follow_up",
			Message:   fmt.Sprintf("Goal deadline reached: %q — check in on progress.", item.Message),
			TriggerAt: now,
			Status:    memory.ScheduledPending,
		}
		if err := g.lifecycle.Create(ctx, nudge); err != nil {
			g.log.Warn("deep tick: goal deadline nudge failed", "user", item.UserID, "goal", item.ID, "error", err)
			continue
		}
		if err := g.lifecycle.Fire(ctx, item, now); err != nil {
			g.log.Warn("deep tick: goal deadline fire failed", "user", item.UserID, "goal", item.ID, "error", err)
		}
	}
	return nil
}

func (g *Gardener) fullDecayUser(ctx context.Context, userID string, weights memory.DecayWeights, now time.Time) error {
	entries, err := g.store.ListForDecay(ctx, userID, true, 0)
	if err != nil {
		return fmt.Errorf("list for decay: %w", err)
	}
	for _, e := range entries {
		newProminence := memory.Prominence(e, weights, now)
		if !memory.ProminenceDelta(e.Prominence, newProminence) {
			continue
		}
		if err := g.store.UpdateProminence(ctx, e.ID, newProminence, now); err != nil {
			return fmt.Errorf("update prominence for %s: %w", e.ID, err)
		}
	}
	return nil
}

// fusionPassUser runs spec §4.2's "find clusters, fuse one cluster" over
// userID's dormant band.
func (g *Gardener) fusionPassUser(ctx context.Context, userID string, cfg memory.FusionConfig, now time.Time) error {
	if g.fusionLLM == nil {
		return nil // fusion needs an LLM; skip quietly when none is wired
	}
	candidates, err := g.store.ListByBand(ctx, userID, cfg.MinProminence, cfg.MaxProminence)
	if err != nil {
		return fmt.Errorf("list by band: %w", err)
	}

	ids := make([]string, len(candidates))
	for i, e := range candidates {
		ids[i] = e.ID
	}
	relations, err := g.store.RelationsFor(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("relations lookup: %w", err)
	}

	clusters := memory.FindClusters(candidates, relations, cfg)
	for _, cl := range clusters {
		derived, derivesRelations, sourceIDs, err := memory.FuseCluster(ctx, g.fusionLLM, cl, userID, g.newID, now)
		if err != nil {
			g.log.Warn("fusion: cluster failed", "user", userID, "error", err)
			continue
		}
		if derived == nil {
			continue // rejected per spec §7, not an error
		}
		if err := g.store.CreateEntry(ctx, derived); err != nil {
			g.log.Warn("fusion: create derived entry failed", "user", userID, "error", err)
			continue
		}
		for _, r := range derivesRelations {
			if err := g.store.CreateRelation(ctx, r); err != nil {
				g.log.Warn("fusion: create relation failed", "user", userID, "error", err)
			}
		}
		for _, id := range sourceIDs {
			if err := g.store.MarkSuperseded(ctx, id); err != nil {
				g.log.Warn("fusion: mark superseded failed", "user", userID, "entry", id, "error", err)
			}
		}
	}
	return nil
}

// enhancedForgetting prunes archived-band memories past the configured
// retention window (spec §4.2 deep tick "prune memories in archived status
// beyond retention").
func (g *Gardener) enhancedForgetting(ctx context.Context, userID string, now time.Time) error {
	days := g.cfg.ArchiveRetentionDays
	if days <= 0 {
		return nil
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	archived, err := g.store.ListArchived(ctx, userID, cutoff)
	if err != nil {
		return fmt.Errorf("list archived: %w", err)
	}
	for _, e := range archived {
		if err := g.store.DeleteEntry(ctx, e.ID); err != nil {
			g.log.Warn("enhanced forgetting: delete failed", "user", userID, "entry", e.ID, "error", err)
		}
	}
	return nil
}

// inferBehavioralPattern smooths the user's affect/cadence state from their
// current reading (spec §4.2 "behavioral-pattern inference from recent
// session summaries"). A full NLU-driven sentiment pass is out of scope
// here (the Gardener has no direct transcript access beyond session
// summaries); this applies exponential smoothing toward the neutral
// baseline so long-idle users drift back rather than staying pinned at
// whatever affect their last active session left behind.
func (g *Gardener) inferBehavioralPattern(ctx context.Context, userID string, now time.Time) error {
	p, err := g.store.GetBehavioralPattern(ctx, userID)
	if err != nil {
		return fmt.Errorf("get behavioral pattern: %w", err)
	}
	if p == nil {
		return nil
	}
	const smoothing = 0.1
	p.Valence += (0 - p.Valence) * smoothing
	p.Arousal += (0 - p.Arousal) * smoothing
	p.UpdatedAt = now
	return g.store.UpsertBehavioralPattern(ctx, p)
}

// innerThoughts evaluates whether userID's current state warrants a new
// follow_up scheduled item, gated by their proactiveness dial (spec §4.2
// "inner-thoughts evaluation that may create follow_up scheduled items,
// gated by the user's proactiveness dial").
func (g *Gardener) innerThoughts(ctx context.Context, userID string, now time.Time) error {
	p, err := g.store.GetBehavioralPattern(ctx, userID)
	if err != nil {
		return fmt.Errorf("get behavioral pattern: %w", err)
	}
	if p == nil || p.Proactiveness == memory.ProactivenessConservative {
		return nil
	}

	threshold := -0.4
	if p.Proactiveness == memory.ProactivenessEager {
		threshold = -0.15
	}
	if p.Valence >= threshold {
		return nil
	}

	item := &memory.ScheduledItem{
		ID:        g.newID(),
		UserID:    userID,
		Source:    memory.SourceAgent,
		Type:      "follow_up",
		Message:   "Check in — the last few conversations read as lower-energy than usual.",
		TriggerAt: now.Add(6 * time.Hour),
		Status:    memory.ScheduledPending,
	}
	return g.lifecycle.Create(ctx, item)
}

// summarizeStaleSessions summarizes sessions older than the configured
// threshold and not yet summarized (spec §4.2 deep tick "session
// summarization for sessions older than a threshold and not yet
// summarized").
func (g *Gardener) summarizeStaleSessions(ctx context.Context, now time.Time) {
	if g.fusionLLM == nil {
		return
	}
	ageThreshold := time.Duration(g.cfg.SessionSummaryAge) * time.Hour
	if ageThreshold <= 0 {
		ageThreshold = 24 * time.Hour
	}

	for _, info := range g.sessions.List("") {
		if sessions.IsSubagentKey(info.Key) || sessions.IsCronKey(info.Key) {
			continue
		}
		if now.Sub(info.Updated) < ageThreshold {
			continue
		}
		if !g.sessions.MemoryFlushPending(info.Key) {
			continue // already summarized since the last compaction
		}
		history := g.sessions.History(info.Key)
		if len(history) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString("Summarize this conversation in 2-3 sentences, preserving names, decisions, and open threads:\n\n")
		for _, m := range history {
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Text())
			b.WriteString("\n")
		}
		summary, err := g.fusionLLM.Summarize(ctx, b.String())
		if err != nil {
			g.log.Warn("deep tick: session summarization failed", "session", info.Key, "error", err)
			continue
		}
		g.sessions.SetSummary(info.Key, summary)
		g.sessions.SetMemoryFlushDone(info.Key)
		if err := g.sessions.Save(info.Key); err != nil {
			g.log.Warn("deep tick: session save after summarization failed", "session", info.Key, "error", err)
		}
	}
}
