package gardener

import (
	"context"
	"fmt"
	"time"

	"github.com/arialabs/aria/internal/memory"
)

// runLight performs spec §4.2's light tick: incremental decay recompute
// over recently-touched or long-archived-candidate memories, scheduled-item
// expiry, and a database health ping. Bounded to cfg.LightBatchCap entries
// for the whole tick, not per user — a running budget is decremented as
// each user is scanned and the tick stops pulling more work once it hits
// zero, so an instance with many active users still does bounded work per
// tick.
func (g *Gardener) runLight(ctx context.Context, now time.Time) error {
	if err := g.store.Ping(ctx); err != nil {
		return fmt.Errorf("light tick: database health ping: %w", err)
	}

	userIDs, err := g.allUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("light tick: list users: %w", err)
	}

	weights := memory.DefaultDecayWeights
	budget := g.cfg.LightBatchCap
	for _, uid := range userIDs {
		if budget <= 0 {
			break
		}
		n, err := g.lightDecayUser(ctx, uid, weights, now, budget)
		if err != nil {
			g.log.Error("light tick: decay scan failed", "user", uid, "error", err)
		}
		budget -= n
	}

	if _, err := g.lifecycle.ExpireOverdue(ctx, now); err != nil {
		g.log.Error("light tick: expire scheduled items failed", "error", err)
	}
	return nil
}

// lightDecayUser recomputes prominence for one user's light-tick eligible
// memories (spec §4.2 "select memories updated or accessed within the last
// 5 min, or older than 1 day with prominence above the archive floor"),
// writing back only entries whose prominence moved by more than 0.01, and
// fetching at most cap entries (the caller's remaining tick-wide budget).
// Returns the number of entries it pulled, so the caller can decrement its
// budget.
func (g *Gardener) lightDecayUser(ctx context.Context, userID string, weights memory.DecayWeights, now time.Time, cap int) (int, error) {
	entries, err := g.store.ListForDecay(ctx, userID, false, cap)
	if err != nil {
		return 0, fmt.Errorf("list for decay: %w", err)
	}
	for _, e := range entries {
		newProminence := memory.Prominence(e, weights, now)
		if !memory.ProminenceDelta(e.Prominence, newProminence) {
			continue
		}
		if err := g.store.UpdateProminence(ctx, e.ID, newProminence, now); err != nil {
			return len(entries), fmt.Errorf("update prominence for %s: %w", e.ID, err)
		}
	}
	return len(entries), nil
}
