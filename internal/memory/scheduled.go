package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// ScheduledItemLifecycle implements the create/fire/expire/cancel
// transitions of spec §3 "Scheduled Item" and §4.2 light-tick expiry,
// independent of any particular Store backend.
type ScheduledItemLifecycle struct {
	store        Store
	expireGrace  time.Duration
	gron         gronx.Gronx
}

// NewScheduledItemLifecycle builds a lifecycle helper bound to store, with
// the grace horizon after which an unfired pending item is expired (spec
// §3 "expired if past a grace horizon unfired").
func NewScheduledItemLifecycle(store Store, expireGrace time.Duration) *ScheduledItemLifecycle {
	return &ScheduledItemLifecycle{store: store, expireGrace: expireGrace, gron: gronx.New()}
}

// Create inserts a new pending scheduled item. If item.Context carries a
// "recur" key with a cron expression, the trigger timestamp is validated
// against it via gronx (spec §3 allows "agent"/"user" sourced reminders
// that recur; the spec's data model does not itself mandate cron syntax,
// but the teacher's cron-capable reminder surface grounds this addition —
// see SPEC_FULL.md §4 supplemented features).
func (l *ScheduledItemLifecycle) Create(ctx context.Context, item *ScheduledItem) error {
	if item.Status == "" {
		item.Status = ScheduledPending
	}
	if expr, ok := item.Context["recur"].(string); ok && expr != "" {
		if !gronx.IsValid(expr) {
			return fmt.Errorf("invalid recurrence expression %q", expr)
		}
	}
	return l.store.CreateScheduledItem(ctx, item)
}

// NextRecurrence returns the next minute strictly after after at which expr
// is due, if item.Context carries a "recur" cron expression; ok is false
// otherwise. Scans minute-by-minute up to one year out, matching gronx's
// IsDue-per-instant contract rather than relying on a next-tick helper.
func (l *ScheduledItemLifecycle) NextRecurrence(item *ScheduledItem, after time.Time) (next time.Time, ok bool) {
	expr, has := item.Context["recur"].(string)
	if !has || expr == "" {
		return time.Time{}, false
	}
	cursor := after.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < 525600; i++ {
		due, err := l.gron.IsDue(expr, cursor)
		if err != nil {
			return time.Time{}, false
		}
		if due {
			return cursor, true
		}
		cursor = cursor.Add(time.Minute)
	}
	return time.Time{}, false
}

// Fire transitions item to `fired`, recording firedAt (spec §6
// "Scheduled-item fire events"). It returns only the store's error; it does
// not build or deliver a proactive payload.
func (l *ScheduledItemLifecycle) Fire(ctx context.Context, item *ScheduledItem, firedAt time.Time) error {
	return l.store.MarkFired(ctx, item.ID, firedAt)
}

// ExpireOverdue finds pending items whose trigger time plus the grace
// horizon has passed and marks them expired (spec §4.2 Light tick).
// Returns the count expired.
func (l *ScheduledItemLifecycle) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-l.expireGrace)
	pending, err := l.store.ListPendingScheduledItems(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list pending scheduled items: %w", err)
	}
	n := 0
	for _, item := range pending {
		if item.TriggerAt.Before(cutoff) {
			if err := l.store.MarkExpired(ctx, item.ID); err != nil {
				return n, fmt.Errorf("expire scheduled item %s: %w", item.ID, err)
			}
			n++
		}
	}
	return n, nil
}

// DueItems returns scheduled items whose trigger time has arrived and that
// are still pending, ready to be fired by the gardener's light tick.
func (l *ScheduledItemLifecycle) DueItems(ctx context.Context, now time.Time) ([]*ScheduledItem, error) {
	return l.store.ListDueScheduledItems(ctx, now)
}

// Cancel transitions item to `cancelled` regardless of current status,
// used when a user retracts a reminder/follow-up.
func (l *ScheduledItemLifecycle) Cancel(ctx context.Context, id string) error {
	return l.store.CancelScheduledItem(ctx, id)
}
