package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// BudgetConfig configures the Budget Guard (spec §4.4).
type BudgetConfig struct {
	DailyLimit      *float64
	MonthlyLimit    *float64
	WarningFraction float64 // default 0.75
}

// DefaultBudgetConfig matches spec defaults.
var DefaultBudgetConfig = BudgetConfig{WarningFraction: 0.75}

// BudgetExceededError is returned when a call would push spend past a
// configured limit; its message always mentions which window (spec §7
// "reason mentions daily or monthly").
type BudgetExceededError struct {
	Window string // "daily" or "monthly"
	Spent  float64
	Limit  float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: spent %.2f of %.2f limit", e.Window, e.Spent, e.Limit)
}

// BudgetGuard checks estimated cost against daily/monthly spend before a
// call proceeds, and emits a soft warning via a rate-limited logger once
// usage crosses WarningFraction so repeated near-limit calls don't flood
// logs (spec §4.4 "Budget guard"). The warning cadence itself is throttled
// with golang.org/x/time/rate (pack: goclaw), matching the teacher's use
// of a token bucket for its gateway RateLimiter.
type BudgetGuard struct {
	cfg         BudgetConfig
	costStore   CostStore
	warnLimiter *rate.Limiter
	log         *slog.Logger
}

// NewBudgetGuard builds a guard. log defaults to slog.Default() if nil.
func NewBudgetGuard(cfg BudgetConfig, costStore CostStore, log *slog.Logger) *BudgetGuard {
	if cfg.WarningFraction <= 0 {
		cfg.WarningFraction = DefaultBudgetConfig.WarningFraction
	}
	if log == nil {
		log = slog.Default()
	}
	return &BudgetGuard{
		cfg:         cfg,
		costStore:   costStore,
		warnLimiter: rate.NewLimiter(rate.Every(time.Minute), 1),
		log:         log,
	}
}

// Check verifies estimatedCost would not push daily/monthly spend over its
// configured limit, blocking with a BudgetExceededError when it would, and
// logging a rate-limited warning when usage crosses WarningFraction of
// either limit (spec §4.4, §8 boundary: "exactly at the warning threshold
// emits a warning but does not block").
func (g *BudgetGuard) Check(ctx context.Context, estimatedCost float64, now time.Time) error {
	if g.cfg.DailyLimit != nil {
		dayStart := now.Truncate(24 * time.Hour)
		spent, err := g.costStore.SpentSince(ctx, dayStart)
		if err != nil {
			g.log.Warn("budget guard: daily spend lookup failed", "error", err)
		} else if err := g.checkWindow("daily", spent, estimatedCost, *g.cfg.DailyLimit); err != nil {
			return err
		}
	}
	if g.cfg.MonthlyLimit != nil {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		spent, err := g.costStore.SpentSince(ctx, monthStart)
		if err != nil {
			g.log.Warn("budget guard: monthly spend lookup failed", "error", err)
		} else if err := g.checkWindow("monthly", spent, estimatedCost, *g.cfg.MonthlyLimit); err != nil {
			return err
		}
	}
	return nil
}

func (g *BudgetGuard) checkWindow(window string, spent, estimatedCost, limit float64) error {
	projected := spent + estimatedCost
	if projected > limit {
		return &BudgetExceededError{Window: window, Spent: projected, Limit: limit}
	}
	if limit > 0 && projected >= limit*g.cfg.WarningFraction {
		if g.warnLimiter.Allow() {
			g.log.Warn("budget guard: approaching limit", "window", window, "spent", projected, "limit", limit)
		}
	}
	return nil
}
