// Package gardener implements the Memory Consolidation Engine's three-tier
// cadence (spec §4.2): a light tick on a short interval, a deep tick every
// N light ticks, and a sleep tick gated to quiet hours. Grounded on the
// teacher's internal/scheduler cron wiring (goclaw cmd/bot.go), generalized
// from a single polling job into three cooperating tiers driven by
// github.com/robfig/cron/v3 rather than goclaw's bespoke ticker loop.
package gardener

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/metrics"
	"github.com/arialabs/aria/internal/sessions"
)

// Gardener drives the light/deep/sleep cadence over every user known to the
// store. One Gardener runs per process (spec §5 "the Gardener runs on its
// own timer-driven task").
type Gardener struct {
	cfg       config.GardenerConfig
	fusionCfg memory.FusionConfig
	store     memory.Store
	sessions  *sessions.Manager
	fusionLLM memory.Summarizer
	embed     memory.EmbedFunc
	vectorIdx memory.VectorIndex
	log       *slog.Logger
	metrics   *metrics.Metrics

	lifecycle *memory.ScheduledItemLifecycle
	newID     func() string

	cron *cron.Cron

	tickCounter int64 // guards deep/sleep cadence and re-entrancy (spec §5)
	lightMu     atomic.Bool
}

// Deps bundles the Gardener's collaborators.
type Deps struct {
	Store     memory.Store
	Sessions  *sessions.Manager
	FusionLLM memory.Summarizer
	FusionCfg memory.FusionConfig
	Embed     memory.EmbedFunc
	VectorIdx memory.VectorIndex
	NewID     func() string
	Log       *slog.Logger
	Metrics   *metrics.Metrics
}

// New builds a Gardener from cfg and deps, applying spec defaults for any
// zero-valued cfg fields.
func New(cfg config.GardenerConfig, deps Deps) *Gardener {
	if cfg.LightIntervalSeconds <= 0 {
		cfg.LightIntervalSeconds = 300
	}
	if cfg.DeepTickMultiplier <= 0 {
		cfg.DeepTickMultiplier = 72
	}
	if cfg.SleepTickMultiplier <= 0 {
		cfg.SleepTickMultiplier = 288
	}
	if cfg.ExpireGraceMinutes <= 0 {
		cfg.ExpireGraceMinutes = 60
	}
	if cfg.LightBatchCap <= 0 {
		cfg.LightBatchCap = 500
	}
	if cfg.QuietHours.Start == 0 && cfg.QuietHours.End == 0 {
		cfg.QuietHours = config.QuietHours{Start: 2, End: 5}
	}
	fusionCfg := deps.FusionCfg
	if fusionCfg.MinClusterSize == 0 && fusionCfg.MaxClusters == 0 {
		fusionCfg = memory.FusionConfig{MinClusterSize: 3, MaxClusters: 5, MinProminence: 0.1, MaxProminence: 0.5}
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Gardener{
		cfg:       cfg,
		fusionCfg: fusionCfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		fusionLLM: deps.FusionLLM,
		embed:     deps.Embed,
		vectorIdx: deps.VectorIdx,
		log:       log,
		metrics:   deps.Metrics,
		lifecycle: memory.NewScheduledItemLifecycle(deps.Store, time.Duration(cfg.ExpireGraceMinutes)*time.Minute),
		newID:     deps.NewID,
	}
}

// Start schedules the light tick on cron and blocks until ctx is cancelled,
// at which point the cron scheduler is stopped. Deep and sleep ticks are
// not scheduled independently — they ride the light tick's cadence per
// spec §4.2 ("every ~6 hours, i.e. every 72 light ticks").
func (g *Gardener) Start(ctx context.Context) error {
	g.cron = cron.New(cron.WithSeconds())
	spec := "@every " + (time.Duration(g.cfg.LightIntervalSeconds) * time.Second).String()
	if _, err := g.cron.AddFunc(spec, func() { g.RunTick(ctx, time.Now()) }); err != nil {
		return err
	}
	g.cron.Start()
	<-ctx.Done()
	stopCtx := g.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// RunTick runs exactly one light tick and, if the tick counter's cadence
// calls for it, a deep and/or sleep tick layered on top (spec §4.2). It is
// re-entrancy guarded: an overlapping call while a tick is already running
// is dropped and logged, never queued (spec §5 "light/deep/sleep ticks do
// not overlap with themselves").
func (g *Gardener) RunTick(ctx context.Context, now time.Time) {
	if !g.lightMu.CompareAndSwap(false, true) {
		g.log.Warn("gardener: tick skipped, previous tick still running")
		return
	}
	defer g.lightMu.Store(false)

	n := atomic.AddInt64(&g.tickCounter, 1)

	lightStart := time.Now()
	if err := g.runLight(ctx, now); err != nil {
		g.log.Error("gardener: light tick failed", "error", err)
	}
	g.metrics.RecordGardenerTick("light", time.Since(lightStart))

	if n%int64(g.cfg.DeepTickMultiplier) == 0 {
		deepStart := time.Now()
		if err := g.runDeep(ctx, now); err != nil {
			g.log.Error("gardener: deep tick failed", "error", err)
		}
		g.metrics.RecordGardenerTick("deep", time.Since(deepStart))
	}

	if n%int64(g.cfg.SleepTickMultiplier) == 0 && g.inQuietHours(now) {
		sleepStart := time.Now()
		if err := g.runSleep(ctx, now); err != nil {
			g.log.Error("gardener: sleep tick failed", "error", err)
		}
		g.metrics.RecordGardenerTick("sleep", time.Since(sleepStart))
	}
}

// inQuietHours reports whether now's local hour falls within the
// configured quiet-hours window, handling the wrap-around case (e.g.
// 22 → 5) per spec §4.2's sleep-tick gating.
func (g *Gardener) inQuietHours(now time.Time) bool {
	start, end := g.cfg.QuietHours.Start, g.cfg.QuietHours.End
	hour := now.Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (g *Gardener) allUserIDs(ctx context.Context) ([]string, error) {
	// The Store's per-user scans (ListForDecay, ListByBand, ...) all take
	// userID explicitly; the gardener itself has no global "all users" Store
	// call (spec §1 component contract keeps the Store narrow), so it
	// derives the active set from in-memory session keys, which already
	// carry "user:{userID}:..." prefixes (internal/sessions/key.go).
	seen := make(map[string]bool)
	for _, info := range g.sessions.List("") {
		if uid, _ := sessions.ParseUserKey(info.Key); uid != "" {
			seen[uid] = true
		}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	return out, nil
}
