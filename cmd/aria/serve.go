package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/arialabs/aria/internal/agent"
	"github.com/arialabs/aria/internal/bus"
	"github.com/arialabs/aria/internal/channels"
	"github.com/arialabs/aria/internal/channels/discord"
	"github.com/arialabs/aria/internal/channels/telegram"
	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/gardener"
	"github.com/arialabs/aria/internal/gateway"
	"github.com/arialabs/aria/internal/httpapi"
	"github.com/arialabs/aria/internal/mcp"
	"github.com/arialabs/aria/internal/memory"
	"github.com/arialabs/aria/internal/metrics"
	"github.com/arialabs/aria/internal/providers"
	"github.com/arialabs/aria/internal/sessions"
	"github.com/arialabs/aria/internal/skills"
	"github.com/arialabs/aria/internal/skills/builtin"
	"github.com/arialabs/aria/internal/store"
	"github.com/arialabs/aria/internal/store/file"
	"github.com/arialabs/aria/internal/store/pg"
	"github.com/arialabs/aria/internal/subagent"
	"github.com/arialabs/aria/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Aria gateway (WebSocket, HTTP, channels, gardener)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// coreStack bundles every wired-up component runServe assembles, so the
// individual build* helpers stay small and testable in isolation.
type coreStack struct {
	cfg        *config.Config
	msgBus     *bus.MessageBus
	memStore   memory.Store
	sessionMgr *sessions.Manager
	registry   *skills.Registry
	router     *providers.Router
	ladder     *providers.DegradationLadder
	budget     *providers.BudgetGuard
	pricing    providers.PricingTable
	costStore  providers.CostStore
	announcer  subagent.Announcer
	embed      memory.EmbedFunc
	vectorIdx  memory.VectorIndex
	loop       *agent.Loop
	scheduler  *subagent.Scheduler
	gardener   *gardener.Gardener
	channelMgr *channels.Manager
	metrics    *metrics.Metrics
	mcpMgr     *mcp.Manager
	tracerShut tracing.Shutdown
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := config.NewWatcher(cfgPath, cfg, slog.Default()); err != nil {
		slog.Warn("serve: config hot-reload disabled", "error", err)
	}

	_, tracerShutdown, err := tracing.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		slog.Warn("serve: tracing disabled", "error", err)
		tracerShutdown = func(context.Context) error { return nil }
	}

	workspace := config.ExpandHome(cfg.Agent.Workspace)
	if !filepath.IsAbs(workspace) {
		if abs, err := filepath.Abs(workspace); err == nil {
			workspace = abs
		}
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	stack, err := buildCoreStack(context.Background(), cfg, workspace)
	if err != nil {
		return fmt.Errorf("build core stack: %w", err)
	}
	stack.tracerShut = tracerShutdown

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := stack.mcpMgr.Start(ctx); err != nil {
		slog.Warn("serve: some MCP servers failed to connect", "error", err)
	}

	server := gateway.NewServer(cfg, stack.msgBus, stack.loop)
	server.AddRoutes(func(r chi.Router) {
		httpapi.RegisterCosts(r, &httpapi.CostsHandler{Store: stack.costStore, Pricing: stack.pricing, Budget: cfg.Providers.Budget})
		httpapi.RegisterFiles(r, &httpapi.FilesHandler{Workspace: workspace})
		r.Handle("/metrics", stack.metrics.Handler())
	})

	errCh := make(chan error, 3)

	go func() { errCh <- server.Start(ctx) }()
	go func() { errCh <- stack.gardener.Start(ctx) }()
	go func() { errCh <- stack.channelMgr.StartAll(ctx) }()

	slog.Info("aria: serving", "workspace", workspace, "managed", cfg.IsManagedMode())

	select {
	case <-ctx.Done():
		slog.Info("aria: shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("aria: component failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = stack.channelMgr.StopAll(shutdownCtx)
	stack.mcpMgr.Stop()
	if err := stack.tracerShut(shutdownCtx); err != nil {
		slog.Warn("serve: tracer shutdown failed", "error", err)
	}

	return nil
}

// buildCoreStack wires every component in the leaves-first dependency
// order spec.md §2's component table lays out: stores, then the Provider
// Router/ladder, then the Skill Registry, then the Agent Turn Engine and
// Sub-Agent Scheduler that sit on top of both, then the Gardener and
// Channel Fabric.
func buildCoreStack(ctx context.Context, cfg *config.Config, workspace string) (*coreStack, error) {
	s := &coreStack{cfg: cfg, msgBus: bus.NewMessageBus(256), metrics: metrics.New("aria")}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	if err := wireStores(ctx, cfg, workspace, s); err != nil {
		return nil, err
	}

	s.embed = memory.EmbedFunc(nil)
	vectorIdx, err := memory.NewChromemIndex(filepath.Join(workspace, "vectors.db"), true)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	s.vectorIdx = vectorIdx

	wireProviders(cfg, rdb, s)

	s.registry = skills.NewRegistry()
	builtin.RegisterAll(s.registry, workspace, 30*time.Second)

	s.mcpMgr = mcp.NewManager(s.registry, cfg.MCP)

	if rdb != nil {
		s.announcer = subagent.NewRedisAnnouncer(rdb)
	} else {
		s.announcer = subagent.NewInProcessAnnouncer()
	}

	s.scheduler = subagent.NewScheduler(cfg.Subagents, subagent.Deps{
		Sessions:    s.sessionMgr,
		Registry:    s.registry,
		MemStore:    s.memStore,
		Embed:       s.embed,
		VectorIndex: s.vectorIdx,
		Router:      s.router,
		CostStore:   s.costStore,
		Pricing:     s.pricing,
		Announcer:   s.announcer,
		Metrics:     s.metrics,
	})

	// The spawn skill is registered after the registry's builtins so its
	// deny-list name (subagent_spawn_wait) already exists when
	// skills.DeriveCapabilitySurface filters a child's capability surface,
	// and after the Scheduler so the handler has something to call.
	s.registry.Register(builtin.SpawnerSkill(schedulerSpawner{s.scheduler}))

	validator, err := skills.NewValidator(s.registry)
	if err != nil {
		return nil, fmt.Errorf("build skill validator: %w", err)
	}

	ctxMgr := agent.NewContextManager(*derefPruning(cfg.Agent.ContextPruning), cfg.Agent.ContextWindow)

	s.loop = agent.NewLoop(agent.Deps{
		Sessions:    s.sessionMgr,
		MemStore:    s.memStore,
		Embed:       s.embed,
		VectorIndex: s.vectorIdx,
		Skills:      skills.NewView(s.registry, skills.AllowAll),
		Validator:   validator,
		Ladder:      s.ladder,
		Budget:      s.budget,
		Pricing:     s.pricing,
		ContextMgr:  ctxMgr,
		Metrics:     s.metrics,
		Tracer:      tracing.Tracer("aria/agent"),
	}, agent.Config{
		Identity:      ariaIdentity,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
	})

	fusionLLM := &providers.LadderSummarizer{Ladder: s.ladder, Model: cfg.Subagents.Model}
	s.gardener = gardener.New(cfg.Gardener, gardener.Deps{
		Store:     s.memStore,
		Sessions:  s.sessionMgr,
		FusionLLM: fusionLLM,
		FusionCfg: toMemoryFusionConfig(cfg.Memory.Fusion),
		Embed:     s.embed,
		VectorIdx: s.vectorIdx,
		NewID:     uuid.NewString,
		Metrics:   s.metrics,
	})

	s.channelMgr = channels.NewManager(s.msgBus)
	if cfg.Channels.Discord.Enabled {
		if ch, err := discord.New(cfg.Channels.Discord, s.msgBus); err != nil {
			slog.Error("serve: discord channel disabled", "error", err)
		} else {
			s.channelMgr.RegisterChannel("discord", ch)
		}
	}
	if cfg.Channels.Telegram.Enabled {
		if ch, err := telegram.New(cfg.Channels.Telegram, s.msgBus); err != nil {
			slog.Error("serve: telegram channel disabled", "error", err)
		} else {
			s.channelMgr.RegisterChannel("telegram", ch)
		}
	}

	go dispatchInbound(ctx, s)

	return s, nil
}

// wireStores selects standalone (file-backed) or managed (Postgres)
// storage per cfg.Database.Mode, matching the teacher's DatabaseConfig
// duality (spec.md ambient stack: "storage backend selection").
func wireStores(ctx context.Context, cfg *config.Config, workspace string, s *coreStack) error {
	if cfg.IsManagedMode() {
		pool, err := pg.Open(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(cfg.Database.PostgresDSN, store.MigrationsFS); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		s.memStore = pg.NewMemoryStore(pool)
		s.sessionMgr = sessions.NewManager(pg.NewSessionStore(pool))
		s.costStore = pg.NewCostStore(pool)
		return nil
	}

	memStore, err := file.NewMemoryStore(filepath.Join(workspace, "memory"))
	if err != nil {
		return fmt.Errorf("open file memory store: %w", err)
	}
	s.memStore = memStore

	sessPersist, err := sessions.NewFileStore(filepath.Join(workspace, "sessions"))
	if err != nil {
		return fmt.Errorf("open file session store: %w", err)
	}
	s.sessionMgr = sessions.NewManager(sessPersist)

	costStore, err := file.NewCostStore(filepath.Join(workspace, "costs.ndjson"))
	if err != nil {
		return fmt.Errorf("open file cost store: %w", err)
	}
	s.costStore = costStore
	return nil
}

// wireProviders constructs every configured LLM provider adapter, groups
// them into spec.md §4.4's tier map, and layers the Router, health
// tracker, cost tracker, budget guard, and degradation ladder on top.
func wireProviders(cfg *config.Config, rdb *redis.Client, s *coreStack) {
	s.pricing = providers.PricingTable{}

	var rawProviders []providers.Provider
	tierMap := map[providers.Tier][]providers.Provider{}

	if cfg.Providers.Anthropic.APIKey != "" {
		p := providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey,
			providers.WithAnthropicModel(cfg.Providers.Anthropic.Model),
			providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.APIBase))
		rawProviders = append(rawProviders, p)
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		p := providers.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey,
			providers.WithOpenAIModel(cfg.Providers.OpenAI.Model),
			providers.WithOpenAIBaseURL(cfg.Providers.OpenAI.APIBase))
		rawProviders = append(rawProviders, p)
	}
	if cfg.Providers.Bedrock.Region != "" {
		if p, err := providers.NewBedrockProvider(context.Background(),
			providers.WithBedrockRegion(cfg.Providers.Bedrock.Region),
			providers.WithBedrockProfile(cfg.Providers.Bedrock.Profile),
			providers.WithBedrockModel(cfg.Providers.Bedrock.Model)); err != nil {
			slog.Warn("serve: bedrock provider disabled", "error", err)
		} else {
			rawProviders = append(rawProviders, p)
		}
	}

	byName := map[string]providers.Provider{}
	for _, p := range rawProviders {
		byName[p.Name()] = p
	}
	for tier, names := range cfg.Providers.Tiers {
		for _, name := range names {
			if p, ok := byName[name]; ok {
				tierMap[providers.Tier(tier)] = append(tierMap[providers.Tier(tier)], p)
			}
		}
	}

	// Every tier'd provider is wrapped in a CostTracker before the Router
	// ever sees it, so every call the ladder makes — regardless of which
	// tier answered it — lands a ledger row (spec §4.4 "every provider call
	// is wrapped to record actual cost").
	for tier, list := range tierMap {
		wrapped := make([]providers.Provider, len(list))
		for i, p := range list {
			wrapped[i] = providers.NewCostTracker(p, s.costStore, s.pricing)
		}
		tierMap[tier] = wrapped
	}

	health := providers.NewHealthTracker(providers.HealthConfig{
		Window:           time.Duration(cfg.Providers.Health.WindowSeconds) * time.Second,
		FailureThreshold: cfg.Providers.Health.FailureThreshold,
	}, rdb)

	s.router = providers.NewRouter(tierMap, health, nil).WithMetrics(s.metrics)

	s.budget = providers.NewBudgetGuard(providers.BudgetConfig{
		DailyLimit:      cfg.Providers.Budget.DailyLimit,
		MonthlyLimit:    cfg.Providers.Budget.MonthlyLimit,
		WarningFraction: cfg.Providers.Budget.WarningFraction,
	}, s.costStore, nil)

	s.ladder = providers.NewDegradationLadder(s.router, tierOrder(cfg.Providers.Tiers), "")
}

// tierOrder orders tier labels highest-quality-first: a fixed, known
// precedence for the three default labels config.Default documents, with
// any operator-defined labels not in that set appended afterward in
// map-iteration order (the ladder still walks every configured tier; it
// just can't know where a custom label belongs relative to the defaults).
func tierOrder(tiers map[string][]string) []providers.Tier {
	precedence := []string{"cloud_premium", "cloud_budget", "local"}
	seen := make(map[string]bool, len(precedence))
	order := make([]providers.Tier, 0, len(tiers))
	for _, name := range precedence {
		if _, ok := tiers[name]; ok {
			order = append(order, providers.Tier(name))
			seen[name] = true
		}
	}
	for name := range tiers {
		if !seen[name] {
			order = append(order, providers.Tier(name))
		}
	}
	return order
}

// schedulerSpawner adapts *subagent.Scheduler to internal/skills/builtin's
// narrow Spawner interface, translating between the two packages'
// independent SpawnInput/Result shapes (builtin cannot import subagent: the
// latter already imports skills for the Registry/View types it derives a
// child's capability surface from).
type schedulerSpawner struct {
	sched *subagent.Scheduler
}

func (a schedulerSpawner) SpawnAndWait(ctx context.Context, parentSessionKey string, in builtin.SpawnInput) (builtin.SpawnResult, error) {
	res, err := a.sched.SpawnAndWait(ctx, parentSessionKey, subagent.SpawnInput{
		Task:          in.Task,
		Label:         in.Label,
		Tier:          providers.Tier(in.Tier),
		AllowedSkills: in.AllowedSkills,
	}, nil)
	if err != nil {
		return builtin.SpawnResult{}, err
	}
	out := builtin.SpawnResult{RunID: res.RunID, Status: string(res.Status), Text: res.Text, Err: res.Err}
	return out, nil
}

// dispatchInbound drains the bus's inbound queue and runs one Agent Turn
// Engine turn per message, broadcasting the final response as an outbound
// message back through the same channel (spec §2 "Control flow").
func dispatchInbound(ctx context.Context, s *coreStack) {
	for {
		msg, ok := s.msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		key := msg.SessionKey
		if key == "" {
			peerKind := sessions.PeerDirect
			if msg.PeerKind == string(sessions.PeerGroup) {
				peerKind = sessions.PeerGroup
			}
			key = sessions.BuildKey(msg.UserID, msg.Channel, peerKind, msg.ChatID)
		}

		res, err := s.loop.Run(ctx, agent.RunRequest{
			SessionKey: key,
			UserID:     msg.UserID,
			Message:    msg.Content,
		})
		if err != nil {
			slog.Error("dispatch: turn failed", "session", key, "error", err)
			continue
		}

		s.msgBus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: res.Text})
	}
}

// toMemoryFusionConfig converts the operator-facing fusion config into the
// shape the Fusion Engine consumes. CrossCategory is left at its zero value
// here: the Gardener's deep tick sets it to false and its sleep tick to true
// in code. config.FusionConfig.CrossCategoryDeep/CrossCategorySleep are not
// read by either tick, so changing them has no effect.
func toMemoryFusionConfig(c config.FusionConfig) memory.FusionConfig {
	return memory.FusionConfig{
		MinClusterSize: c.MinClusterSize,
		MaxClusters:    c.MaxClusters,
		MinProminence:  c.MinProminence,
		MaxProminence:  c.MaxProminence,
	}
}

func derefPruning(c *config.ContextPruningConfig) *config.ContextPruningConfig {
	if c == nil {
		return &agent.DefaultContextPruningConfig
	}
	return c
}

const ariaIdentity = "You are Aria, a personal assistant with durable memory of the people you help. " +
	"Use the tools available to you to complete the user's request, and reply with [DONE] when a sub-task is finished."
