// Package config loads and hot-reloads the Aria gateway's configuration.
// Adapted from the teacher's internal/config/config.go: same JSON5-plus-
// environment-override shape, same FlexibleStringSlice trick, same secret-
// from-env-only discipline — generalized from goclaw's channel-bridge-heavy
// agent config to Aria's memory/gardener/provider-router domain.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON5 config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the Aria gateway.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Memory    MemoryConfig    `json:"memory"`
	Gardener  GardenerConfig  `json:"gardener"`
	Subagents SubagentsConfig `json:"subagents"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Channels  ChannelsConfig  `json:"channels,omitempty"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	MCP       map[string]*MCPServerConfig `json:"mcp,omitempty"`

	mu sync.RWMutex
}

// MCPServerConfig configures one external MCP tool server the gateway
// bridges into the Skill Registry, matching the teacher's
// MCPServerConfig shape (internal/config/config.go).
type MCPServerConfig struct {
	Enabled    *bool             `json:"enabled,omitempty"` // default true
	Transport  string            `json:"transport,omitempty"` // "stdio" (default), "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"toolPrefix,omitempty"`
	TimeoutSec int               `json:"timeoutSec,omitempty"`
}

// IsEnabled defaults to true when unset, matching the teacher's
// MCPServerConfig.IsEnabled.
func (c *MCPServerConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// AgentConfig holds Agent Turn Engine defaults (spec §4.1).
type AgentConfig struct {
	Workspace         string                `json:"workspace"`
	MaxIterations     int                   `json:"maxIterations"`
	ContextWindow     int                   `json:"contextWindow"`
	Temperature       float64               `json:"temperature"`
	MaxTokens         int                   `json:"maxTokens"`
	ContextPruning    *ContextPruningConfig `json:"contextPruning,omitempty"`
	Compaction        *CompactionConfig     `json:"compaction,omitempty"`
	LoopDetectWarn    int                   `json:"loopDetectWarn,omitempty"`
	LoopDetectCritial int                   `json:"loopDetectCritical,omitempty"`
}

// ContextPruningConfig bounds the Context Manager's hot window and clips
// tool output, matching the teacher's contextPruning knob shape.
type ContextPruningConfig struct {
	Mode                 string  `json:"mode,omitempty"` // "cache-ttl" (default), "off"
	KeepLastAssistants   int     `json:"keepLastAssistants,omitempty"`
	SoftTrimRatio        float64 `json:"softTrimRatio,omitempty"`
	HardClearRatio       float64 `json:"hardClearRatio,omitempty"`
	ToolOutputCapChars   int     `json:"toolOutputCapChars,omitempty"`
	MinPrunableToolChars int     `json:"minPrunableToolChars,omitempty"`
}

// CompactionConfig governs session summarization on compaction.
type CompactionConfig struct {
	MaxHistoryShare  float64 `json:"maxHistoryShare,omitempty"`
	MinMessages      int     `json:"minMessages,omitempty"`
	KeepLastMessages int     `json:"keepLastMessages,omitempty"`
}

// MemoryConfig configures the Decay Engine, Fusion Engine, and hybrid
// retrieval weighting (spec §4.2, §4.1 step 3). Field names mirror the
// teacher's agents.defaults.memory block (VectorWeight/TextWeight/MinScore).
type MemoryConfig struct {
	VectorWeight   float64            `json:"vectorWeight,omitempty"`
	TextWeight     float64            `json:"textWeight,omitempty"`
	MinScore       float64            `json:"minScore,omitempty"`
	MaxResults     int                `json:"maxResults,omitempty"`
	RecencyBoost   bool               `json:"recencyBoost,omitempty"`
	DecayWeights   DecayWeights       `json:"decayWeights,omitempty"`
	Thresholds     ProminenceConfig   `json:"thresholds,omitempty"`
	Fusion         FusionConfig       `json:"fusion,omitempty"`
	EmbeddingModel string             `json:"embeddingModel,omitempty"`
	Activation     ActivationConfig   `json:"activation,omitempty"`
}

// DecayWeights are the fixed combination weights of the decay formula
// (spec §4.2 "Decay formula"). Defaults: 0.30/0.25/0.25/0.20.
type DecayWeights struct {
	Age        float64 `json:"age,omitempty"`
	Access     float64 `json:"access,omitempty"`
	Recency    float64 `json:"recency,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

// ProminenceConfig holds the ACTIVE/DORMANT/ARCHIVED thresholds.
type ProminenceConfig struct {
	Active   float64 `json:"active,omitempty"`
	Dormant  float64 `json:"dormant,omitempty"`
}

// FusionConfig bounds cluster discovery for the Fusion Engine.
type FusionConfig struct {
	MinClusterSize    int     `json:"minClusterSize,omitempty"`
	MaxClusters       int     `json:"maxClusters,omitempty"`
	CrossCategoryDeep bool    `json:"crossCategoryDeep,omitempty"`
	CrossCategorySleep bool   `json:"crossCategorySleep,omitempty"`
	MinProminence     float64 `json:"minProminence,omitempty"`
	MaxProminence     float64 `json:"maxProminence,omitempty"`
}

// ActivationConfig bounds spreading activation traversal (spec §9).
type ActivationConfig struct {
	MaxSteps   int     `json:"maxSteps,omitempty"`
	DecayFactor float64 `json:"decayFactor,omitempty"`
	Noise      float64 `json:"noise,omitempty"`
}

// GardenerConfig configures the three-tier Background Gardener cadence
// (spec §4.2). Intervals are expressed as the light-tick multiplier, as in
// the teacher's "every 72 light ticks" deep-tick spec.
type GardenerConfig struct {
	LightIntervalSeconds int         `json:"lightIntervalSeconds,omitempty"` // default 300
	DeepTickMultiplier   int         `json:"deepTickMultiplier,omitempty"`   // default 72
	SleepTickMultiplier  int         `json:"sleepTickMultiplier,omitempty"`  // default 288
	QuietHours           QuietHours  `json:"quietHours,omitempty"`
	ExpireGraceMinutes   int         `json:"expireGraceMinutes,omitempty"` // default 60
	LightBatchCap        int         `json:"lightBatchCap,omitempty"`      // default 500
	SessionSummaryAge    int         `json:"sessionSummaryAgeHours,omitempty"`
	ArchiveRetentionDays int         `json:"archiveRetentionDays,omitempty"`
}

// QuietHours bounds the Sleep tick to a local time window; Start > End
// denotes a wrap-around window (e.g. 22 → 5).
type QuietHours struct {
	Start int `json:"start,omitempty"` // default 2
	End   int `json:"end,omitempty"`   // default 5
}

// SubagentsConfig configures the Sub-Agent Scheduler (spec §4.3).
type SubagentsConfig struct {
	MaxConcurrent       int    `json:"maxConcurrent,omitempty"`
	MaxSpawnDepth       int    `json:"maxSpawnDepth,omitempty"`
	MaxChildrenPerAgent int    `json:"maxChildrenPerAgent,omitempty"`
	MaxInputTokens      int    `json:"maxInputTokens,omitempty"`
	MaxIterations       int    `json:"maxIterations,omitempty"`
	TimeoutSeconds      int    `json:"timeoutSeconds,omitempty"`
	ArchiveAfterMinutes int    `json:"archiveAfterMinutes,omitempty"`
	Model               string `json:"model,omitempty"`
}

// ProvidersConfig configures the Provider Router's tier ladder (spec §4.4).
type ProvidersConfig struct {
	Anthropic ProviderCreds       `json:"anthropic,omitempty"`
	OpenAI    ProviderCreds       `json:"openai,omitempty"`
	Bedrock   BedrockCreds        `json:"bedrock,omitempty"`
	Tiers     map[string][]string `json:"tiers,omitempty"` // tier label -> ordered provider names
	Budget    BudgetConfig        `json:"budget,omitempty"`
	Health    HealthConfig        `json:"health,omitempty"`
}

// ProviderCreds holds API credentials, sourced from env only (never
// persisted to the config file — matching the teacher's DatabaseConfig
// and Anthropic APIKey comments).
type ProviderCreds struct {
	APIKey  string `json:"-"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

// BedrockCreds configures the AWS Bedrock provider.
type BedrockCreds struct {
	Region  string `json:"region,omitempty"`
	Model   string `json:"model,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// BudgetConfig configures the Budget Guard (spec §4.4).
type BudgetConfig struct {
	DailyLimit      *float64 `json:"dailyLimit,omitempty"`
	MonthlyLimit    *float64 `json:"monthlyLimit,omitempty"`
	WarningFraction float64  `json:"warningFraction,omitempty"` // default 0.75
}

// HealthConfig configures the Health Tracker's rolling failure window.
type HealthConfig struct {
	WindowSeconds    int `json:"windowSeconds,omitempty"`    // default 60
	FailureThreshold int `json:"failureThreshold,omitempty"` // default 3
}

// GatewayConfig configures the WebSocket/HTTP gateway surface (spec §6).
type GatewayConfig struct {
	Host            string              `json:"host"`
	Port            int                 `json:"port"`
	Token           string              `json:"-"` // bearer token, env only
	MaxMessageChars int                 `json:"maxMessageChars,omitempty"`
	RateLimitRPM    int                 `json:"rateLimitRpm,omitempty"`
	OwnerIDs        FlexibleStringSlice `json:"ownerIds,omitempty"`
	AllowedOrigins  FlexibleStringSlice `json:"allowedOrigins,omitempty"`
}

// ChannelsConfig configures the thin channel-fabric adapters.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type DiscordConfig struct {
	Enabled        bool                `json:"enabled,omitempty"`
	Token          string              `json:"-"`
	AllowFrom      FlexibleStringSlice `json:"allowFrom,omitempty"`
	DMPolicy       string              `json:"dmPolicy,omitempty"`    // "open" (default), "allowlist", "disabled"
	GroupPolicy    string              `json:"groupPolicy,omitempty"` // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"requireMention,omitempty"`
}

type TelegramConfig struct {
	Enabled     bool                `json:"enabled,omitempty"`
	Token       string              `json:"-"`
	AllowFrom   FlexibleStringSlice `json:"allowFrom,omitempty"`
	DMPolicy    string              `json:"dmPolicy,omitempty"`
	GroupPolicy string              `json:"groupPolicy,omitempty"`
}

// DatabaseConfig selects standalone (file-backed) vs managed (Postgres)
// storage, matching the teacher's DatabaseConfig.Mode/IsManagedMode split.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"` // env ARIA_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
}

// RedisConfig points the HealthTracker and the sub-agent announce queue at
// a shared Redis instance so a rolling health window and pending
// announcements both survive a gateway restart. Empty URL means both fall
// back to their in-process variants (standalone single-instance mode).
type RedisConfig struct {
	URL string `json:"-"` // env ARIA_REDIS_URL only
}

func (c *Config) IsManagedMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry export, matching the teacher's
// TelemetryConfig shape.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"serviceName,omitempty"`
}

// ReplaceFrom atomically swaps every data field from src into c, preserving
// c's own mutex — used by the fsnotify-driven hot reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = src.Agent
	c.Memory = src.Memory
	c.Gardener = src.Gardener
	c.Subagents = src.Subagents
	c.Providers = src.Providers
	c.Gateway = src.Gateway
	c.Channels = src.Channels
	c.Database = src.Database
	c.Redis = src.Redis
	c.Telemetry = src.Telemetry
	c.MCP = src.MCP
}

// Snapshot returns a value copy safe to read without holding the lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
