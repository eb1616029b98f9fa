package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// DefaultAgentID names the agent used when no binding matches.
const DefaultAgentID = "default"

// Default returns a Config populated with the documented defaults from
// spec.md §6/§4.2/§4.3/§4.4.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:     "~/.aria/workspace",
			MaxIterations: 10,
			ContextWindow: 200000,
			Temperature:   0.7,
			MaxTokens:     8192,
			ContextPruning: &ContextPruningConfig{
				Mode:                 "cache-ttl",
				KeepLastAssistants:   3,
				SoftTrimRatio:        0.3,
				HardClearRatio:       0.5,
				ToolOutputCapChars:   4000,
				MinPrunableToolChars: 50000,
			},
			Compaction: &CompactionConfig{
				MaxHistoryShare:  0.75,
				MinMessages:      50,
				KeepLastMessages: 4,
			},
			LoopDetectWarn:    3,
			LoopDetectCritial: 5,
		},
		Memory: MemoryConfig{
			VectorWeight: 0.7,
			TextWeight:   0.3,
			MinScore:     0.35,
			MaxResults:   6,
			RecencyBoost: true,
			DecayWeights: DecayWeights{Age: 0.30, Access: 0.25, Recency: 0.25, Importance: 0.20},
			Thresholds:   ProminenceConfig{Active: 0.5, Dormant: 0.1},
			Fusion: FusionConfig{
				MinClusterSize:     3,
				MaxClusters:        5,
				CrossCategoryDeep:  false,
				CrossCategorySleep: true,
				MinProminence:      0.1,
				MaxProminence:      0.5,
			},
			Activation: ActivationConfig{MaxSteps: 3, DecayFactor: 0.6, Noise: 0.02},
		},
		Gardener: GardenerConfig{
			LightIntervalSeconds: 300,
			DeepTickMultiplier:   72,
			SleepTickMultiplier:  288,
			QuietHours:           QuietHours{Start: 2, End: 5},
			ExpireGraceMinutes:   60,
			LightBatchCap:        500,
			SessionSummaryAge:    24,
			ArchiveRetentionDays: 90,
		},
		Subagents: SubagentsConfig{
			MaxConcurrent:       20,
			MaxSpawnDepth:       1,
			MaxChildrenPerAgent: 5,
			MaxInputTokens:      60000,
			MaxIterations:       6,
			TimeoutSeconds:      300,
			ArchiveAfterMinutes: 60,
		},
		Providers: ProvidersConfig{
			Tiers: map[string][]string{
				"cloud_premium": {"anthropic"},
				"cloud_budget":  {"openai"},
				"local":         {"bedrock"},
			},
			Budget: BudgetConfig{WarningFraction: 0.75},
			Health: HealthConfig{WindowSeconds: 60, FailureThreshold: 3},
		},
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18970,
			MaxMessageChars: 32000,
			RateLimitRPM:    20,
		},
		Database: DatabaseConfig{Mode: "standalone"},
	}
}

// Load reads a JSON5 config file at path, overlaying documented defaults
// and then environment-sourced secrets, matching the teacher's
// Load/applyEnvOverrides two-pass shape (config_load.go).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment-sourced secrets and a handful of
// operational knobs. Env vars always win over the file, matching the
// teacher's secrets-never-in-file discipline.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ARIA_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("ARIA_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("ARIA_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("ARIA_OPENAI_BASE_URL", &c.Providers.OpenAI.APIBase)
	envStr("ARIA_BEDROCK_REGION", &c.Providers.Bedrock.Region)
	envStr("ARIA_BEDROCK_PROFILE", &c.Providers.Bedrock.Profile)

	envStr("ARIA_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("ARIA_HOST", &c.Gateway.Host)
	if v := os.Getenv("ARIA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("ARIA_OWNER_IDS"); v != "" {
		c.Gateway.OwnerIDs = strings.Split(v, ",")
	}

	envStr("ARIA_DISCORD_TOKEN", &c.Channels.Discord.Token)
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	envStr("ARIA_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}

	envStr("ARIA_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ARIA_DB_MODE", &c.Database.Mode)
	envStr("ARIA_REDIS_URL", &c.Redis.URL)

	envStr("ARIA_WORKSPACE", &c.Agent.Workspace)

	if v := os.Getenv("ARIA_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	envStr("ARIA_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
}

// ApplyEnvOverrides re-applies environment overrides; called after a
// fsnotify-triggered file reload so runtime secrets survive the swap.
func (c *Config) ApplyEnvOverrides() { c.applyEnvOverrides() }

// Save writes the config back to disk as indented JSON (not JSON5 — we only
// need to read JSON5, never emit comments).
func Save(path string, cfg *Config) error {
	snap := cfg.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
