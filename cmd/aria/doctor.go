package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/store/pg"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("aria doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults — file not found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	fmt.Printf("    %-12s %s\n", "Anthropic:", credStatus(cfg.Providers.Anthropic.APIKey != ""))
	fmt.Printf("    %-12s %s\n", "OpenAI:", credStatus(cfg.Providers.OpenAI.APIKey != ""))
	fmt.Printf("    %-12s %s\n", "Bedrock:", credStatus(cfg.Providers.Bedrock.Region != ""))
	if len(cfg.Providers.Tiers) == 0 {
		fmt.Println("    (no tiers configured — the Degradation Ladder has nothing to fall through)")
	}

	fmt.Println()
	fmt.Println("  Storage:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed\n", "Mode:")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool, err := pg.Open(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		} else {
			defer pool.Close()
			if err := pool.Ping(ctx); err != nil {
				fmt.Printf("    %-12s PING FAILED (%s)\n", "Status:", err)
			} else {
				fmt.Printf("    %-12s OK\n", "Status:")
			}
		}
	} else {
		workspace := config.ExpandHome(cfg.Agent.Workspace)
		fmt.Printf("    %-12s standalone (%s)\n", "Mode:", workspace)
		if _, err := os.Stat(workspace); err != nil {
			fmt.Printf("    %-12s not yet created (will be created on first `aria serve`)\n", "Status:")
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	}

	fmt.Println()
	fmt.Println("  Redis:")
	if cfg.Redis.URL == "" {
		fmt.Println("    (not configured — health tracker and announce queue run in-process)")
	} else {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fmt.Printf("    %-12s INVALID URL (%s)\n", "Status:", err)
		} else {
			rdb := redis.NewClient(opts)
			defer rdb.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				fmt.Printf("    %-12s PING FAILED (%s)\n", "Status:", err)
			} else {
				fmt.Printf("    %-12s OK\n", "Status:")
			}
		}
	}

	fmt.Println()
	fmt.Println("  Channels:")
	fmt.Printf("    %-12s %s\n", "Discord:", enabledStatus(cfg.Channels.Discord.Enabled))
	fmt.Printf("    %-12s %s\n", "Telegram:", enabledStatus(cfg.Channels.Telegram.Enabled))
}

func credStatus(present bool) string {
	if present {
		return "configured"
	}
	return "not configured"
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
