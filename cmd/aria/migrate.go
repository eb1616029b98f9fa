package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/store"
	"github.com/arialabs/aria/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	var dsnFlag string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations for managed mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := dsnFlag
			if dsn == "" {
				cfg, err := config.Load(resolveConfigPath())
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dsn = cfg.Database.PostgresDSN
			}
			if dsn == "" {
				return fmt.Errorf("no postgres DSN: pass --dsn or set ARIA_POSTGRES_DSN")
			}

			if err := pg.Migrate(dsn, store.MigrationsFS); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("aria: migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsnFlag, "dsn", "", "Postgres DSN (default: ARIA_POSTGRES_DSN)")
	return cmd
}
