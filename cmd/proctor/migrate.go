package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/proctor/internal/config"
	"github.com/ent0n29/proctor/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|redo]",
		Short:     "Apply or inspect PostgreSQL schema migrations",
		Args:      cobra.RangeArgs(0, 2),
		ValidArgs: []string{"up", "down", "status", "version", "redo", "up-to", "down-to"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrations")
			}
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			return store.Migrate(cmd.Context(), cfg.DatabaseURL, command, args[min(len(args), 1):]...)
		},
	}
}
