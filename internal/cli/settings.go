package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hkloudou/odwatch/internal/config"
	"github.com/spf13/cobra"
)

type SettingsCmd struct{}

func NewSettingsCmd() *SettingsCmd {
	return &SettingsCmd{}
}

func (c *SettingsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage settings shared through Redis",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Store the current configuration in Redis for --shared-settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			rdb, err := cfg.RedisClient()
			if err != nil {
				return err
			}
			defer rdb.Close()

			if err := config.NewManager(rdb).Save(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settings saved to %s\n", config.SettingsKey)
			return nil
		},
	})

	return cmd
}
