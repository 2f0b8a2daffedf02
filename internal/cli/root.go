package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hkloudou/odwatch"
	"github.com/hkloudou/odwatch/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		newLogger(verbose).Error("command failed", "error", err)
		return exitCodeError
	}

	return exitCodeSuccess
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "odwatch",
		Short:         "Track datasets published on an open-data portal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var dataDir string
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override ODWATCH_DATA_DIR")

	var shared bool
	rootCmd.PersistentFlags().BoolVar(&shared, "shared-settings", false, "apply settings stored in Redis on top of the environment")

	rootCmd.AddCommand(
		NewFetchCmd().Command(),
		NewReconcileCmd().Command(),
		NewFeedCmd().Command(),
		NewSocialCmd().Command(),
		NewSettingsCmd().Command(),
	)

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// loadConfig reads the environment and applies the root flags
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	shared, err := cmd.Root().PersistentFlags().GetBool("shared-settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get shared-settings flag: %w", err)
	}
	if shared {
		rdb, err := cfg.RedisClient()
		if err != nil {
			return nil, err
		}
		defer rdb.Close()
		if err := config.NewManager(rdb).Overlay(ctx, cfg); err != nil {
			return nil, err
		}
	}

	dataDir, err := cmd.Root().PersistentFlags().GetString("data-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get data-dir flag: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// newClient builds the logger and the client shared by every stage command
func newClient(ctx context.Context, cmd *cobra.Command) (*odwatch.Client, *slog.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	log := newLogger(verbose)

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	client := odwatch.New(cfg, odwatch.WithLogger(log))
	return client, log, nil
}
