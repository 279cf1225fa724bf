package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/config"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "leaderboard",
		Short:         "Gamespace-scoped leaderboard service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP service",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := setup(cmd.Context(), envFiles)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := setup(cmd.Context(), envFiles)
				if err != nil {
					return err
				}
				return migrate(cmd.Context(), cfg)
			},
		},
		newLoadgenCmd(),
	)
	return root
}

// setup loads the configuration and initializes logging from it.
func setup(ctx context.Context, envFiles []string) (*config.Config, error) {
	cfg, err := config.Load(ctx, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithLogger(logger.Named("repository")))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Get().Info(ctx, "schema applied", logger.String("driver", store.Driver()))
	return store.Close()
}
