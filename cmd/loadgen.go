package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/loadgen"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

const defaultLoadTimeout = 10 * time.Minute

func newLoadgenCmd() *cobra.Command {
	cfg := loadgen.DefaultConfig()
	var (
		order   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Submit generated scores to a running service and verify the ranking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			if verbose {
				_ = logger.SetLevelString("debug")
			}
			o, err := model.ParseSortOrder(order)
			if err != nil {
				return err
			}
			cfg.Order = o
			cfg.Logger = logger.Named("loadgen")

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultLoadTimeout)
			defer cancel()
			stats, err := loadgen.Run(ctx, cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "submitted %d (inserted %d, updated %d), read back %d in %s\n",
				stats.Submitted, stats.Inserted, stats.Updated, stats.Read, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.StringVar(&cfg.Gamespace, "gamespace", cfg.Gamespace, "gamespace to write into")
	f.StringVar(&cfg.Leaderboard, "leaderboard", "", "leaderboard name (default: generated)")
	f.StringVar(&order, "order", string(cfg.Order), "sort order: asc or desc")
	f.IntVar(&cfg.Accounts, "accounts", cfg.Accounts, "number of accounts to submit for")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of concurrent submitters")
	f.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "limit used when reading back")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.ExpireIn, "expire-in", cfg.ExpireIn, "time-to-live of submitted entries")
	f.BoolVar(&cfg.Cleanup, "cleanup", false, "delete the leaderboard afterwards")
	f.BoolVar(&verbose, "verbose", false, "log every failed submission")
	return cmd
}
