package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// ErrMismatch reports that the leaderboard read back disagrees with what
// was submitted.
var ErrMismatch = errors.New("leaderboard mismatch")

// Run executes a complete load run.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Leaderboard == "" {
		cfg.Leaderboard = "loadgen-" + uuid.NewString()[:8]
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	order, err := model.ParseSortOrder(string(cfg.Order))
	if err != nil {
		return Stats{}, err
	}
	cfg.Order = order

	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	log := cfg.Logger
	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.String("leaderboard", cfg.Leaderboard),
		logger.String("order", string(cfg.Order)),
		logger.Int("accounts", cfg.Accounts),
		logger.Int("workers", cfg.Workers))

	started := time.Now()
	client := newHTTPClient(cfg)
	if err := client.health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	subs := generate(cfg)
	stats := submitAll(ctx, client, cfg, subs)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d of %d submissions failed", stats.Failed, stats.Submitted)
	}

	entries, err := client.readAll(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.Read = len(entries)
	if err := verify(cfg, subs, entries); err != nil {
		return stats, err
	}

	if cfg.Cleanup {
		if err := client.drop(ctx, cfg); err != nil {
			log.Warn(ctx, "failed to delete leaderboard", logger.Error(err))
		}
	}

	stats.Duration = time.Since(started)
	log.Info(ctx, "load run completed",
		logger.Int("submitted", stats.Submitted),
		logger.Int("inserted", stats.Inserted),
		logger.Int("updated", stats.Updated),
		logger.Int("read", stats.Read),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// submitAll posts every submission through a pool of cfg.Workers goroutines.
func submitAll(ctx context.Context, client *httpClient, cfg Config, subs []Submission) Stats {
	var inserted, updated, failed atomic.Int64
	jobs := make(chan Submission, cfg.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				created, err := client.submit(ctx, cfg, s)
				switch {
				case err != nil:
					failed.Add(1)
					cfg.Logger.Debug(ctx, "submission failed", logger.String("account", s.Account), logger.Error(err))
				case created:
					inserted.Add(1)
				default:
					updated.Add(1)
				}
			}
		}()
	}

	submitted := 0
feed:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- s:
			submitted++
		}
	}
	close(jobs)
	wg.Wait()

	return Stats{
		Submitted: submitted,
		Inserted:  int(inserted.Load()),
		Updated:   int(updated.Load()),
		Failed:    int(failed.Load()) + len(subs) - submitted,
	}
}

// verify checks that entries is subs in leaderboard order with ranks 1..n.
func verify(cfg Config, subs []Submission, entries []Entry) error {
	want := make([]Submission, len(subs))
	copy(want, subs)
	sort.Slice(want, func(i, j int) bool {
		return cfg.Order.Better(want[i].Score, want[j].Score)
	})

	if len(entries) != len(want) {
		return fmt.Errorf("%w: read %d entries, submitted %d", ErrMismatch, len(entries), len(want))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrMismatch, i, e.Rank)
		}
		if e.Account != want[i].Account || e.Score != want[i].Score {
			return fmt.Errorf("%w: rank %d is %s (%.0f), want %s (%.0f)",
				ErrMismatch, e.Rank, e.Account, e.Score, want[i].Account, want[i].Score)
		}
	}
	return nil
}
