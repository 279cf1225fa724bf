// Package ranking resolves leaderboards, routes accounts to clusters and runs
// the ranked queries.
package ranking

import (
	"context"
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

// Config carries the engine knobs. Zero fields take the defaults.
type Config struct {
	// ClusterSize caps the accounts per cluster of a clustered leaderboard.
	ClusterSize int
	// QueryTimeout bounds every store call of a query.
	QueryTimeout time.Duration
	// AggregateConcurrency bounds parallel cluster scans of one listing.
	AggregateConcurrency int
}

// Defaults.
const (
	DefaultClusterSize          = 1000
	DefaultQueryTimeout         = 5 * time.Second
	DefaultAggregateConcurrency = 8
)

func (c Config) withDefaults() Config {
	if c.ClusterSize <= 0 {
		c.ClusterSize = DefaultClusterSize
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.AggregateConcurrency <= 0 {
		c.AggregateConcurrency = DefaultAggregateConcurrency
	}
	return c
}

// Leaderboards is the identity table of the entry store.
type Leaderboards interface {
	FindLeaderboard(ctx context.Context, gamespace, name string, order model.SortOrder) (model.Leaderboard, error)
	CreateLeaderboard(ctx context.Context, ref model.Ref) (model.Leaderboard, error)
	DeleteLeaderboard(ctx context.Context, gamespace string, leaderboardID int64) error
}

// Entries is the read side of the entry store. Implementations never return
// expired rows.
type Entries interface {
	Score(ctx context.Context, p model.Partition, account string) (float64, error)
	Top(ctx context.Context, p model.Partition, order model.SortOrder, offset, limit int) ([]model.Record, error)
	Neighbours(ctx context.Context, p model.Partition, order model.SortOrder, account string, score float64, better bool, limit int) ([]model.Record, error)
	Subset(ctx context.Context, p model.Partition, order model.SortOrder, accounts []string, offset, limit int) ([]model.Record, error)
}

// Placement assigns accounts of clustered leaderboards to clusters.
type Placement interface {
	GetCluster(ctx context.Context, gamespace string, leaderboardID int64, account string, clusterSize int, autoCreate bool) (int64, error)
	ListClusters(ctx context.Context, gamespace string, leaderboardID int64) ([]int64, error)
	LeaveCluster(ctx context.Context, gamespace string, leaderboardID int64, account string) error
	DeleteClusters(ctx context.Context, gamespace string, leaderboardID int64) error
	PurgeAccounts(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) error
}
