package ranking

import (
	"context"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

// Router picks the cluster an account reads from and writes to. Non-clustered
// leaderboards always use model.NoCluster.
type Router struct {
	placement   Placement
	clusterSize int
}

// NewRouter returns a Router using cfg.ClusterSize.
func NewRouter(placement Placement, cfg Config) *Router {
	return &Router{placement: placement, clusterSize: cfg.withDefaults().ClusterSize}
}

// RouteForWrite returns the account's cluster, placing it when needed.
func (r *Router) RouteForWrite(ctx context.Context, lb model.Leaderboard, account string) (int64, error) {
	const op = "ranking.route_for_write"
	if !lb.Clustered {
		return model.NoCluster, nil
	}
	id, err := r.placement.GetCluster(ctx, lb.Gamespace, lb.ID, account, r.clusterSize, true)
	return id, wrap(op, model.CodePlacement, err)
}

// RouteForRead returns the account's cluster or model.ErrNoClusterPlacement.
func (r *Router) RouteForRead(ctx context.Context, lb model.Leaderboard, account string) (int64, error) {
	const op = "ranking.route_for_read"
	if !lb.Clustered {
		return model.NoCluster, nil
	}
	id, err := r.placement.GetCluster(ctx, lb.Gamespace, lb.ID, account, r.clusterSize, false)
	return id, wrap(op, model.CodePlacement, err)
}

// ListClusters returns the live clusters of lb.
func (r *Router) ListClusters(ctx context.Context, lb model.Leaderboard) ([]int64, error) {
	const op = "ranking.list_clusters"
	if !lb.Clustered {
		return []int64{model.NoCluster}, nil
	}
	ids, err := r.placement.ListClusters(ctx, lb.Gamespace, lb.ID)
	return ids, wrap(op, model.CodePlacement, err)
}

// Leave removes the account's placement.
func (r *Router) Leave(ctx context.Context, lb model.Leaderboard, account string) error {
	const op = "ranking.leave"
	if !lb.Clustered {
		return nil
	}
	return wrap(op, model.CodePlacement, r.placement.LeaveCluster(ctx, lb.Gamespace, lb.ID, account))
}

// DeleteClusters removes every placement of lb.
func (r *Router) DeleteClusters(ctx context.Context, lb model.Leaderboard) error {
	const op = "ranking.delete_clusters"
	if !lb.Clustered {
		return nil
	}
	return wrap(op, model.CodePlacement, r.placement.DeleteClusters(ctx, lb.Gamespace, lb.ID))
}

// Purge removes the accounts' placements in gamespace, or everywhere when
// gamespaceOnly is false.
func (r *Router) Purge(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) error {
	const op = "ranking.purge_placements"
	return wrap(op, model.CodePlacement, r.placement.PurgeAccounts(ctx, gamespace, accounts, gamespaceOnly))
}
