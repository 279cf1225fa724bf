package ranking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// ClusterSlot is one cluster's share of an all-clusters listing: its top
// page, or the error that prevented reading it.
type ClusterSlot struct {
	Page model.Page
	Err  error
}

// Aggregate is a best-effort listing over every live cluster.
type Aggregate struct {
	Clusters map[int64]ClusterSlot
}

// Failed returns the clusters whose scan failed, ascending.
func (a Aggregate) Failed() []int64 {
	var ids []int64
	for id, slot := range a.Clusters {
		if slot.Err != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IDs returns every cluster id in the listing, ascending.
func (a Aggregate) IDs() []int64 {
	ids := make([]int64, 0, len(a.Clusters))
	for id := range a.Clusters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListAllClusters returns the top limit records of every live cluster. Cluster
// scans run concurrently; a failing cluster is logged and carried as a failed
// slot while its siblings still return. Only a failure to list the clusters
// fails the call.
func (e *Engine) ListAllClusters(ctx context.Context, lb model.Leaderboard, limit int) (agg Aggregate, err error) {
	const op = "ranking.list_all_clusters"
	defer func(started time.Time) { observe(KindClusters, started, err) }(time.Now())

	if err := checkPage(0, limit); err != nil {
		return Aggregate{}, err
	}

	var ids []int64
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		ids, err = e.router.ListClusters(ctx, lb)
		return err
	})
	if err != nil {
		return Aggregate{}, err
	}

	slots := xsync.NewMapOf[int64, ClusterSlot]()
	sem := make(chan struct{}, e.cfg.AggregateConcurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				slots.Store(id, ClusterSlot{Err: wrap(op, model.CodeDB, ctx.Err())})
				return
			}
			page, err := e.top(ctx, op, lb, id, 0, limit)
			slots.Store(id, ClusterSlot{Page: page, Err: err})
		}(id)
	}
	wg.Wait()

	agg = Aggregate{Clusters: make(map[int64]ClusterSlot, slots.Size())}
	failed := 0
	slots.Range(func(id int64, slot ClusterSlot) bool {
		agg.Clusters[id] = slot
		if slot.Err != nil {
			failed++
			e.log.Warn(ctx, "cluster scan failed",
				logger.String("gamespace", lb.Gamespace),
				logger.Int64("leaderboard_id", lb.ID),
				logger.Int64("cluster_id", id),
				logger.Error(slot.Err))
		}
		return true
	})
	metrics.RecordAggregate(len(ids), failed)
	return agg, nil
}
