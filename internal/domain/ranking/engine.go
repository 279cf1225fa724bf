package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// Query kinds, used as metric labels.
const (
	KindTop       = "top"
	KindAround    = "around"
	KindFriends   = "friends"
	KindByAccount = "by_account"
	KindClusters  = "clusters"
)

// Engine runs ranked queries inside one partition. Ranks are never stored;
// each query derives them from a sorted scan.
type Engine struct {
	entries Entries
	router  *Router
	cfg     Config
	log     logger.Logger
}

// NewEngine returns an Engine reading from entries.
func NewEngine(entries Entries, router *Router, cfg Config, opts ...Option) *Engine {
	o := applyOptions(opts)
	return &Engine{entries: entries, router: router, cfg: cfg.withDefaults(), log: o.log}
}

func checkPage(offset, limit int) error {
	if offset < 0 || limit < 0 {
		return fmt.Errorf("%w: offset %d, limit %d", model.ErrInvalidArgument, offset, limit)
	}
	return nil
}

// call bounds one store call by the query timeout.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()
	return fn(ctx)
}

func observe(kind string, started time.Time, err error) {
	if errors.Is(err, model.ErrNoClusterPlacement) || errors.Is(err, model.ErrInvalidArgument) {
		err = nil
	}
	metrics.RecordQuery(kind, float64(time.Since(started).Microseconds())/1000, err)
}

// Top returns the page starting at offset; rank = offset + position + 1.
func (e *Engine) Top(ctx context.Context, lb model.Leaderboard, clusterID int64, offset, limit int) (page model.Page, err error) {
	const op = "ranking.top"
	defer func(started time.Time) { observe(KindTop, started, err) }(time.Now())
	return e.top(ctx, op, lb, clusterID, offset, limit)
}

func (e *Engine) top(ctx context.Context, op string, lb model.Leaderboard, clusterID int64, offset, limit int) (model.Page, error) {
	if err := checkPage(offset, limit); err != nil {
		return model.Page{}, err
	}
	if limit == 0 {
		return model.EmptyPage(), nil
	}
	var records []model.Record
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		records, err = e.entries.Top(ctx, lb.Partition(clusterID), lb.Order, offset, limit)
		return err
	})
	if err != nil {
		return model.Page{}, wrap(op, model.CodeDB, err)
	}
	return model.NewPage(records, offset+1), nil
}

// AroundMe returns the window centred on account: up to limit/2 records ahead
// of it and up to limit/2 equal to or behind it (the account included), in
// leaderboard order, then offset and limit applied. Ranks start at 1 inside
// the window. Near the extremes the window is not compensated and may be
// shorter than limit. A missing account yields an empty page.
func (e *Engine) AroundMe(ctx context.Context, lb model.Leaderboard, clusterID int64, account string, offset, limit int) (page model.Page, err error) {
	const op = "ranking.around_me"
	defer func(started time.Time) { observe(KindAround, started, err) }(time.Now())

	if err := checkPage(offset, limit); err != nil {
		return model.Page{}, err
	}
	half := limit / 2
	if half == 0 {
		return model.EmptyPage(), nil
	}
	p := lb.Partition(clusterID)

	var score float64
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		score, err = e.entries.Score(ctx, p, account)
		return err
	})
	if errors.Is(err, model.ErrEntryNotFound) {
		return model.EmptyPage(), nil
	}
	if err != nil {
		return model.Page{}, wrap(op, model.CodeDB, err)
	}

	var ahead, behind []model.Record
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		if ahead, err = e.entries.Neighbours(ctx, p, lb.Order, account, score, true, half); err != nil {
			return err
		}
		behind, err = e.entries.Neighbours(ctx, p, lb.Order, account, score, false, half)
		return err
	})
	if err != nil {
		return model.Page{}, wrap(op, model.CodeDB, err)
	}

	window := make([]model.Record, 0, len(ahead)+len(behind))
	window = append(window, ahead...)
	window = append(window, behind...)
	sortRecords(window, lb.Order)

	if offset >= len(window) {
		return model.EmptyPage(), nil
	}
	end := min(offset+limit, len(window))
	return model.NewPage(window[offset:end], 1), nil
}

// Friends ranks only the given accounts, paginated like Top; ranks restart at
// 1 on every page. An empty set never reaches the store.
func (e *Engine) Friends(ctx context.Context, lb model.Leaderboard, clusterID int64, accounts []string, offset, limit int) (page model.Page, err error) {
	const op = "ranking.friends"
	defer func(started time.Time) { observe(KindFriends, started, err) }(time.Now())

	if err := checkPage(offset, limit); err != nil {
		return model.Page{}, err
	}
	if len(accounts) == 0 || limit == 0 {
		return model.EmptyPage(), nil
	}
	var records []model.Record
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		records, err = e.entries.Subset(ctx, lb.Partition(clusterID), lb.Order, dedupeAccounts(accounts), offset, limit)
		return err
	})
	if err != nil {
		return model.Page{}, wrap(op, model.CodeDB, err)
	}
	return model.NewPage(records, 1), nil
}

// ByAccount routes account for read and returns Top of its cluster.
func (e *Engine) ByAccount(ctx context.Context, lb model.Leaderboard, account string, offset, limit int) (page model.Page, err error) {
	const op = "ranking.by_account"
	defer func(started time.Time) { observe(KindByAccount, started, err) }(time.Now())

	var clusterID int64
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		clusterID, err = e.router.RouteForRead(ctx, lb, account)
		return err
	})
	if err != nil {
		return model.Page{}, err
	}
	return e.top(ctx, op, lb, clusterID, offset, limit)
}

// sortRecords orders by score under order, ties by account id ascending.
func sortRecords(records []model.Record, order model.SortOrder) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Score != b.Score {
			return order.Better(a.Score, b.Score)
		}
		return a.AccountID < b.AccountID
	})
}

func dedupeAccounts(accounts []string) []string {
	seen := make(map[string]struct{}, len(accounts))
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
