package ranking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/placement"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/ranking"
)

var errInjected = errors.New("injected failure")

// faultyEntries fails scans of the listed clusters and can stall every call.
type faultyEntries struct {
	ranking.Entries
	mu      sync.Mutex
	failing map[int64]bool
	stall   bool
	calls   int
}

func (f *faultyEntries) fail(clusterID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = map[int64]bool{}
	}
	f.failing[clusterID] = true
}

func (f *faultyEntries) check(ctx context.Context, p model.Partition) error {
	f.mu.Lock()
	f.calls++
	failing, stall := f.failing[p.ClusterID], f.stall
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if failing {
		return errInjected
	}
	return nil
}

func (f *faultyEntries) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *faultyEntries) Score(ctx context.Context, p model.Partition, account string) (float64, error) {
	if err := f.check(ctx, p); err != nil {
		return 0, err
	}
	return f.Entries.Score(ctx, p, account)
}

func (f *faultyEntries) Top(ctx context.Context, p model.Partition, order model.SortOrder, offset, limit int) ([]model.Record, error) {
	if err := f.check(ctx, p); err != nil {
		return nil, err
	}
	return f.Entries.Top(ctx, p, order, offset, limit)
}

func (f *faultyEntries) Subset(ctx context.Context, p model.Partition, order model.SortOrder, accounts []string, offset, limit int) ([]model.Record, error) {
	if err := f.check(ctx, p); err != nil {
		return nil, err
	}
	return f.Entries.Subset(ctx, p, order, accounts, offset, limit)
}

type fixture struct {
	store     *repository.Store
	entries   *faultyEntries
	placement *placement.Memory
	directory *ranking.Directory
	router    *ranking.Router
	engine    *ranking.Engine
	expires   time.Time
}

func newFixture(t *testing.T, cfg ranking.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	entries := &faultyEntries{Entries: store}
	pl := placement.NewMemory()
	router := ranking.NewRouter(pl, cfg)
	return &fixture{
		store:     store,
		entries:   entries,
		placement: pl,
		directory: ranking.NewDirectory(store),
		router:    router,
		engine:    ranking.NewEngine(entries, router, cfg),
		expires:   time.Now().Add(time.Hour),
	}
}

// put writes through the same path the facade uses.
func (f *fixture) put(ctx context.Context, lb model.Leaderboard, account string, score float64) int64 {
	cluster, err := f.router.RouteForWrite(ctx, lb, account)
	So(err, ShouldBeNil)
	_, err = f.store.UpsertEntry(ctx, model.Entry{
		Gamespace: lb.Gamespace, LeaderboardID: lb.ID, AccountID: account,
		ClusterID: cluster, Score: score, DisplayName: account, ExpiresAt: f.expires,
	})
	So(err, ShouldBeNil)
	return cluster
}

func (f *fixture) board(ctx context.Context, name string, order model.SortOrder, clustered bool) model.Leaderboard {
	lb, err := f.directory.ResolveOrCreate(ctx, model.Ref{Gamespace: "gs", Name: name, Order: order, Clustered: clustered})
	So(err, ShouldBeNil)
	return lb
}

func scores(p model.Page) []float64 {
	out := make([]float64, len(p.Data))
	for i, r := range p.Data {
		out[i] = r.Score
	}
	return out
}

func ranks(p model.Page) []int {
	out := make([]int, len(p.Data))
	for i, r := range p.Data {
		out[i] = r.Rank
	}
	return out
}

func names(p model.Page) []string {
	out := make([]string, len(p.Data))
	for i, r := range p.Data {
		out[i] = r.AccountID
	}
	return out
}
