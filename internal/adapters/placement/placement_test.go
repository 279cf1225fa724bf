package placement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/placement"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

type capability interface {
	GetCluster(ctx context.Context, gamespace string, leaderboardID int64, account string, clusterSize int, autoCreate bool) (int64, error)
	ListClusters(ctx context.Context, gamespace string, leaderboardID int64) ([]int64, error)
	LeaveCluster(ctx context.Context, gamespace string, leaderboardID int64, account string) error
	DeleteClusters(ctx context.Context, gamespace string, leaderboardID int64) error
	PurgeAccounts(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) error
}

func newSQL(t *testing.T) capability {
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
	return placement.NewSQL(store, nil)
}

func newMemory(*testing.T) capability { return placement.NewMemory() }

func TestPlacement(t *testing.T) {
	for name, factory := range map[string]func(*testing.T) capability{"sql": newSQL, "memory": newMemory} {
		Convey("Given the "+name+" placement", t, func() {
			p := factory(t)
			ctx := context.Background()

			Convey("When an unplaced account is read without auto-create", func() {
				_, err := p.GetCluster(ctx, "gs", 1, "a", 2, false)

				Convey("Then there is no placement", func() {
					So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
				})
			})

			Convey("When five accounts join clusters of two", func() {
				ids := map[string]int64{}
				for i := 0; i < 5; i++ {
					acc := fmt.Sprintf("acc-%d", i)
					id, err := p.GetCluster(ctx, "gs", 1, acc, 2, true)
					So(err, ShouldBeNil)
					ids[acc] = id
				}

				Convey("Then clusters fill in order and stay within capacity", func() {
					So(ids["acc-0"], ShouldEqual, ids["acc-1"])
					So(ids["acc-2"], ShouldEqual, ids["acc-3"])
					So(ids["acc-2"], ShouldNotEqual, ids["acc-0"])
					So(ids["acc-4"], ShouldNotEqual, ids["acc-2"])
					So(ids["acc-0"], ShouldBeGreaterThan, 0)
					clusters, err := p.ListClusters(ctx, "gs", 1)
					So(err, ShouldBeNil)
					So(clusters, ShouldHaveLength, 3)
				})

				Convey("Then a repeated read returns the same cluster", func() {
					id, err := p.GetCluster(ctx, "gs", 1, "acc-3", 2, false)
					So(err, ShouldBeNil)
					So(id, ShouldEqual, ids["acc-3"])
				})

				Convey("Then a leaving account frees its seat", func() {
					So(p.LeaveCluster(ctx, "gs", 1, "acc-0"), ShouldBeNil)
					So(p.LeaveCluster(ctx, "gs", 1, "nobody"), ShouldBeNil)
					_, err := p.GetCluster(ctx, "gs", 1, "acc-0", 2, false)
					So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
					id, err := p.GetCluster(ctx, "gs", 1, "newcomer", 2, true)
					So(err, ShouldBeNil)
					So(id, ShouldEqual, ids["acc-1"])
				})

				Convey("Then purging in another gamespace keeps them", func() {
					So(p.PurgeAccounts(ctx, "other", []string{"acc-4"}, true), ShouldBeNil)
					clusters, _ := p.ListClusters(ctx, "gs", 1)
					So(clusters, ShouldHaveLength, 3)
				})

				Convey("Then purging everywhere empties their cluster", func() {
					So(p.PurgeAccounts(ctx, "", []string{"acc-4"}, false), ShouldBeNil)
					clusters, _ := p.ListClusters(ctx, "gs", 1)
					So(clusters, ShouldHaveLength, 2)
					So(clusters, ShouldNotContain, ids["acc-4"])
				})

				Convey("Then deleting the clusters forgets every placement", func() {
					So(p.DeleteClusters(ctx, "gs", 1), ShouldBeNil)
					clusters, err := p.ListClusters(ctx, "gs", 1)
					So(err, ShouldBeNil)
					So(clusters, ShouldBeEmpty)
					_, err = p.GetCluster(ctx, "gs", 1, "acc-1", 2, false)
					So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
				})
			})

			Convey("When the cluster size is not positive", func() {
				_, err := p.GetCluster(ctx, "gs", 1, "a", 0, true)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	}
}

func TestMemoryConcurrentPlacement(t *testing.T) {
	Convey("Given concurrent joins on the memory placement", t, func() {
		p := placement.NewMemory()
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = p.GetCluster(ctx, "gs", 7, fmt.Sprintf("a%d", i), 10, true)
			}(i)
		}
		wg.Wait()

		Convey("Then exactly five full clusters exist", func() {
			clusters, err := p.ListClusters(ctx, "gs", 7)
			So(err, ShouldBeNil)
			So(clusters, ShouldHaveLength, 5)
		})
	})
}
