package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/mq/queue"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/placement"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/social"
	service "github.com/anthill-platform/anthill-leaderboard/internal/app"
	"github.com/anthill-platform/anthill-leaderboard/internal/config"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc     *service.Service
	store   *repository.Store
	friends *social.Static
	clock   *clock
}

func newHarness(t *testing.T, tune func(*config.Config)) *harness {
	t.Helper()
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := repository.Open(ctx, repository.DriverSQLite, ":memory:", repository.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.New()
	cfg.ClusterSize = 2
	cfg.ExpirySweepIntervalMS = 0
	cfg.PurgeWorkerCount = 2
	if tune != nil {
		tune(cfg)
	}
	friends := social.NewStatic()
	svc := service.New(store, placement.NewSQL(store, nil),
		service.WithConfig(cfg),
		service.WithFriends(friends))
	return &harness{svc: svc, store: store, friends: friends, clock: clk}
}

func (h *harness) put(ctx context.Context, name string, order model.SortOrder, account string, score float64) bool {
	inserted, err := h.svc.Upsert(ctx, service.UpsertRequest{
		Gamespace:   "gs",
		Name:        name,
		Order:       order,
		Account:     account,
		Score:       score,
		DisplayName: "player " + account,
		Profile:     map[string]any{"level": 7},
		ExpireIn:    time.Hour,
	})
	So(err, ShouldBeNil)
	return inserted
}

func accounts(p model.Page) []string {
	out := make([]string, len(p.Data))
	for i, r := range p.Data {
		out[i] = r.AccountID
	}
	return out
}

func TestUpsert(t *testing.T) {
	Convey("Given an empty store", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		ref := h.svc.Ref("gs", "weekly", model.Descending)

		Convey("When the same account submits twice", func() {
			first := h.put(ctx, "weekly", model.Descending, "alice", 10)
			_, err := h.svc.Upsert(ctx, service.UpsertRequest{
				Gamespace: "gs", Name: "weekly", Order: model.Descending, Account: "alice",
				Score: 42, DisplayName: "Alice", Profile: map[string]any{"skin": "red"}, ExpireIn: time.Minute,
			})

			Convey("Then one entry holds the latest values", func() {
				So(first, ShouldBeTrue)
				So(err, ShouldBeNil)
				page, err := h.svc.Top(ctx, ref, "alice", 0, 10)
				So(err, ShouldBeNil)
				So(page.Entries, ShouldEqual, 1)
				So(page.Data[0].Score, ShouldEqual, 42)
				So(page.Data[0].DisplayName, ShouldEqual, "Alice")
				So(page.Data[0].Profile, ShouldResemble, map[string]any{"skin": "red"})
			})
		})

		Convey("When the opposite order is written", func() {
			h.put(ctx, "weekly", model.Descending, "alice", 10)
			h.put(ctx, "weekly", model.Ascending, "bob", 5)

			Convey("Then it is a separate leaderboard", func() {
				page, err := h.svc.Top(ctx, ref, "", 0, 10)
				So(err, ShouldBeNil)
				So(accounts(page), ShouldResemble, []string{"alice"})
			})
		})

		Convey("When first writers race on a new leaderboard", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := h.svc.Upsert(ctx, service.UpsertRequest{
						Gamespace: "gs", Name: "weekly", Order: model.Descending,
						Account: fmt.Sprintf("acc-%02d", i), Score: float64(i), ExpireIn: time.Hour,
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then every entry lands in one leaderboard", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				page, err := h.svc.Top(ctx, ref, "", 0, 100)
				So(err, ShouldBeNil)
				So(page.Entries, ShouldEqual, 20)
			})
		})

		Convey("When the request is malformed", func() {
			cases := map[string]service.UpsertRequest{
				"missing account": {Gamespace: "gs", Name: "weekly", Order: model.Descending, ExpireIn: time.Hour},
				"no ttl":          {Gamespace: "gs", Name: "weekly", Order: model.Descending, Account: "a"},
				"bad order":       {Gamespace: "gs", Name: "weekly", Order: "sideways", Account: "a", ExpireIn: time.Hour},
				"no gamespace":    {Name: "weekly", Order: model.Descending, Account: "a", ExpireIn: time.Hour},
			}
			for _, req := range cases {
				_, err := h.svc.Upsert(ctx, req)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			}
		})

		Convey("When reading a leaderboard nobody wrote to", func() {
			_, err := h.svc.Top(ctx, ref, "alice", 0, 10)
			So(errors.Is(err, model.ErrLeaderboardNotFound), ShouldBeTrue)
		})
	})
}

func TestExpiry(t *testing.T) {
	Convey("Given entries with different lifetimes", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		h.put(ctx, "daily", model.Descending, "long", 1)
		_, err := h.svc.Upsert(ctx, service.UpsertRequest{
			Gamespace: "gs", Name: "daily", Order: model.Descending, Account: "short", Score: 99, ExpireIn: time.Minute,
		})
		So(err, ShouldBeNil)
		ref := h.svc.Ref("gs", "daily", model.Descending)

		Convey("When the short lifetime passes", func() {
			h.clock.Advance(2 * time.Minute)

			Convey("Then the expired entry is no longer ranked", func() {
				page, err := h.svc.Top(ctx, ref, "", 0, 10)
				So(err, ShouldBeNil)
				So(accounts(page), ShouldResemble, []string{"long"})
			})

			Convey("Then the sweeper removes it", func() {
				n, err := h.svc.SweepExpired(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				n, err = h.svc.SweepExpired(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestClusteredLeaderboard(t *testing.T) {
	Convey("Given a clustered leaderboard with clusters of two", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		for i, acct := range []string{"a", "b", "c"} {
			h.put(ctx, "@weekly", model.Descending, acct, float64(10*(i+1)))
		}
		ref := h.svc.Ref("gs", "@weekly", model.Descending)
		So(ref.Clustered, ShouldBeTrue)

		Convey("When each account reads the top", func() {
			first, err1 := h.svc.Top(ctx, ref, "a", 0, 10)
			second, err2 := h.svc.Top(ctx, ref, "c", 0, 10)

			Convey("Then each sees only its cluster", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(accounts(first), ShouldResemble, []string{"b", "a"})
				So(accounts(second), ShouldResemble, []string{"c"})
			})
		})

		Convey("When an unplaced account reads", func() {
			_, err := h.svc.AroundMe(ctx, ref, "stranger", 0, 4)
			So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
		})

		Convey("When all clusters are listed", func() {
			agg, err := h.svc.ListAllClusters(ctx, ref, 10)

			Convey("Then both clusters report", func() {
				So(err, ShouldBeNil)
				So(agg.IDs(), ShouldHaveLength, 2)
				So(agg.Failed(), ShouldBeEmpty)
			})
		})

		Convey("When an entry is deleted", func() {
			So(h.svc.DeleteEntry(ctx, ref, "c"), ShouldBeNil)

			Convey("Then its placement is gone too", func() {
				_, err := h.svc.Top(ctx, ref, "c", 0, 10)
				So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
				agg, err := h.svc.ListAllClusters(ctx, ref, 10)
				So(err, ShouldBeNil)
				So(agg.IDs(), ShouldHaveLength, 1)
			})
		})

		Convey("When the leaderboard is deleted by name", func() {
			So(h.svc.DeleteLeaderboardByName(ctx, ref), ShouldBeNil)

			Convey("Then it and its placements are gone", func() {
				_, err := h.svc.Top(ctx, ref, "a", 0, 10)
				So(errors.Is(err, model.ErrLeaderboardNotFound), ShouldBeTrue)
				So(h.svc.DeleteLeaderboardByName(ctx, ref), ShouldBeNil)

				h.put(ctx, "@weekly", model.Descending, "z", 1)
				agg, err := h.svc.ListAllClusters(ctx, ref, 10)
				So(err, ShouldBeNil)
				So(agg.IDs(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestDeleteEntry(t *testing.T) {
	Convey("Given a flat leaderboard", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		h.put(ctx, "flat", model.Ascending, "a", 3)
		h.put(ctx, "flat", model.Ascending, "b", 1)
		ref := h.svc.Ref("gs", "flat", model.Ascending)

		Convey("When an entry is deleted", func() {
			So(h.svc.DeleteEntry(ctx, ref, "b"), ShouldBeNil)
			page, err := h.svc.Top(ctx, ref, "", 0, 10)
			So(err, ShouldBeNil)
			So(accounts(page), ShouldResemble, []string{"a"})
		})

		Convey("When the leaderboard does not exist", func() {
			err := h.svc.DeleteEntry(ctx, h.svc.Ref("gs", "missing", model.Ascending), "a")
			So(errors.Is(err, model.ErrLeaderboardNotFound), ShouldBeTrue)
		})
	})
}

func TestQueries(t *testing.T) {
	Convey("Given a descending leaderboard with scores 10 to 50", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		for _, s := range []float64{10, 20, 30, 40, 50} {
			h.put(ctx, "lb", model.Descending, fmt.Sprintf("acc-%.0f", s), s)
		}
		ref := h.svc.Ref("gs", "lb", model.Descending)

		Convey("When the owner of 30 looks around", func() {
			page, err := h.svc.AroundMe(ctx, ref, "acc-30", 0, 4)
			So(err, ShouldBeNil)
			So(accounts(page), ShouldResemble, []string{"acc-50", "acc-40", "acc-30", "acc-20"})
		})

		Convey("When acc-30 has friends acc-10 and acc-50", func() {
			h.friends.Set("gs", "acc-30", "acc-10", "acc-50", "ghost")
			page, err := h.svc.Friends(ctx, ref, "acc-30", 0, 10)

			Convey("Then only they are ranked", func() {
				So(err, ShouldBeNil)
				So(accounts(page), ShouldResemble, []string{"acc-50", "acc-10"})
				So(page.Data[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When the account has no friends", func() {
			page, err := h.svc.Friends(ctx, h.svc.Ref("gs", "nowhere", model.Descending), "acc-30", 0, 10)
			So(err, ShouldBeNil)
			So(page.Entries, ShouldEqual, 0)
		})

		Convey("When listing all clusters of a flat leaderboard", func() {
			agg, err := h.svc.ListAllClusters(ctx, ref, 2)
			So(err, ShouldBeNil)
			So(agg.IDs(), ShouldResemble, []int64{model.NoCluster})
			So(accounts(agg.Clusters[model.NoCluster].Page), ShouldResemble, []string{"acc-50", "acc-40"})
		})
	})
}

func TestAccountsPurged(t *testing.T) {
	Convey("Given an account in two gamespaces", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		for _, gs := range []string{"gs", "other"} {
			for _, acct := range []string{"gone", "kept"} {
				_, err := h.svc.Upsert(ctx, service.UpsertRequest{
					Gamespace: gs, Name: "@season", Order: model.Descending, Account: acct, Score: 1, ExpireIn: time.Hour,
				})
				So(err, ShouldBeNil)
			}
		}
		gsRef := h.svc.Ref("gs", "@season", model.Descending)
		otherRef := h.svc.Ref("other", "@season", model.Descending)

		Convey("When purged in one gamespace", func() {
			So(h.svc.AccountsPurged(ctx, "gs", []string{"gone"}, true), ShouldBeNil)

			Convey("Then the other gamespace keeps it", func() {
				_, err := h.svc.Top(ctx, gsRef, "gone", 0, 10)
				So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
				page, err := h.svc.Top(ctx, otherRef, "gone", 0, 10)
				So(err, ShouldBeNil)
				So(accounts(page), ShouldResemble, []string{"gone", "kept"})
			})
		})

		Convey("When purged everywhere", func() {
			So(h.svc.AccountsPurged(ctx, "", []string{"gone"}, false), ShouldBeNil)

			Convey("Then every gamespace lost it", func() {
				page, err := h.svc.Top(ctx, otherRef, "kept", 0, 10)
				So(err, ShouldBeNil)
				So(accounts(page), ShouldResemble, []string{"kept"})
			})
		})

		Convey("When the gamespace is missing for a scoped purge", func() {
			err := h.svc.AccountsPurged(ctx, "", []string{"gone"}, true)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestPurgePipeline(t *testing.T) {
	Convey("Given a started service", t, func() {
		h := newHarness(t, nil)
		ctx := context.Background()
		h.put(ctx, "lb", model.Descending, "gone", 5)
		h.put(ctx, "lb", model.Descending, "kept", 3)
		ref := h.svc.Ref("gs", "lb", model.Descending)
		So(h.svc.Start(ctx), ShouldBeNil)

		Convey("When a purge event is enqueued", func() {
			id, err := h.svc.EnqueuePurge(ctx, model.PurgeEvent{Gamespace: "gs", Accounts: []string{"gone"}, GamespaceOnly: true})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then a worker applies it", func() {
				deadline := time.Now().Add(5 * time.Second)
				var names []string
				for time.Now().Before(deadline) {
					page, err := h.svc.Top(ctx, ref, "", 0, 10)
					So(err, ShouldBeNil)
					if names = accounts(page); len(names) == 1 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(names, ShouldResemble, []string{"kept"})
				So(h.svc.Stop(ctx), ShouldBeNil)
				So(errors.Is(h.svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})

		Convey("When the same event id arrives twice", func() {
			e := model.PurgeEvent{EventID: "evt-1", Gamespace: "gs", Accounts: []string{"gone"}, GamespaceOnly: true}
			_, err1 := h.svc.EnqueuePurge(ctx, e)
			_, err2 := h.svc.EnqueuePurge(ctx, e)
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.svc.Stats().RememberedPurgeIDs, ShouldEqual, 1)
		})

		Convey("When the event names no accounts", func() {
			_, err := h.svc.EnqueuePurge(ctx, model.PurgeEvent{Gamespace: "gs"})
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			So(h.svc.Stop(ctx), ShouldBeNil)
		})
	})

	Convey("Given a service whose queue holds one event and is not started", t, func() {
		h := newHarness(t, func(c *config.Config) { c.PurgeQueueSize = 1 })
		ctx := context.Background()

		_, err1 := h.svc.EnqueuePurge(ctx, model.PurgeEvent{EventID: "1", Accounts: []string{"a"}})
		_, err2 := h.svc.EnqueuePurge(ctx, model.PurgeEvent{EventID: "2", Accounts: []string{"b"}})

		Convey("Then the overflowing event is rejected and forgotten", func() {
			So(err1, ShouldBeNil)
			So(errors.Is(err2, queue.ErrFull), ShouldBeTrue)
			stats := h.svc.Stats()
			So(stats.Started, ShouldBeFalse)
			So(stats.PurgeQueueLength, ShouldEqual, 1)
			So(stats.RememberedPurgeIDs, ShouldEqual, 1)
		})
	})
}

func TestConcurrentWritesOnFileStore(t *testing.T) {
	Convey("Given a file-backed store with a pooled connection set", t, func() {
		ctx := context.Background()
		dsn := "file:" + filepath.Join(t.TempDir(), "leaderboard.db") + "?_pragma=journal_mode(WAL)"
		store, err := repository.Open(ctx, repository.DriverSQLite, dsn, repository.WithMaxOpenConns(8))
		So(err, ShouldBeNil)
		defer func() { _ = store.Close() }()
		So(store.Migrate(ctx), ShouldBeNil)

		cfg := config.New()
		cfg.ClusterSize = 5
		cfg.ExpirySweepIntervalMS = 0
		svc := service.New(store, placement.NewSQL(store, nil), service.WithConfig(cfg))
		defer func() { _ = svc.Stop(ctx) }()

		for _, name := range []string{"weekly", "@season"} {
			Convey("When 64 writes for 32 accounts race on "+name, func() {
				var wg sync.WaitGroup
				errs := make(chan error, 64)
				for i := 0; i < 64; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := svc.Upsert(ctx, service.UpsertRequest{
							Gamespace: "gs", Name: name, Order: model.Descending,
							Account: fmt.Sprintf("acc-%02d", i%32), Score: float64(i), ExpireIn: time.Hour,
						})
						errs <- err
					}(i)
				}
				wg.Wait()
				close(errs)

				Convey("Then every write succeeds into one leaderboard", func() {
					for err := range errs {
						So(err, ShouldBeNil)
					}
					conn := store.Conn()
					var boards, rows, accounts int
					So(conn.QueryRow(ctx,
						`SELECT COUNT(*) FROM leaderboards WHERE gamespace_id = ? AND leaderboard_name = ?`,
						"gs", name).Scan(&boards), ShouldBeNil)
					So(boards, ShouldEqual, 1)
					So(conn.QueryRow(ctx,
						`SELECT COUNT(*), COUNT(DISTINCT account_id) FROM records WHERE gamespace_id = ?`,
						"gs").Scan(&rows, &accounts), ShouldBeNil)
					So(rows, ShouldEqual, 32)
					So(accounts, ShouldEqual, 32)

					var biggest, placed int
					So(conn.QueryRow(ctx,
						`SELECT COALESCE(MAX(members), 0), COALESCE(SUM(members), 0) FROM clusters`).Scan(&biggest, &placed), ShouldBeNil)
					if name == "@season" {
						So(biggest, ShouldBeLessThanOrEqualTo, cfg.ClusterSize)
						So(placed, ShouldEqual, 32)
					} else {
						So(placed, ShouldEqual, 0)
					}
				})
			})
		}
	})
}
