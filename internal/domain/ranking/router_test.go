package ranking_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/placement"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/ranking"
)

type brokenPlacement struct{ *placement.Memory }

func (brokenPlacement) LeaveCluster(context.Context, string, int64, string) error {
	return errors.New("placement service down")
}

func TestRouter(t *testing.T) {
	Convey("Given a router with clusters of two", t, func() {
		ctx := context.Background()
		r := ranking.NewRouter(placement.NewMemory(), ranking.Config{ClusterSize: 2})
		flat := model.Leaderboard{ID: 1, Gamespace: "gs", Order: model.Descending}
		clustered := model.Leaderboard{ID: 2, Gamespace: "gs", Order: model.Descending, Clustered: true}

		Convey("When routing on a non-clustered leaderboard", func() {
			w, err1 := r.RouteForWrite(ctx, flat, "a")
			rd, err2 := r.RouteForRead(ctx, flat, "b")
			ids, err3 := r.ListClusters(ctx, flat)

			Convey("Then cluster 0 is always used", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(w, ShouldEqual, model.NoCluster)
				So(rd, ShouldEqual, model.NoCluster)
				So(ids, ShouldResemble, []int64{model.NoCluster})
				So(r.Leave(ctx, flat, "a"), ShouldBeNil)
				So(r.DeleteClusters(ctx, flat), ShouldBeNil)
			})
		})

		Convey("When reading a clustered leaderboard before any write", func() {
			_, err := r.RouteForRead(ctx, clustered, "a")

			Convey("Then no placement is created", func() {
				So(errors.Is(err, model.ErrNoClusterPlacement), ShouldBeTrue)
				ids, _ := r.ListClusters(ctx, clustered)
				So(ids, ShouldBeEmpty)
			})
		})

		Convey("When three accounts write", func() {
			a, _ := r.RouteForWrite(ctx, clustered, "a")
			b, _ := r.RouteForWrite(ctx, clustered, "b")
			c, _ := r.RouteForWrite(ctx, clustered, "c")

			Convey("Then they fill clusters of the configured size", func() {
				So(a, ShouldBeGreaterThan, 0)
				So(b, ShouldEqual, a)
				So(c, ShouldNotEqual, a)
				read, err := r.RouteForRead(ctx, clustered, "c")
				So(err, ShouldBeNil)
				So(read, ShouldEqual, c)
			})

			Convey("Then a purge removes their placements", func() {
				So(r.Purge(ctx, "gs", []string{"a", "b"}, true), ShouldBeNil)
				ids, _ := r.ListClusters(ctx, clustered)
				So(ids, ShouldResemble, []int64{c})
			})
		})
	})

	Convey("Given a placement that cannot remove accounts", t, func() {
		r := ranking.NewRouter(brokenPlacement{placement.NewMemory()}, ranking.Config{})
		err := r.Leave(context.Background(), model.Leaderboard{ID: 1, Gamespace: "gs", Clustered: true}, "a")

		Convey("Then the failure is a placement engine error", func() {
			var ee *model.EngineError
			So(errors.As(err, &ee), ShouldBeTrue)
			So(ee.Code, ShouldEqual, model.CodePlacement)
		})
	})
}
