package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a deduper remembering three ids", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		ctx := context.Background()

		Convey("When an id is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "purge-1")
			second := d.SeenAndRecord(ctx, "purge-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded id is unrecorded", func() {
			d.SeenAndRecord(ctx, "purge-1")
			d.Unrecord(ctx, "purge-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "purge-1"), ShouldBeFalse)
			})
		})

		Convey("When more ids arrive than it can hold", func() {
			for i := 1; i <= 3; i++ {
				d.SeenAndRecord(ctx, fmt.Sprint("purge-", i))
			}
			// a repeat lookup must not keep purge-1 alive
			So(d.SeenAndRecord(ctx, "purge-1"), ShouldBeTrue)
			d.SeenAndRecord(ctx, "purge-4")

			Convey("Then the oldest id is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "purge-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "purge-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "purge-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a non-positive size", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))
		So(d.SeenAndRecord(context.Background(), "x"), ShouldBeFalse)
		So(d.SeenAndRecord(context.Background(), "x"), ShouldBeTrue)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same ids", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprint("purge-", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is fresh exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
