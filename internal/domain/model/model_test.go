package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSortOrder(t *testing.T) {
	Convey("Given sort orders", t, func() {
		Convey("When parsing", func() {
			asc, err1 := model.ParseSortOrder(" ASC ")
			desc, err2 := model.ParseSortOrder("desc")
			_, err3 := model.ParseSortOrder("sideways")

			Convey("Then known orders parse and unknown ones are invalid arguments", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(asc, ShouldEqual, model.Ascending)
				So(desc, ShouldEqual, model.Descending)
				So(errors.Is(err3, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When comparing scores", func() {
			So(model.Descending.Better(50, 40), ShouldBeTrue)
			So(model.Descending.Better(40, 40), ShouldBeFalse)
			So(model.Ascending.Better(10, 20), ShouldBeTrue)
			So(model.Ascending.SQL(), ShouldEqual, "ASC")
			So(model.Descending.SQL(), ShouldEqual, "DESC")
			So(model.Descending.Reverse(), ShouldEqual, model.Ascending)
			So(model.SortOrder("x").Valid(), ShouldBeFalse)
		})
	})
}

func TestRefValidate(t *testing.T) {
	Convey("Given leaderboard references", t, func() {
		ok := model.Ref{Gamespace: "gs", Name: "weekly", Order: model.Descending}
		So(ok.Validate(), ShouldBeNil)

		cases := []model.Ref{
			{Name: "weekly", Order: model.Descending},
			{Gamespace: "gs", Name: "  ", Order: model.Descending},
			{Gamespace: "gs", Name: "weekly", Order: "up"},
		}
		for _, r := range cases {
			So(errors.Is(r.Validate(), model.ErrInvalidArgument), ShouldBeTrue)
		}
	})
}

func TestNewPage(t *testing.T) {
	Convey("Given scanned records", t, func() {
		records := []model.Record{
			{AccountID: "a", Score: 50, DisplayName: "A"},
			{AccountID: "b", Score: 40, Profile: map[string]any{"lvl": 3}},
		}

		Convey("When ranking from an offset", func() {
			page := model.NewPage(records, 11)

			Convey("Then ranks should be consecutive and profiles never nil", func() {
				So(page.Entries, ShouldEqual, 2)
				So(page.Data[0].Rank, ShouldEqual, 11)
				So(page.Data[1].Rank, ShouldEqual, 12)
				So(page.Data[0].Profile, ShouldNotBeNil)
				So(page.Data[1].Profile["lvl"], ShouldEqual, 3)
			})
		})

		Convey("When there is nothing to rank", func() {
			page := model.EmptyPage()
			So(page.Entries, ShouldEqual, 0)
			So(page.Data, ShouldNotBeNil)
			So(page.Data, ShouldBeEmpty)
		})
	})
}

func TestEngineError(t *testing.T) {
	Convey("Given collaborator failures", t, func() {
		cause := errors.New("disk on fire")

		Convey("When wrapping a plain error", func() {
			err := model.NewEngineError("top", model.CodeDB, cause)

			Convey("Then it should keep the cause and not be retryable", func() {
				var ee *model.EngineError
				So(errors.As(err, &ee), ShouldBeTrue)
				So(ee.Code, ShouldEqual, model.CodeDB)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(model.IsRetryable(err), ShouldBeFalse)
				So(err.Error(), ShouldContainSubstring, "top: db_error")
			})
		})

		Convey("When the store is busy", func() {
			So(model.IsRetryable(model.NewEngineError("upsert", model.CodeBusy, cause)), ShouldBeTrue)
		})

		Convey("When the context deadline passed", func() {
			err := model.NewEngineError("around", model.CodeDB, fmt.Errorf("scan: %w", context.DeadlineExceeded))
			var ee *model.EngineError
			So(errors.As(err, &ee), ShouldBeTrue)
			So(ee.Code, ShouldEqual, model.CodeTimeout)
			So(ee.Retryable, ShouldBeTrue)
		})

		Convey("When wrapping twice", func() {
			inner := model.NewEngineError("scan", model.CodeBusy, cause)
			outer := model.NewEngineError("top", model.CodeDB, fmt.Errorf("ctx: %w", inner))
			var ee *model.EngineError
			So(errors.As(outer, &ee), ShouldBeTrue)
			So(ee.Op, ShouldEqual, "scan")
		})

		Convey("When there is no error", func() {
			So(model.NewEngineError("top", model.CodeDB, nil), ShouldBeNil)
		})
	})
}
