package types_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/types"
)

func TestSubmission(t *testing.T) {
	Convey("Given a submission living ninety seconds", t, func() {
		s := types.Submission{Account: "alice", ExpireIn: 90 * time.Second}
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		Convey("Then it expires ninety seconds after it is written", func() {
			So(s.ExpiresAt(now), ShouldEqual, now.Add(90*time.Second))
		})
	})
}
