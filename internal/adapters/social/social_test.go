package social_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/social"
)

func TestClient(t *testing.T) {
	Convey("Given a social service", t, func() {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			switch r.URL.Query().Get("account") {
			case "lonely":
				_, _ = w.Write([]byte(`[]`))
			case "broken":
				http.Error(w, "nope", http.StatusBadGateway)
			default:
				_, _ = w.Write([]byte(`[{"account":"b","profile":{}},{"account":"c"},{"account":""}]`))
			}
		}))
		defer srv.Close()
		c := social.NewClient(srv.URL+"/", time.Second)
		ctx := context.Background()

		Convey("When listing friends", func() {
			friends, err := c.ListFriends(ctx, "gs", "a")

			Convey("Then the connection accounts are returned", func() {
				So(err, ShouldBeNil)
				So(friends, ShouldResemble, []string{"b", "c"})
				So(gotQuery, ShouldContainSubstring, "gamespace=gs")
				So(gotQuery, ShouldContainSubstring, "account=a")
			})
		})

		Convey("When the account has no connections", func() {
			friends, err := c.ListFriends(ctx, "gs", "lonely")
			So(err, ShouldBeNil)
			So(friends, ShouldBeEmpty)
		})

		Convey("When the service fails", func() {
			_, err := c.ListFriends(ctx, "gs", "broken")
			So(errors.Is(err, social.ErrUnexpectedStatus), ShouldBeTrue)
		})
	})
}

func TestStatic(t *testing.T) {
	Convey("Given static friend lists", t, func() {
		s := social.NewStatic()
		s.Set("gs", "a", "b", "c")

		friends, err := s.ListFriends(context.Background(), "gs", "a")
		So(err, ShouldBeNil)
		So(friends, ShouldResemble, []string{"b", "c"})

		none, err := s.ListFriends(context.Background(), "gs", "z")
		So(err, ShouldBeNil)
		So(none, ShouldBeEmpty)
	})
}
