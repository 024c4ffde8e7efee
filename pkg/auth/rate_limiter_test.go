package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimiterAllow(t *testing.T) {
	Convey("Given a limiter with capacity 2 per second", t, func() {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(2, time.Second)
		rl.now = func() time.Time { return clock }
		rl.last = clock

		Convey("Then the third call is limited", func() {
			So(rl.Allow(), ShouldBeTrue)
			So(rl.Allow(), ShouldBeTrue)
			So(rl.Allow(), ShouldBeFalse)
			So(rl.WaitTime(), ShouldEqual, 500*time.Millisecond)

			Convey("And half a second later it allows again", func() {
				clock = clock.Add(500 * time.Millisecond)
				So(rl.Allow(), ShouldBeTrue)
				So(rl.Allow(), ShouldBeFalse)
			})
		})
	})
}
