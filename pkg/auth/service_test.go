package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAuthenticate(t *testing.T) {
	Convey("Given a service with a secret", t, func() {
		svc := NewService("s3cret", 100)
		tok, err := svc.GenerateToken("admin", time.Hour)
		So(err, ShouldBeNil)

		Convey("A signed bearer token is accepted", func() {
			So(svc.Authenticate("Bearer "+tok), ShouldBeNil)
		})

		Convey("A missing header is rejected", func() {
			So(svc.Authenticate(""), ShouldNotBeNil)
		})

		Convey("A token signed with another secret is rejected", func() {
			other, _ := NewService("other", 100).GenerateToken("admin", time.Hour)
			So(svc.Authenticate("Bearer "+other), ShouldNotBeNil)
		})

		Convey("An expired token is rejected", func() {
			expired, _ := svc.GenerateToken("admin", -time.Minute)
			So(svc.Authenticate("Bearer "+expired), ShouldNotBeNil)
		})

		Convey("A token without expiry is rejected", func() {
			raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"}).SignedString([]byte("s3cret"))
			So(svc.Authenticate("Bearer "+raw), ShouldNotBeNil)
		})
	})

	Convey("Given a service without a secret", t, func() {
		svc := NewService("", 1)

		Convey("Requests pass until the rate limit", func() {
			So(svc.Enabled(), ShouldBeFalse)
			So(svc.Authenticate(""), ShouldBeNil)
			So(svc.Authenticate(""), ShouldEqual, ErrRateLimited)

			_, err := svc.GenerateToken("admin", time.Hour)
			So(err, ShouldNotBeNil)
		})
	})
}
