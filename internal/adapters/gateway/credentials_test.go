package gateway_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/geoasistencia/internal/adapters/gateway"
	. "github.com/smartystreets/goconvey/convey"
)

func signed(claims jwt.MapClaims) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-secret"))
	So(err, ShouldBeNil)
	return s
}

func TestParseCredentials(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	Convey("Given bearer tokens", t, func() {
		Convey("When the token is valid", func() {
			tok := signed(jwt.MapClaims{
				"sub":       "42",
				"public_id": "EMP-001",
				"rol":       "empleado",
				"exp":       now.Add(time.Hour).Unix(),
			})
			creds, err := gateway.ParseCredentials(tok, now)

			Convey("Then claims are read without verifying the signature", func() {
				So(err, ShouldBeNil)
				So(creds.Subject, ShouldEqual, "42")
				So(creds.PublicID, ShouldEqual, "EMP-001")
				So(creds.Role, ShouldEqual, "empleado")
				So(creds.ExpiresAt.Equal(now.Add(time.Hour)), ShouldBeTrue)
				So(creds.Expired(now), ShouldBeFalse)
				So(creds.Expired(now.Add(2*time.Hour)), ShouldBeTrue)
			})
		})

		Convey("When the token only has a numeric id", func() {
			creds, err := gateway.ParseCredentials(signed(jwt.MapClaims{"id": 17}), now)
			So(err, ShouldBeNil)
			So(creds.PublicID, ShouldEqual, "17")
			So(creds.ExpiresAt.IsZero(), ShouldBeTrue)
			So(creds.Expired(now), ShouldBeFalse)
		})

		Convey("When the token has expired", func() {
			_, err := gateway.ParseCredentials(signed(jwt.MapClaims{"sub": "42", "exp": now.Add(-time.Minute).Unix()}), now)
			So(errors.Is(err, gateway.ErrTokenExpired), ShouldBeTrue)
		})

		Convey("When the token is malformed", func() {
			_, err := gateway.ParseCredentials("not-a-jwt", now)
			So(errors.Is(err, gateway.ErrInvalidToken), ShouldBeTrue)
		})
	})
}
