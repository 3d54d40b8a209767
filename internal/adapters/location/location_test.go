package location_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func recv(ch <-chan location.Update, within time.Duration) (location.Update, bool) {
	select {
	case u, ok := <-ch:
		return u, ok
	case <-time.After(within):
		return location.Update{}, false
	}
}

func TestPushSource(t *testing.T) {
	Convey("Given a push source", t, func() {
		src := location.NewPushSource(location.WithPushBuffer(2))
		ctx := context.Background()
		fix := model.Fix{Coord: geo.Coordinate{Lat: -2.2, Lng: -79.9}, AccuracyMeters: 10, CapturedAt: time.Now()}

		Convey("When pushing before Start", func() {
			So(errors.Is(src.Push(fix), location.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started", func() {
			ch, err := src.Start(ctx)
			So(err, ShouldBeNil)

			Convey("Then pushed fixes and failures come out in order", func() {
				So(src.Push(fix), ShouldBeNil)
				So(src.Fail(nil), ShouldBeNil)

				u, ok := recv(ch, time.Second)
				So(ok, ShouldBeTrue)
				So(u.Available(), ShouldBeTrue)
				So(u.Fix.Coord, ShouldResemble, fix.Coord)

				u, ok = recv(ch, time.Second)
				So(ok, ShouldBeTrue)
				So(errors.Is(u.Err, location.ErrTimeout), ShouldBeTrue)
			})

			Convey("Then invalid fixes are refused", func() {
				bad := fix
				bad.Coord.Lat = 91
				So(errors.Is(src.Push(bad), location.ErrInvalidPayload), ShouldBeTrue)
				So(errors.Is(src.Push(bad), geo.ErrInvalidCoordinate), ShouldBeTrue)
			})

			Convey("Then a full buffer reports backpressure", func() {
				So(src.Push(fix), ShouldBeNil)
				So(src.Push(fix), ShouldBeNil)
				So(errors.Is(src.Push(fix), location.ErrBackpressure), ShouldBeTrue)
			})

			Convey("Then a second Start is refused", func() {
				_, err := src.Start(ctx)
				So(errors.Is(err, location.ErrAlreadyStarted), ShouldBeTrue)
			})

			Convey("Then Stop closes the channel and can be repeated", func() {
				So(src.Stop(), ShouldBeNil)
				_, ok := <-ch
				So(ok, ShouldBeFalse)
				So(src.Stop(), ShouldBeNil)
				So(errors.Is(src.Push(fix), location.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When the start context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			ch, err := src.Start(cctx)
			So(err, ShouldBeNil)
			cancel()

			Convey("Then the source stops itself", func() {
				_, ok := recv(ch, time.Second)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestWatchdog(t *testing.T) {
	Convey("Given a watchdog with a short timeout", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		in := make(chan location.Update)
		out := location.Watchdog(ctx, in, 30*time.Millisecond)

		Convey("When no fix arrives", func() {
			u, ok := recv(out, time.Second)

			Convey("Then it reports a timeout once", func() {
				So(ok, ShouldBeTrue)
				So(errors.Is(u.Err, location.ErrTimeout), ShouldBeTrue)
				_, again := recv(out, 80*time.Millisecond)
				So(again, ShouldBeFalse)
			})
		})

		Convey("When fixes keep arriving", func() {
			fix := &model.Fix{CapturedAt: time.Now()}
			for i := 0; i < 4; i++ {
				in <- location.Update{Fix: fix}
				u, ok := recv(out, time.Second)
				So(ok, ShouldBeTrue)
				So(u.Available(), ShouldBeTrue)
				time.Sleep(10 * time.Millisecond)
			}

			Convey("Then a timeout follows only the final silence", func() {
				u, ok := recv(out, time.Second)
				So(ok, ShouldBeTrue)
				So(errors.Is(u.Err, location.ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When the input closes", func() {
			close(in)
			_, ok := <-out
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a disabled watchdog", t, func() {
		in := make(chan location.Update)
		out := location.Watchdog(context.Background(), in, 0)
		So(out == (<-chan location.Update)(in), ShouldBeTrue)
	})
}

func TestTrackSource(t *testing.T) {
	Convey("Given a track with a loss in the middle", t, func() {
		a := geo.Coordinate{Lat: -2.2038, Lng: -79.8819}
		points := []location.Waypoint{{Coord: a, AccuracyMeters: 5}, {Lost: true}, {Coord: a}}
		src := location.NewTrackSource(points, location.WithInterval(5*time.Millisecond))

		Convey("When replayed", func() {
			ch, err := src.Start(context.Background())
			So(err, ShouldBeNil)

			var got []location.Update
			for u := range ch {
				got = append(got, u)
			}

			Convey("Then every waypoint is emitted and the channel closes", func() {
				So(len(got), ShouldEqual, 3)
				So(got[0].Available(), ShouldBeTrue)
				So(got[0].Fix.AccuracyMeters, ShouldEqual, 5)
				So(errors.Is(got[1].Err, location.ErrTrackLoss), ShouldBeTrue)
				So(got[2].Available(), ShouldBeTrue)
				So(src.Stop(), ShouldBeNil)
			})
		})

		Convey("When looping and stopped", func() {
			loop := location.NewTrackSource(points, location.WithInterval(time.Millisecond), location.WithLoop(true))
			ch, err := loop.Start(context.Background())
			So(err, ShouldBeNil)
			for i := 0; i < 7; i++ {
				<-ch
			}
			So(loop.Stop(), ShouldBeNil)

			Convey("Then the channel is closed", func() {
				_, ok := recv(ch, time.Second)
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a line between two points", t, func() {
		a := geo.Coordinate{Lat: 0, Lng: 0}
		b := geo.Coordinate{Lat: 1, Lng: 2}
		line := location.Line(a, b, 4, 3)

		So(len(line), ShouldEqual, 5)
		So(line[0].Coord, ShouldResemble, a)
		So(line[4].Coord, ShouldResemble, b)
		So(line[2].Coord.Lat, ShouldAlmostEqual, 0.5)
		So(line[2].Coord.Lng, ShouldAlmostEqual, 1.0)
		So(line[1].AccuracyMeters, ShouldEqual, 3)
	})
}

func TestDecodeOwnTracks(t *testing.T) {
	Convey("Given OwnTracks payloads", t, func() {
		Convey("When the payload is a location", func() {
			fix, err := location.DecodeOwnTracks([]byte(`{"_type":"location","lat":-2.19,"lon":-79.88,"acc":12,"tst":1760860800}`))

			Convey("Then it decodes into a fix", func() {
				So(err, ShouldBeNil)
				So(fix.Coord, ShouldResemble, geo.Coordinate{Lat: -2.19, Lng: -79.88})
				So(fix.AccuracyMeters, ShouldEqual, 12)
				So(fix.CapturedAt.Equal(time.Unix(1760860800, 0)), ShouldBeTrue)
			})
		})

		Convey("When required fields are missing or invalid", func() {
			for _, p := range []string{
				`not json`,
				`{"_type":"location","lon":-79.88,"tst":1}`,
				`{"_type":"location","lat":-2.19,"lon":-79.88}`,
				`{"lat":95,"lon":0,"tst":1}`,
				`{"lat":0,"lon":0,"acc":-1,"tst":1}`,
			} {
				_, err := location.DecodeOwnTracks([]byte(p))
				So(errors.Is(err, location.ErrInvalidPayload), ShouldBeTrue)
			}
		})

		Convey("When the message is not a location", func() {
			fix, err := location.DecodeOwnTracks([]byte(`{"_type":"transition","event":"leave"}`))
			So(fix, ShouldBeNil)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, location.ErrInvalidPayload), ShouldBeFalse)
		})
	})
}
