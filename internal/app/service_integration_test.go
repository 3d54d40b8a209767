package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	service "github.com/okian/geoasistencia/internal/app"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given an employee who clocked in and walks away from the site", t, func() {
		entrada := model.Mark{ID: "e1", Type: model.Entrada, SiteID: "7", SiteName: "Matriz", ServerTimestamp: time.Now()}
		gw := gateway.NewMemory(gateway.WithSites(matriz), gateway.WithHistory(entrada))

		walk := append(location.Line(matriz.Center, matriz.Center, 2, 5), location.Line(matriz.Center, outside, 4, 5)...)
		walk = append(walk, location.Line(outside, matriz.Center, 2, 5)...)
		src := location.NewTrackSource(walk, location.WithInterval(10*time.Millisecond))

		svc := service.New(
			service.WithGateway(gw),
			service.WithLocationSource(src),
			service.WithAutoCloseCooldown(time.Second),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		So(eventually(func() bool { return snapshot(svc).State == session.Open }), ShouldBeTrue)

		Convey("When the track is replayed", func() {
			So(svc.StartGPS(ctx), ShouldBeNil)

			Convey("Then exactly one automatic SALIDA is saved", func() {
				So(eventually(func() bool { return len(gw.Submitted()) >= 1 }), ShouldBeTrue)
				// let the rest of the track play out
				time.Sleep(150 * time.Millisecond)

				got := gw.Submitted()
				So(got, ShouldHaveLength, 1)
				So(got[0].Type, ShouldEqual, model.Salida)
				So(got[0].Automatic, ShouldBeTrue)
				So(got[0].SiteID, ShouldEqual, "7")

				So(eventually(func() bool { return snapshot(svc).State == session.Closed }), ShouldBeTrue)

				stats := svc.GetStats()
				So(stats["autoCloses"], ShouldEqual, int64(1))
				So(stats["marksAccepted"], ShouldEqual, int64(1))
			})
		})
	})
}
