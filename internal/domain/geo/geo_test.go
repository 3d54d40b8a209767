package geo_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/geoasistencia/internal/domain/geo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDistanceMeters(t *testing.T) {
	Convey("Given two coordinates", t, func() {
		guayaquil := geo.Coordinate{Lat: -2.2038, Lng: -79.8819}

		Convey("When both points are the same", func() {
			Convey("Then the distance should be zero", func() {
				So(geo.DistanceMeters(guayaquil, guayaquil), ShouldEqual, 0)
			})
		})

		Convey("When the points are one degree of latitude apart", func() {
			a := geo.Coordinate{Lat: 0, Lng: 0}
			b := geo.Coordinate{Lat: 1, Lng: 0}

			Convey("Then the distance should match the arc length", func() {
				expected := geo.EarthRadiusMeters * math.Pi / 180
				So(geo.DistanceMeters(a, b), ShouldAlmostEqual, expected, 1e-6)
			})
		})

		Convey("When the points are a few tens of meters apart", func() {
			// 0.0003 degrees of latitude is about 33.36 m.
			near := geo.Coordinate{Lat: guayaquil.Lat + 0.0003, Lng: guayaquil.Lng}
			expected := geo.EarthRadiusMeters * 0.0003 * math.Pi / 180

			Convey("Then the result should be sub-meter accurate", func() {
				So(math.Abs(geo.DistanceMeters(guayaquil, near)-expected), ShouldBeLessThan, 0.5)
			})
		})

		Convey("When the arguments are swapped", func() {
			other := geo.Coordinate{Lat: -2.19, Lng: -79.89}

			Convey("Then the distance should be symmetric", func() {
				So(geo.DistanceMeters(guayaquil, other), ShouldAlmostEqual, geo.DistanceMeters(other, guayaquil), 1e-9)
			})
		})

		Convey("When the points are antipodal", func() {
			a := geo.Coordinate{Lat: 0, Lng: 0}
			b := geo.Coordinate{Lat: 0, Lng: 180}

			Convey("Then the distance should be half the circumference", func() {
				So(geo.DistanceMeters(a, b), ShouldAlmostEqual, geo.EarthRadiusMeters*math.Pi, 1e-3)
			})
		})
	})
}

func TestCoordinateValidate(t *testing.T) {
	Convey("Given coordinates at and beyond the valid ranges", t, func() {
		So(geo.Coordinate{Lat: 90, Lng: 180}.Validate(), ShouldBeNil)
		So(geo.Coordinate{Lat: -90, Lng: -180}.Validate(), ShouldBeNil)

		err := geo.Coordinate{Lat: 91, Lng: 0}.Validate()
		So(errors.Is(err, geo.ErrInvalidCoordinate), ShouldBeTrue)

		err = geo.Coordinate{Lat: 0, Lng: -180.5}.Validate()
		So(errors.Is(err, geo.ErrInvalidCoordinate), ShouldBeTrue)

		err = geo.Coordinate{Lat: math.NaN(), Lng: 0}.Validate()
		So(errors.Is(err, geo.ErrInvalidCoordinate), ShouldBeTrue)
	})
}
