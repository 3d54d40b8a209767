package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/geoasistencia/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseMarkType(t *testing.T) {
	convey.Convey("Given raw mark type strings", t, func() {
		convey.Convey("When the value is a known type in any case", func() {
			entrada, err1 := model.ParseMarkType("entrada")
			salida, err2 := model.ParseMarkType(" SALIDA ")

			convey.Convey("Then it should parse", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(entrada, convey.ShouldEqual, model.Entrada)
				convey.So(salida, convey.ShouldEqual, model.Salida)
			})
		})

		convey.Convey("When the value is unknown", func() {
			_, err := model.ParseMarkType("BREAK")

			convey.Convey("Then it should return ErrUnknownMarkType", func() {
				convey.So(errors.Is(err, model.ErrUnknownMarkType), convey.ShouldBeTrue)
			})
		})
	})
}

func TestDailyHistory(t *testing.T) {
	convey.Convey("Given an empty history", t, func() {
		var h model.DailyHistory

		convey.Convey("Then it should have no latest mark", func() {
			_, ok := h.Latest()
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(h.Len(), convey.ShouldEqual, 0)
		})

		convey.Convey("When marks are prepended", func() {
			h1 := h.Prepend(model.Mark{ID: "a", Type: model.Entrada})
			h2 := h1.Prepend(model.Mark{ID: "b", Type: model.Salida})

			convey.Convey("Then the newest mark should come first", func() {
				latest, ok := h2.Latest()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(latest.ID, convey.ShouldEqual, "b")
				convey.So(h2.Len(), convey.ShouldEqual, 2)
			})

			convey.Convey("And the previous history should be untouched", func() {
				convey.So(h1.Len(), convey.ShouldEqual, 1)
				latest, _ := h1.Latest()
				convey.So(latest.ID, convey.ShouldEqual, "a")
			})
		})
	})
}
