package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadOrCreate(t *testing.T) {
	Convey("Given a state directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "state", "device_id")

		Convey("When no id exists yet", func() {
			id, err := LoadOrCreate(path)

			Convey("Then a UUID is created and persisted", func() {
				So(err, ShouldBeNil)
				_, perr := uuid.Parse(id)
				So(perr, ShouldBeNil)

				again, err := LoadOrCreate(path)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, id)
			})
		})

		Convey("When the file holds garbage", func() {
			So(os.WriteFile(filepath.Join(dir, "bad"), []byte("not-a-uuid"), 0o600), ShouldBeNil)
			_, err := LoadOrCreate(filepath.Join(dir, "bad"))
			So(errors.Is(err, ErrInvalidID), ShouldBeTrue)
		})

		Convey("When no path is configured", func() {
			a, err := LoadOrCreate("")
			So(err, ShouldBeNil)
			b, _ := LoadOrCreate("")
			So(a, ShouldNotEqual, b)
		})
	})
}
