package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInit(t *testing.T) {
	Convey("Given a log file path", t, func() {
		path := filepath.Join(t.TempDir(), "logs", "memoria.log")

		Convey("When initializing at debug level", func() {
			err := Init(path, "debug")
			defer Close()

			Convey("Then messages should land in the file", func() {
				So(err, ShouldBeNil)
				So(log.GetLevel(), ShouldEqual, log.DebugLevel)

				log.Info("hello from the test", "key", "value")

				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, "hello from the test")
			})
		})

		Convey("When the level is unknown", func() {
			err := Init(path, "chatty")
			defer Close()

			Convey("Then it should fall back to info", func() {
				So(err, ShouldBeNil)
				So(log.GetLevel(), ShouldEqual, log.InfoLevel)
			})
		})
	})
}
