package stores

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/stores/qdrant"
	"github.com/theapemachine/memoria/pkg/stores/sqlite"
)

func TestDial(t *testing.T) {
	Convey("Given connection profiles with different schemes", t, func() {
		ctx := context.Background()

		Convey("Then http dials a qdrant client", func() {
			backend, err := Dial(ctx, config.Connection{URL: "http://localhost:6333", Collection: "memories"})
			So(err, ShouldBeNil)
			_, ok := backend.(*qdrant.Client)
			So(ok, ShouldBeTrue)
		})

		Convey("Then sqlite opens a local database", func() {
			path := filepath.Join(t.TempDir(), "local.db")
			backend, err := Dial(ctx, config.Connection{URL: "sqlite://" + path, Collection: "memories"})
			So(err, ShouldBeNil)
			defer backend.Close()

			_, ok := backend.(*sqlite.Store)
			So(ok, ShouldBeTrue)
		})

		Convey("Then an unknown scheme is refused", func() {
			_, err := Dial(ctx, config.Connection{URL: "redis://localhost"})
			So(err, ShouldNotBeNil)
		})
	})
}
