package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/memory"
)

// blockingBackend parks Count until unblock is closed, when entered is set.
type blockingBackend struct {
	memory.Backend

	entered chan struct{}
	unblock chan struct{}
	closed  atomic.Bool
}

func (b *blockingBackend) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	return false, nil
}

func (b *blockingBackend) EnsureIndex(ctx context.Context, field string, schema memory.IndexSchema) error {
	return nil
}

func (b *blockingBackend) Count(ctx context.Context, filter *memory.Filter) (int64, error) {
	if b.entered != nil {
		close(b.entered)
		<-b.unblock
	}

	if b.closed.Load() {
		return 0, errors.New("backend is closed")
	}

	return 1, nil
}

func (b *blockingBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func TestConnectionSwitchDrainsInFlightCalls(t *testing.T) {
	Convey("Given a call still running against the first connection", t, func() {
		ctx := context.Background()

		first := &blockingBackend{entered: make(chan struct{}), unblock: make(chan struct{})}
		second := &blockingBackend{}

		var mu sync.Mutex
		conn := config.Connection{Name: "default", URL: "http://first:6333", Collection: "memories"}

		active := func() config.Connection {
			mu.Lock()
			defer mu.Unlock()
			return conn
		}

		dial := func(ctx context.Context, c config.Connection) (memory.Backend, error) {
			if c.URL == "http://first:6333" {
				return first, nil
			}

			return second, nil
		}

		client := memory.NewClient(dial, active)
		done := make(chan error, 1)

		go func() {
			_, err := client.Count(ctx, nil)
			done <- err
		}()

		<-first.entered

		Convey("When the connection switches and another call goes through", func() {
			mu.Lock()
			conn = config.Connection{Name: "local", URL: "http://second:6333", Collection: "memories"}
			mu.Unlock()

			count, err := client.Count(ctx, nil)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, int64(1))

			Convey("Then the first backend stays open until its call returns", func() {
				So(first.closed.Load(), ShouldBeFalse)

				close(first.unblock)
				So(<-done, ShouldBeNil)
				So(first.closed.Load(), ShouldBeTrue)
				So(second.closed.Load(), ShouldBeFalse)

				So(client.Close(), ShouldBeNil)
				So(second.closed.Load(), ShouldBeTrue)
			})
		})
	})
}
