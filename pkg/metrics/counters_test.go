package metrics

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCounters(t *testing.T) {
	Convey("Given a new Counters instance", t, func() {
		m := NewCounters()

		Convey("When recording recalls", func() {
			m.RecordRecall(100 * time.Millisecond)
			m.RecordRecall(300 * time.Millisecond)

			Convey("Then the snapshot should average the duration", func() {
				snap := m.Snapshot()
				So(snap["recalls"], ShouldEqual, int64(2))
				So(snap["avg_recall_seconds"], ShouldAlmostEqual, 0.2, 0.0001)
			})
		})

		Convey("When recording access updates", func() {
			m.RecordAccessUpdate(true)
			m.RecordAccessUpdate(false)

			Convey("Then failures should be counted separately", func() {
				So(m.AccessUpdates, ShouldEqual, int64(2))
				So(m.AccessFailures, ShouldEqual, int64(1))
			})
		})

		Convey("When recording bulk rewrites and reloads", func() {
			m.RecordBulkRewrite(120, false)
			m.RecordBulkRewrite(30, true)
			m.RecordReload(true)
			m.RecordReload(false)

			Convey("Then all counters should be reflected", func() {
				snap := m.Snapshot()
				So(snap["bulk_rewrites"], ShouldEqual, int64(2))
				So(snap["rewritten_records"], ShouldEqual, int64(150))
				So(snap["bulk_rewrite_failures"], ShouldEqual, int64(1))
				So(snap["reloads"], ShouldEqual, int64(2))
				So(snap["reload_failures"], ShouldEqual, int64(1))
			})
		})

		Convey("When there were no recalls", func() {
			Convey("Then the average should be zero instead of NaN", func() {
				So(m.Snapshot()["avg_recall_seconds"], ShouldEqual, 0.0)
			})
		})
	})

	Convey("Given a nil Counters", t, func() {
		var m *Counters

		Convey("Then recording should be a no-op", func() {
			So(func() { m.RecordRecall(time.Second) }, ShouldNotPanic)
			So(func() { m.RecordAccessUpdate(false) }, ShouldNotPanic)
		})
	})
}
