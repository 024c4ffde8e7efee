package ranker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/metrics"
)

type fakeStore struct {
	mu        sync.Mutex
	matches   []memory.Hit
	limit     int
	threshold float64
	filter    *memory.Filter
	touched   map[string]map[string]any
	release   chan struct{}
	fail      bool
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, limit int, filter *memory.Filter, threshold float64, options ...memory.QueryOption) ([]memory.Hit, error) {
	f.limit, f.threshold, f.filter = limit, threshold, filter
	return f.matches, nil
}

func (f *fakeStore) SetPayload(ctx context.Context, id string, partial map[string]any) error {
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return fmt.Errorf("store unreachable")
	}

	if f.touched == nil {
		f.touched = map[string]map[string]any{}
	}

	f.touched[id] = partial

	return nil
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func record(id string, importance int, ageDays int, project string) memory.Record {
	return memory.Record{
		ID:         id,
		Importance: importance,
		Project:    project,
		CreatedAt:  now.Add(-time.Duration(ageDays) * 24 * time.Hour),
	}
}

func TestDecay(t *testing.T) {
	Convey("Given the importance shield", t, func() {
		Convey("Then importance 9 at 200 days does not decay at all", func() {
			So(Decay(9, 200*24*time.Hour), ShouldEqual, 1.0)
		})

		Convey("Then importance 8 is the first shielded value", func() {
			So(Decay(8, 400*24*time.Hour), ShouldEqual, 1.0)
			So(Decay(7, 400*24*time.Hour), ShouldBeLessThan, 1.0)
		})

		Convey("Then importance 5 halves at 90 days", func() {
			So(Decay(5, 90*24*time.Hour), ShouldAlmostEqual, 0.5, 1e-9)
			So(Decay(5, 0), ShouldEqual, 1.0)
		})
	})

	Convey("Given access counts", t, func() {
		So(AccessBoost(0), ShouldEqual, 0.0)
		So(AccessBoost(3), ShouldAlmostEqual, 0.03, 1e-9)
		So(AccessBoost(50), ShouldEqual, 0.1)
	})
}

func TestScore(t *testing.T) {
	Convey("Given an old important record and a fresh ordinary one with equal similarity", t, func() {
		old := Score(record("old", 9, 200, ""), 0.8, now, "")
		fresh := Score(record("fresh", 5, 0, ""), 0.8, now, "")

		Convey("Then both keep the full decay contribution", func() {
			So(old.Decay, ShouldEqual, 1.0)
			So(fresh.Decay, ShouldEqual, 1.0)
			So(old.Final, ShouldAlmostEqual, fresh.Final, 1e-12)
			So(old.Final, ShouldAlmostEqual, 0.7*0.8+0.2, 1e-12)
		})
	})

	Convey("Given a record in the current project", t, func() {
		r := record("a", 5, 0, "memoria")

		Convey("Then it is boosted by 1.2", func() {
			plain := Score(r, 0.5, now, "")
			boosted := Score(r, 0.5, now, "memoria")
			So(boosted.Multiplier, ShouldEqual, ProjectBoost)
			So(boosted.Final, ShouldAlmostEqual, plain.Final*1.2, 1e-12)
		})
	})
}

func TestRecall(t *testing.T) {
	Convey("Given candidates from the store", t, func() {
		store := &fakeStore{matches: []memory.Hit{
			{Record: record("stale", 5, 365, "other"), Score: 0.9},
			{Record: record("tie-old", 9, 30, "other"), Score: 0.6},
			{Record: record("tie-new", 9, 5, "other"), Score: 0.6},
			{Record: record("mine", 5, 10, "memoria"), Score: 0.6},
			{Record: record("weak", 5, 0, "other"), Score: 0.31},
		}}

		stats := metrics.NewCounters()
		ranker := New(store, WithClock(func() time.Time { return now }), WithCounters(stats))

		Convey("When recalling the top 3 from the current project", func() {
			results, err := ranker.Recall(context.Background(), Query{Vector: []float32{1}, K: 3, CurrentProject: "memoria"})
			ranker.Wait()

			Convey("Then the store is asked for twice as many with the default floor", func() {
				So(err, ShouldBeNil)
				So(store.limit, ShouldEqual, 6)
				So(store.threshold, ShouldEqual, DefaultThreshold)
			})

			Convey("Then the project match wins and ties go to the newer record", func() {
				So(len(results), ShouldEqual, 3)
				So(results[0].Record.ID, ShouldEqual, "mine")
				So(results[1].Record.ID, ShouldEqual, "stale")
				So(results[2].Record.ID, ShouldEqual, "tie-new")
			})

			Convey("Then each returned record is touched in the background", func() {
				So(len(store.touched), ShouldEqual, 3)
				So(store.touched["mine"][memory.FieldAccessCount], ShouldEqual, 1)
				So(stats.Snapshot()["access_updates"], ShouldEqual, int64(3))
			})
		})

		Convey("When an explicit project filter is given", func() {
			results, err := ranker.Recall(context.Background(), Query{
				Vector:         []float32{1},
				K:              5,
				CurrentProject: "memoria",
				Filter:         Filter{Project: "memoria", MinImportance: 3},
			})
			ranker.Wait()

			Convey("Then no boost is applied and the filter keeps only that project", func() {
				So(err, ShouldBeNil)
				for _, result := range results {
					So(result.Explain.Multiplier, ShouldEqual, 1.0)
				}

				So(store.filter.Must[0].Match, ShouldEqual, "memoria")
				So(store.filter.Must[0].Any, ShouldBeEmpty)
				So(*store.filter.Must[1].Range.GTE, ShouldEqual, 3.0)
			})
		})

		Convey("When a project filter asks for shared records too", func() {
			_, err := ranker.Recall(context.Background(), Query{
				Vector: []float32{1},
				K:      5,
				Filter: Filter{Project: "memoria", IncludeShared: true},
			})
			ranker.Wait()

			Convey("Then global and shared records are admitted", func() {
				So(err, ShouldBeNil)
				So(store.filter.Must[0].Any, ShouldResemble, []any{"memoria", memory.ProjectGlobal, memory.ProjectShared})
			})
		})

		Convey("When access updates are slow", func() {
			store.release = make(chan struct{})

			done := make(chan struct{})

			go func() {
				_, _ = ranker.Recall(context.Background(), Query{Vector: []float32{1}, K: 2})
				close(done)
			}()

			Convey("Then recall returns without waiting for them", func() {
				returned := false

				select {
				case <-done:
					returned = true
				case <-time.After(2 * time.Second):
				}

				So(returned, ShouldBeTrue)
				close(store.release)
				ranker.Wait()
			})
		})

		Convey("When access updates fail", func() {
			store.fail = true

			results, err := ranker.Recall(context.Background(), Query{Vector: []float32{1}, K: 2})
			ranker.Wait()

			Convey("Then the caller never sees it but the failure is counted", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 2)
				So(stats.Snapshot()["access_failures"], ShouldEqual, int64(2))
			})
		})
	})
}
