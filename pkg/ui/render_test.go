package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

func sample() *taxonomy.Taxonomy {
	return &taxonomy.Taxonomy{
		Version: taxonomy.Version,
		Categories: []taxonomy.Category{
			{Name: "home", Description: "Home life", IsParent: true},
			{Name: "garden", Description: "Plants", Parent: "home", Color: "#00ff00"},
			{Name: "work", Description: "Work notes"},
		},
	}
}

func TestCategoryView(t *testing.T) {
	Convey("Given a small taxonomy", t, func() {
		tax := sample()

		Convey("The tree nests children under their parent", func() {
			out := CategoryTree(taxonomy.Tree(tax))

			So(out, ShouldContainSubstring, "categories")
			So(strings.Index(out, "home"), ShouldBeLessThan, strings.Index(out, "garden"))
			So(out, ShouldContainSubstring, "Work notes")
		})

		Convey("The flat view names the parent", func() {
			view, err := taxonomy.Project(tax, taxonomy.FormatFlat)
			So(err, ShouldBeNil)
			So(CategoryView(view), ShouldContainSubstring, "in home")
		})

		Convey("The parents view counts children", func() {
			view, err := taxonomy.Project(tax, taxonomy.FormatParents)
			So(err, ShouldBeNil)
			So(CategoryView(view), ShouldContainSubstring, "(1)")
		})

		Convey("An empty tree says so", func() {
			So(CategoryTree(nil), ShouldContainSubstring, "no categories")
		})
	})
}

func TestRecallAndStale(t *testing.T) {
	Convey("Given ranked results", t, func() {
		results := []ranker.Result{{
			Record:  memory.Record{ID: "r1", Category: "work", Content: "standup at nine", CreatedAt: time.Now()},
			Explain: ranker.Explain{Similarity: 0.9, Decay: 1, Multiplier: 1.2, Final: 0.996},
		}}

		Convey("The score and breakdown are shown", func() {
			out := Recall(results, true)
			So(out, ShouldContainSubstring, "0.996")
			So(out, ShouldContainSubstring, "similarity 0.900")
			So(Recall(results, false), ShouldNotContainSubstring, "similarity")
			So(Recall(nil, false), ShouldContainSubstring, "nothing relevant")
		})
	})

	Convey("Given a staleness report", t, func() {
		out := Stale(staleness.Report{
			Checked: 2,
			Stale:   []staleness.Entry{{ID: "r1", Category: "work", Importance: 7, Preview: "notes", Changed: []string{"/tmp/a.md"}}},
			Missing: []staleness.Entry{{ID: "r2", Category: "home", Missing: []string{"/tmp/b.md"}}},
		})

		So(out, ShouldContainSubstring, "2 checked, 1 stale")
		So(out, ShouldContainSubstring, "changed /tmp/a.md")
		So(out, ShouldContainSubstring, "missing /tmp/b.md")
		So(Failure(errors.New("boom")), ShouldContainSubstring, "boom")
	})
}
