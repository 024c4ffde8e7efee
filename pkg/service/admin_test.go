package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/memoria/pkg/auth"
	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/embedding"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/stores/sqlite"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

type fixture struct {
	srv     *AdminServer
	records *memory.Service
	manager *taxonomy.Manager
}

func newFixture(t *testing.T, authn *auth.Service) *fixture {
	dir := t.TempDir()
	conn := config.Connection{Name: "default", URL: "sqlite://" + dir, Collection: "memories"}

	dial := func(ctx context.Context, conn config.Connection) (memory.Backend, error) {
		return sqlite.Open(filepath.Join(dir, "memoria.db"), conn.Collection)
	}

	embedder := embedding.NewMock(32)
	client := memory.NewClient(dial, func() config.Connection { return conn }, memory.WithDimension(embedder.Dimension))
	store := taxonomy.NewStore(filepath.Join(dir, "taxonomy.json"))
	manager := taxonomy.NewManager(store, client)
	records := memory.NewService(client, embedder, store)

	t.Cleanup(func() { client.Close() })

	for _, params := range []taxonomy.CreateParams{
		{Name: "work", Description: "Work notes"},
		{Name: "home", Description: "Home notes"},
		{Name: "garden", Description: "Plants", Parent: "home"},
	} {
		if _, err := manager.Create(context.Background(), params); err != nil {
			t.Fatal(err)
		}
	}

	return &fixture{
		srv: NewAdminServer(AdminDeps{
			Records:  records,
			Manager:  manager,
			Detector: staleness.NewDetector(client),
			Auth:     authn,
		}),
		records: records,
		manager: manager,
	}
}

func (f *fixture) do(method, target, body string, headers ...string) (int, string) {
	var reader io.Reader

	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.srv.App().Test(req)
	So(err, ShouldBeNil)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)

	return resp.StatusCode, string(data)
}

func (f *fixture) store(category, content string) string {
	record, err := f.records.Store(context.Background(), memory.NewRecord{Content: content, Category: category})
	So(err, ShouldBeNil)
	return record.ID
}

func TestCategoryRoutes(t *testing.T) {
	Convey("Given an admin server", t, func() {
		f := newFixture(t, nil)

		Convey("Categories list as a tree", func() {
			status, body := f.do(http.MethodGet, "/api/categories?format=tree", "")
			So(status, ShouldEqual, http.StatusOK)

			var view taxonomy.View
			So(json.Unmarshal([]byte(body), &view), ShouldBeNil)
			So(view.Tree, ShouldHaveLength, 2)

			status, _ = f.do(http.MethodGet, "/api/categories?format=graph", "")
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Creating a duplicate is a bad request", func() {
			status, _ := f.do(http.MethodPost, "/api/categories", `{"name":"recipes","description":"Cooking"}`)
			So(status, ShouldEqual, http.StatusCreated)

			status, body := f.do(http.MethodPost, "/api/categories", `{"name":"recipes","description":"Again"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(body, ShouldContainSubstring, "already exists")
		})

		Convey("A patch renames, moves and describes in one call", func() {
			f.store("home", "water the tomatoes")

			status, body := f.do(http.MethodPatch, "/api/categories/garden",
				`{"name":"yard","parent":"","description":"Outdoors"}`)
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"description":"Outdoors"`)

			yard, ok := f.manager.Store().Snapshot().Get("yard")
			So(ok, ShouldBeTrue)
			So(yard.Parent, ShouldBeEmpty)
		})

		Convey("A cyclic move is a conflict", func() {
			status, body := f.do(http.MethodPatch, "/api/categories/home", `{"parent":"garden"}`)
			So(status, ShouldEqual, http.StatusConflict)
			So(body, ShouldContainSubstring, "would create a cycle")
		})

		Convey("Patching an unknown category is not found", func() {
			status, _ := f.do(http.MethodPatch, "/api/categories/nope", `{"description":"x"}`)
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("Delete reports what blocks it", func() {
			status, body := f.do(http.MethodDelete, "/api/categories/home", "")
			So(status, ShouldEqual, http.StatusConflict)
			So(body, ShouldContainSubstring, `"children":["garden"]`)

			f.store("work", "standup at nine")
			f.store("work", "retro on fridays")

			status, body = f.do(http.MethodDelete, "/api/categories/work", "")
			So(status, ShouldEqual, http.StatusConflict)
			So(body, ShouldContainSubstring, `"records":2`)

			status, body = f.do(http.MethodDelete, "/api/categories/work?records_to=home", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"records":2`)
			So(f.manager.Store().Exists("work"), ShouldBeFalse)
		})

		Convey("The routing guide is served as text", func() {
			status, body := f.do(http.MethodGet, "/api/routing-guide", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, "garden")
		})
	})
}

func TestMemoryRoutes(t *testing.T) {
	Convey("Given an admin server with one memory", t, func() {
		f := newFixture(t, nil)
		id := f.store("work", "standup at nine")

		Convey("Trash, list and restore", func() {
			status, _ := f.do(http.MethodDelete, "/api/memories/"+id, "")
			So(status, ShouldEqual, http.StatusOK)

			status, body := f.do(http.MethodGet, "/api/trash", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, id)

			status, body = f.do(http.MethodGet, "/api/stats", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"trashed":1`)
			So(body, ShouldContainSubstring, `"memories":0`)

			status, _ = f.do(http.MethodPost, "/api/memories/"+id+"/restore", "")
			So(status, ShouldEqual, http.StatusOK)

			_, body = f.do(http.MethodGet, "/api/trash", "")
			So(body, ShouldEqual, "[]")
		})

		Convey("Purging a live memory is refused", func() {
			status, _ := f.do(http.MethodDelete, "/api/memories/"+id+"?purge=true", "")
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("The stale report is empty without related files", func() {
			status, body := f.do(http.MethodGet, "/api/stale", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"checked":0`)
		})

		Convey("Snapshots are empty without an archive", func() {
			status, body := f.do(http.MethodGet, "/api/snapshots", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, "[]")
		})
	})
}

func TestAuthentication(t *testing.T) {
	Convey("Given an admin server with a signing secret", t, func() {
		authn := auth.NewService("s3cret", 100)
		f := newFixture(t, authn)

		Convey("Requests without a token are unauthorized", func() {
			status, _ := f.do(http.MethodGet, "/api/stats", "")
			So(status, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Requests with a valid token pass", func() {
			token, err := authn.GenerateToken("admin", time.Hour)
			So(err, ShouldBeNil)

			status, _ := f.do(http.MethodGet, "/api/stats", "", "Authorization", "Bearer "+token)
			So(status, ShouldEqual, http.StatusOK)
		})
	})
}
