package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/memoria/pkg/memory"
)

type captured struct {
	method string
	path   string
	apiKey string
	body   map[string]any
}

func recorder(calls *[]captured, respond func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := captured{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("api-key")}
		_ = json.NewDecoder(r.Body).Decode(&call.body)
		*calls = append(*calls, call)
		respond(w, r)
	}))
}

func TestClientSearch(t *testing.T) {
	Convey("Given a qdrant client and a test server for search", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":[{"id":"1","score":0.9,"payload":{"content":"a"}},{"id":2,"score":0.5,"payload":{"content":"b"}}]}`)
		})
		defer ts.Close()

		client := New(ts.URL, "mem", WithAPIKey("secret"))
		filter := memory.Filter{}.And(memory.Match(memory.FieldCategory, "work")).Not(memory.IsEmpty(memory.FieldTrashedAt))

		points, err := client.Search(context.Background(), []float32{0.1}, 2, &filter, 0.3)

		Convey("Then the search results should be returned", func() {
			So(err, ShouldBeNil)
			So(len(points), ShouldEqual, 2)
			So(points[0].Payload["content"], ShouldEqual, "a")
			So(points[0].Score, ShouldEqual, 0.9)
			So(points[1].ID, ShouldEqual, "2")
		})

		Convey("Then the request should carry the filter and the credential", func() {
			So(len(calls), ShouldEqual, 1)
			So(calls[0].path, ShouldEqual, "/collections/mem/points/search")
			So(calls[0].apiKey, ShouldEqual, "secret")
			So(calls[0].body["score_threshold"], ShouldEqual, 0.3)

			encoded := calls[0].body["filter"].(map[string]any)
			must := encoded["must"].([]any)[0].(map[string]any)
			So(must["key"], ShouldEqual, "category")
			So(must["match"].(map[string]any)["value"], ShouldEqual, "work")

			mustNot := encoded["must_not"].([]any)[0].(map[string]any)
			So(mustNot["is_empty"].(map[string]any)["key"], ShouldEqual, "trashed_at")
		})
	})
}

func TestClientScroll(t *testing.T) {
	Convey("Given a test server that pages", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			if len(calls) == 1 {
				fmt.Fprint(w, `{"result":{"points":[{"id":"a","payload":{}}],"next_page_offset":"b"}}`)
				return
			}

			fmt.Fprint(w, `{"result":{"points":[{"id":"b","payload":{}}],"next_page_offset":null}}`)
		})
		defer ts.Close()

		client := New(ts.URL, "mem")

		Convey("When both pages are fetched", func() {
			first, err := client.Scroll(context.Background(), nil, 1, "")
			So(err, ShouldBeNil)

			second, err := client.Scroll(context.Background(), nil, 1, first.Next)
			So(err, ShouldBeNil)

			Convey("Then the cursor should be passed along and end empty", func() {
				So(first.Next, ShouldEqual, "b")
				So(second.Next, ShouldEqual, "")
				So(second.Points[0].ID, ShouldEqual, "b")
				So(calls[1].body["offset"], ShouldEqual, "b")
				So(calls[0].body["filter"], ShouldBeNil)
			})
		})
	})
}

func TestEnsureCollection(t *testing.T) {
	Convey("Given a server without the collection", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"status":{"error":"Not found: Collection mem doesn't exist!"}}`)
				return
			}

			fmt.Fprint(w, `{"result":true}`)
		})
		defer ts.Close()

		created, err := New(ts.URL, "mem").EnsureCollection(context.Background(), 8)

		Convey("Then it should be created with the dimension", func() {
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(calls[1].method, ShouldEqual, http.MethodPut)
			vectors := calls[1].body["vectors"].(map[string]any)
			So(vectors["size"], ShouldEqual, 8.0)
			So(vectors["distance"], ShouldEqual, "Cosine")
		})
	})

	Convey("Given a server that reports the collection already exists", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"status":{"error":"Collection mem already exists!"}}`)
		})
		defer ts.Close()

		created, err := New(ts.URL, "mem").EnsureCollection(context.Background(), 8)

		Convey("Then that should count as success", func() {
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
		})
	})
}

func TestCountAndErrors(t *testing.T) {
	Convey("Given a count response", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":{"count":5}}`)
		})
		defer ts.Close()

		count, err := New(ts.URL, "mem").Count(context.Background(), nil)

		So(err, ShouldBeNil)
		So(count, ShouldEqual, int64(5))
		So(calls[0].body["exact"], ShouldEqual, true)
	})

	Convey("Given a failing server", t, func() {
		var calls []captured

		ts := recorder(&calls, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":{"error":"bad filter"}}`)
		})
		defer ts.Close()

		err := New(ts.URL, "mem").SetPayload(context.Background(), []string{"x"}, map[string]any{"a": 1})

		Convey("Then the reason should surface", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "bad filter")
		})
	})
}
