package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/embedding"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/stores/sqlite"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

type handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newRuntime(t *testing.T) (*Runtime, *taxonomy.Manager) {
	dir := t.TempDir()
	conn := config.Connection{Name: "default", URL: "sqlite://" + dir, Collection: "memories"}

	dial := func(ctx context.Context, conn config.Connection) (memory.Backend, error) {
		return sqlite.Open(filepath.Join(dir, "memoria.db"), conn.Collection)
	}

	embedder := embedding.NewMock(64)
	client := memory.NewClient(dial, func() config.Connection { return conn }, memory.WithDimension(embedder.Dimension))
	store := taxonomy.NewStore(filepath.Join(dir, "taxonomy.json"))
	manager := taxonomy.NewManager(store, client)
	rk := ranker.New(client)

	t.Cleanup(func() { client.Close() })
	t.Cleanup(rk.Wait)

	for _, name := range []string{"work", "home"} {
		if _, err := manager.Create(context.Background(), taxonomy.CreateParams{Name: name, Description: name + " notes"}); err != nil {
			t.Fatal(err)
		}
	}

	rt := NewRuntime(Deps{
		Records:  memory.NewService(client, embedder, store),
		Ranker:   rk,
		Embedder: embedder,
		Manager:  manager,
		Detector: staleness.NewDetector(client),
		Project:  func() string { return "memoria" },
	})

	return rt, manager
}

func call(fn handler, args map[string]any) *mcp.CallToolResult {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	result, err := fn(context.Background(), req)
	So(err, ShouldBeNil)
	So(result, ShouldNotBeNil)

	return result
}

func text(result *mcp.CallToolResult) string {
	return result.Content[0].(mcp.TextContent).Text
}

func decodeObject(result *mcp.CallToolResult) map[string]any {
	out := map[string]any{}
	So(json.Unmarshal([]byte(text(result)), &out), ShouldBeNil)
	return out
}

func decodeList(result *mcp.CallToolResult) []map[string]any {
	var out []map[string]any
	So(json.Unmarshal([]byte(text(result)), &out), ShouldBeNil)
	return out
}

func TestMemoryTools(t *testing.T) {
	Convey("Given a runtime over a local store", t, func() {
		rt, _ := newRuntime(t)

		Convey("A stored memory can be recalled with its score breakdown", func() {
			stored := decodeObject(call(rt.handleMemoryStore, map[string]any{
				"content":    "deploys go out through the blue green pipeline",
				"category":   "work",
				"tags":       []any{"deploy", "deploy", "ci"},
				"importance": 7.0,
			}))

			So(stored["id"], ShouldNotBeEmpty)
			So(stored["project"], ShouldEqual, "memoria")
			So(stored["tags"], ShouldResemble, []any{"deploy", "ci"})

			recalled := decodeList(call(rt.handleMemoryRecall, map[string]any{
				"query":   "deploys go out through the blue green pipeline",
				"explain": true,
			}))

			So(recalled, ShouldHaveLength, 1)
			So(recalled[0]["id"], ShouldEqual, stored["id"])
			So(recalled[0]["explain"], ShouldNotBeNil)
			So(recalled[0]["score"].(float64), ShouldBeGreaterThan, 0.7)
		})

		Convey("An unknown category is rejected as a tool error", func() {
			result := call(rt.handleMemoryStore, map[string]any{
				"content":  "something",
				"category": "nowhere",
			})

			So(result.IsError, ShouldBeTrue)
			So(text(result), ShouldContainSubstring, "nowhere")
		})

		Convey("Recall without a query is rejected", func() {
			So(call(rt.handleMemoryRecall, map[string]any{}).IsError, ShouldBeTrue)
		})

		Convey("Update, trash and restore round trip", func() {
			stored := decodeObject(call(rt.handleMemoryStore, map[string]any{
				"content":  "the cat is fed at six",
				"category": "home",
			}))
			id := stored["id"].(string)

			updated := decodeObject(call(rt.handleMemoryUpdate, map[string]any{
				"id":         id,
				"content":    "the cat is fed at seven",
				"importance": 9.0,
			}))

			So(updated["content"], ShouldEqual, "the cat is fed at seven")
			So(updated["importance"], ShouldEqual, 9.0)

			So(call(rt.handleMemoryUpdate, map[string]any{"id": id}).IsError, ShouldBeTrue)

			So(call(rt.handleMemoryTrash, map[string]any{"id": id}).IsError, ShouldBeFalse)

			trashed := decodeList(call(rt.handleMemoryRestore, map[string]any{}))
			So(trashed, ShouldHaveLength, 1)
			So(trashed[0]["id"], ShouldEqual, id)

			So(call(rt.handleMemoryRestore, map[string]any{"id": id}).IsError, ShouldBeFalse)
			So(decodeList(call(rt.handleMemoryRestore, map[string]any{})), ShouldBeEmpty)
		})

		Convey("Purging a live memory is refused", func() {
			stored := decodeObject(call(rt.handleMemoryStore, map[string]any{
				"content":  "keep me",
				"category": "home",
			}))

			result := call(rt.handleMemoryTrash, map[string]any{"id": stored["id"], "purge": true})
			So(result.IsError, ShouldBeTrue)
		})

		Convey("Malformed importance is rejected instead of defaulted or truncated", func() {
			for _, importance := range []any{0.0, 11.0, 7.5, "high"} {
				result := call(rt.handleMemoryStore, map[string]any{
					"content":    "importance check",
					"category":   "work",
					"importance": importance,
				})

				So(result.IsError, ShouldBeTrue)
				So(text(result), ShouldContainSubstring, "importance")
			}

			count, err := rt.records.Client().Count(context.Background(), nil)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 0)
		})

		Convey("An update with new content and a bad category writes nothing", func() {
			stored := decodeObject(call(rt.handleMemoryStore, map[string]any{
				"content":  "original",
				"category": "work",
			}))
			id := stored["id"].(string)

			result := call(rt.handleMemoryUpdate, map[string]any{
				"id":       id,
				"content":  "rewritten",
				"category": "nope",
			})

			So(result.IsError, ShouldBeTrue)
			So(text(result), ShouldContainSubstring, "nope")

			record, err := rt.records.Get(context.Background(), id)
			So(err, ShouldBeNil)
			So(record.Content, ShouldEqual, "original")
			So(record.Category, ShouldEqual, "work")

			result = call(rt.handleMemoryUpdate, map[string]any{
				"id":         id,
				"content":    "rewritten",
				"importance": 9.5,
			})

			So(result.IsError, ShouldBeTrue)

			record, err = rt.records.Get(context.Background(), id)
			So(err, ShouldBeNil)
			So(record.Content, ShouldEqual, "original")
		})

		Convey("Stale memories are reported", func() {
			file := filepath.Join(t.TempDir(), "notes.md")
			So(os.WriteFile(file, []byte("v1"), 0o644), ShouldBeNil)

			call(rt.handleMemoryStore, map[string]any{
				"content":       "notes describe the release",
				"category":      "work",
				"related_files": file,
			})

			So(os.WriteFile(file, []byte("v2"), 0o644), ShouldBeNil)

			report := decodeObject(call(rt.handleMemoryStale, map[string]any{}))
			So(report["stale"], ShouldHaveLength, 1)
		})
	})
}

func TestCategoryTools(t *testing.T) {
	Convey("Given a runtime with two categories", t, func() {
		rt, manager := newRuntime(t)

		Convey("Create validates names", func() {
			So(call(rt.handleCategoryCreate, map[string]any{"name": "Bad Name", "description": "x"}).IsError, ShouldBeTrue)

			created := decodeObject(call(rt.handleCategoryCreate, map[string]any{
				"name":        "recipes",
				"description": "Cooking",
				"parent":      "home",
			}))

			So(created["parent"], ShouldEqual, "home")
		})

		Convey("List supports the tree format", func() {
			call(rt.handleCategoryCreate, map[string]any{"name": "recipes", "description": "Cooking", "parent": "home"})

			view := decodeObject(call(rt.handleCategoryList, map[string]any{"format": "tree"}))
			So(view["tree"], ShouldHaveLength, 2)

			So(call(rt.handleCategoryList, map[string]any{"format": "graph"}).IsError, ShouldBeTrue)
		})

		Convey("Rename relabels stored memories", func() {
			call(rt.handleMemoryStore, map[string]any{"content": "standup at nine", "category": "work"})

			result := decodeObject(call(rt.handleCategoryRename, map[string]any{"name": "work", "new_name": "job"}))
			So(result["records"], ShouldEqual, 1.0)

			recalled := decodeList(call(rt.handleMemoryRecall, map[string]any{"query": "standup at nine"}))
			So(recalled, ShouldHaveLength, 1)
			So(recalled[0]["category"], ShouldEqual, "job")
		})

		Convey("Move refuses cycles", func() {
			call(rt.handleCategoryCreate, map[string]any{"name": "recipes", "description": "Cooking", "parent": "home"})

			result := call(rt.handleCategoryMove, map[string]any{"name": "home", "parent": "recipes"})
			So(result.IsError, ShouldBeTrue)
			So(text(result), ShouldContainSubstring, "conflict")
		})

		Convey("Delete is blocked by records until they are reassigned", func() {
			call(rt.handleMemoryStore, map[string]any{"content": "standup at nine", "category": "work"})

			blocked := call(rt.handleCategoryDelete, map[string]any{"name": "work"})
			So(blocked.IsError, ShouldBeTrue)
			So(text(blocked), ShouldContainSubstring, `"records":1`)
			So(manager.Store().Exists("work"), ShouldBeTrue)

			done := decodeObject(call(rt.handleCategoryDelete, map[string]any{
				"name":                "work",
				"reassign_records_to": "home",
			}))
			So(done["records"], ShouldEqual, 1.0)
			So(manager.Store().Exists("work"), ShouldBeFalse)
		})
	})
}

func TestRefresh(t *testing.T) {
	Convey("Given a registered runtime", t, func() {
		rt, _ := newRuntime(t)
		srv := server.NewMCPServer("memoria", "test", server.WithToolCapabilities(true))
		rt.Register(srv)

		So(rt.StoreTool().Description, ShouldContainSubstring, "work")
		So(rt.StoreTool().Description, ShouldNotContainSubstring, "recipes")

		Convey("Refresh picks up categories created since", func() {
			call(rt.handleCategoryCreate, map[string]any{"name": "recipes", "description": "Cooking"})
			rt.Refresh()

			So(rt.StoreTool().Description, ShouldContainSubstring, "recipes")
		})
	})
}
