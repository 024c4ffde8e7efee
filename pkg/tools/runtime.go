package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

/*
Runtime holds everything the MCP tools act on. The memory_store tool is
the only one whose definition changes at runtime: its description carries
the routing guide, so Refresh re-adds it whenever the taxonomy is reloaded
and connected clients get a tools/list_changed notification.
*/
type Runtime struct {
	records  *memory.Service
	ranker   *ranker.Ranker
	embedder memory.Embedder
	manager  *taxonomy.Manager
	detector *staleness.Detector
	guide    func() string
	project  func() string

	mu        sync.Mutex
	srv       *server.MCPServer
	storeTool mcp.Tool
}

type Deps struct {
	Records  *memory.Service
	Ranker   *ranker.Ranker
	Embedder memory.Embedder
	Manager  *taxonomy.Manager
	Detector *staleness.Detector
	// Guide returns the current routing guide text.
	Guide func() string
	// Project returns the project the assistant is working in, if known.
	Project func() string
}

func NewRuntime(deps Deps) *Runtime {
	rt := &Runtime{
		records:  deps.Records,
		ranker:   deps.Ranker,
		embedder: deps.Embedder,
		manager:  deps.Manager,
		detector: deps.Detector,
		guide:    deps.Guide,
		project:  deps.Project,
	}

	if rt.guide == nil {
		rt.guide = func() string {
			return taxonomy.RenderRoutingGuide(rt.manager.Store().Snapshot())
		}
	}

	if rt.project == nil {
		rt.project = func() string { return "" }
	}

	rt.storeTool = buildMemoryStoreTool(rt.guide())

	return rt
}

// Register adds every memory and category tool to srv.
func (rt *Runtime) Register(srv *server.MCPServer) {
	rt.mu.Lock()
	rt.srv = srv
	rt.storeTool = buildMemoryStoreTool(rt.guide())
	storeTool := rt.storeTool
	rt.mu.Unlock()

	srv.AddTool(storeTool, rt.handleMemoryStore)
	srv.AddTool(buildMemoryRecallTool(), rt.handleMemoryRecall)
	srv.AddTool(buildMemoryUpdateTool(), rt.handleMemoryUpdate)
	srv.AddTool(buildMemoryTrashTool(), rt.handleMemoryTrash)
	srv.AddTool(buildMemoryRestoreTool(), rt.handleMemoryRestore)
	srv.AddTool(buildMemoryStaleTool(), rt.handleMemoryStale)
	srv.AddTool(buildCategoryListTool(), rt.handleCategoryList)
	srv.AddTool(buildCategoryCreateTool(), rt.handleCategoryCreate)
	srv.AddTool(buildCategoryRenameTool(), rt.handleCategoryRename)
	srv.AddTool(buildCategoryMoveTool(), rt.handleCategoryMove)
	srv.AddTool(buildCategoryDeleteTool(), rt.handleCategoryDelete)

	log.Info("mcp tools registered", "count", 11)
}

/*
Refresh rebuilds the memory_store definition from the current routing
guide. It is subscribed to the hot-reload bus, so it must not block.
*/
func (rt *Runtime) Refresh() {
	tool := buildMemoryStoreTool(rt.guide())

	rt.mu.Lock()
	rt.storeTool = tool
	srv := rt.srv
	rt.mu.Unlock()

	if srv == nil {
		return
	}

	srv.AddTool(tool, rt.handleMemoryStore)
	log.Debug("memory_store definition refreshed")
}

// StoreTool returns the memory_store definition currently advertised.
func (rt *Runtime) StoreTool() mcp.Tool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return rt.storeTool
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")

	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(data)), nil
}

/*
errorResult turns a failure into a tool-level error so the assistant can
read the reason. Conflicts carry what blocked them as JSON, partial
failures keep their pending count.
*/
func errorResult(ctx context.Context, tool string, err error) (*mcp.CallToolResult, error) {
	var (
		conflict *errors.ConflictError
		warning  *errors.Warning
	)

	switch {
	case errors.As(err, &conflict):
		data, _ := json.Marshal(map[string]any{"error": "conflict", "detail": conflict})
		return mcp.NewToolResultError(string(data)), nil
	case errors.As(err, &warning):
		data, _ := json.Marshal(map[string]any{"error": "partial", "detail": warning})
		return mcp.NewToolResultError(string(data)), nil
	case errors.IsValidation(err), errors.IsNotFound(err):
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Error("tool failed", "tool", tool, "error", err)

	return mcp.NewToolResultError(err.Error()), nil
}
