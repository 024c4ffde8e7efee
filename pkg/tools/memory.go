package tools

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/ranker"
)

const storeDescription = "Store a memory for later recall. Pick the category from the routing guide below; " +
	"unknown categories are rejected."

var sourceNames = func() []string {
	names := make([]string, len(memory.Sources))

	for i, source := range memory.Sources {
		names[i] = string(source)
	}

	return names
}()

var stringItems = mcp.Items(map[string]any{"type": "string"})

func buildMemoryStoreTool(guide string) mcp.Tool {
	return mcp.NewTool(
		"memory_store",
		mcp.WithDescription(storeDescription+"\n\n"+guide),
		mcp.WithString("content", mcp.Description("The text to remember"), mcp.Required()),
		mcp.WithString("category", mcp.Description("Category name from the routing guide"), mcp.Required()),
		mcp.WithString("subcategory", mcp.Description("Free-form subcategory")),
		mcp.WithString("project", mcp.Description("Project the memory belongs to, defaults to global")),
		mcp.WithArray("tags", mcp.Description("Tags"), stringItems),
		mcp.WithNumber("importance", mcp.Description("1 to 10, defaults to 5. 8 and above never decay")),
		mcp.WithString("source", mcp.Description("Where the memory came from"), mcp.Enum(sourceNames...)),
		mcp.WithArray("related_files", mcp.Description("Files the memory describes, checked for staleness"), stringItems),
		mcp.WithArray("related_memory_ids", mcp.Description("IDs of related memories"), stringItems),
	)
}

func (rt *Runtime) handleMemoryStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	in := memory.NewRecord{
		Content:     stringArg(args, "content"),
		Category:    stringArg(args, "category"),
		Subcategory: stringArg(args, "subcategory"),
		Project:     stringArg(args, "project"),
		Source:      memory.Source(stringArg(args, "source")),
	}

	in.Tags, _ = stringsArg(args, "tags")
	in.RelatedFiles, _ = stringsArg(args, "related_files")
	in.RelatedMemoryIDs, _ = stringsArg(args, "related_memory_ids")

	importance, err := intArg(args, "importance")

	if err != nil {
		return errorResult(ctx, "memory_store", err)
	}

	in.Importance = importance

	if in.Project == "" {
		in.Project = rt.project()
	}

	record, err := rt.records.Store(ctx, in)

	if err != nil {
		return errorResult(ctx, "memory_store", err)
	}

	return jsonResult(recordView(record))
}

func buildMemoryRecallTool() mcp.Tool {
	return mcp.NewTool(
		"memory_recall",
		mcp.WithDescription("Recall the memories most relevant to a query, ranked by similarity, age, importance and use."),
		mcp.WithString("query", mcp.Description("What to look for"), mcp.Required()),
		mcp.WithNumber("k", mcp.Description(fmt.Sprintf("Number of results, defaults to %d", ranker.DefaultK))),
		mcp.WithNumber("threshold", mcp.Description(fmt.Sprintf("Minimum similarity, defaults to %.1f", ranker.DefaultThreshold))),
		mcp.WithString("category", mcp.Description("Only this category")),
		mcp.WithString("project", mcp.Description("Only this project")),
		mcp.WithBoolean("include_shared", mcp.Description("With project, also return global and shared memories")),
		mcp.WithArray("tags", mcp.Description("Any of these tags"), stringItems),
		mcp.WithNumber("min_importance", mcp.Description("Minimum importance")),
		mcp.WithBoolean("explain", mcp.Description("Include the score breakdown")),
	)
}

func (rt *Runtime) handleMemoryRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	text, err := requireString(args, "query")

	if err != nil {
		return errorResult(ctx, "memory_recall", err)
	}

	vector, err := rt.embedder.Embed(ctx, text)

	if err != nil {
		return errorResult(ctx, "memory_recall", err)
	}

	query := ranker.Query{
		Vector: vector,
		Filter: ranker.Filter{
			Category:      stringArg(args, "category"),
			Project:       stringArg(args, "project"),
			IncludeShared: boolArg(args, "include_shared"),
		},
		CurrentProject: rt.project(),
	}

	query.Filter.Tags, _ = stringsArg(args, "tags")

	k, err := intArg(args, "k")

	if err != nil {
		return errorResult(ctx, "memory_recall", err)
	}

	if k != nil {
		query.K = *k
	}

	if threshold, ok := floatArg(args, "threshold"); ok {
		query.Threshold = threshold
	}

	minImportance, err := intArg(args, "min_importance")

	if err != nil {
		return errorResult(ctx, "memory_recall", err)
	}

	if minImportance != nil {
		query.Filter.MinImportance = *minImportance
	}

	results, err := rt.ranker.Recall(ctx, query)

	if err != nil {
		return errorResult(ctx, "memory_recall", err)
	}

	explain := boolArg(args, "explain")
	out := make([]map[string]any, 0, len(results))

	for _, result := range results {
		view := recordView(result.Record)
		view["score"] = result.Explain.Final

		if explain {
			view["explain"] = result.Explain
		}

		out = append(out, view)
	}

	return jsonResult(out)
}

func buildMemoryUpdateTool() mcp.Tool {
	return mcp.NewTool(
		"memory_update",
		mcp.WithDescription("Update a memory. Changing content re-embeds it; metadata changes do not."),
		mcp.WithString("id", mcp.Description("Memory ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("category", mcp.Description("New category")),
		mcp.WithString("subcategory", mcp.Description("New subcategory")),
		mcp.WithString("project", mcp.Description("New project")),
		mcp.WithArray("tags", mcp.Description("Replacement tags"), stringItems),
		mcp.WithNumber("importance", mcp.Description("New importance, 1 to 10")),
		mcp.WithArray("related_files", mcp.Description("Replacement related files, rehashed"), stringItems),
		mcp.WithArray("related_memory_ids", mcp.Description("Replacement related memory IDs"), stringItems),
	)
}

func (rt *Runtime) handleMemoryUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := requireString(args, "id")

	if err != nil {
		return errorResult(ctx, "memory_update", err)
	}

	patch := memory.Patch{
		Category:    optionalString(args, "category"),
		Subcategory: optionalString(args, "subcategory"),
		Project:     optionalString(args, "project"),
	}

	if tags, ok := stringsArg(args, "tags"); ok {
		patch.Tags = &tags
	}

	if files, ok := stringsArg(args, "related_files"); ok {
		patch.RelatedFiles = &files
	}

	if ids, ok := stringsArg(args, "related_memory_ids"); ok {
		patch.RelatedMemoryIDs = &ids
	}

	if patch.Importance, err = intArg(args, "importance"); err != nil {
		return errorResult(ctx, "memory_update", err)
	}

	content := optionalString(args, "content")

	if content == nil && patch == (memory.Patch{}) {
		return errorResult(ctx, "memory_update", errors.Invalid("id", "nothing to update for %s", id))
	}

	record, err := rt.records.Update(ctx, id, content, patch)

	if err != nil {
		return errorResult(ctx, "memory_update", err)
	}

	return jsonResult(recordView(record))
}

func buildMemoryTrashTool() mcp.Tool {
	return mcp.NewTool(
		"memory_trash",
		mcp.WithDescription("Move a memory to the trash, or purge it for good when it is already trashed."),
		mcp.WithString("id", mcp.Description("Memory ID"), mcp.Required()),
		mcp.WithBoolean("purge", mcp.Description("Permanently delete an already trashed memory")),
	)
}

func (rt *Runtime) handleMemoryTrash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := requireString(args, "id")

	if err != nil {
		return errorResult(ctx, "memory_trash", err)
	}

	if boolArg(args, "purge") {
		if err := rt.records.Purge(ctx, id); err != nil {
			return errorResult(ctx, "memory_trash", err)
		}

		log.Info("memory purged", "id", id)

		return mcp.NewToolResultText(fmt.Sprintf("purged %s", id)), nil
	}

	if err := rt.records.Trash(ctx, id); err != nil {
		return errorResult(ctx, "memory_trash", err)
	}

	return mcp.NewToolResultText(fmt.Sprintf("trashed %s", id)), nil
}

func buildMemoryRestoreTool() mcp.Tool {
	return mcp.NewTool(
		"memory_restore",
		mcp.WithDescription("Restore a trashed memory, or list the trash when no id is given."),
		mcp.WithString("id", mcp.Description("Memory ID")),
		mcp.WithNumber("limit", mcp.Description("How many trashed memories to list")),
	)
}

func (rt *Runtime) handleMemoryRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := stringArg(args, "id")

	if id == "" {
		n, err := intArg(args, "limit")

		if err != nil {
			return errorResult(ctx, "memory_restore", err)
		}

		limit := 0

		if n != nil {
			limit = *n
		}

		records, err := rt.records.ListTrashed(ctx, limit)

		if err != nil {
			return errorResult(ctx, "memory_restore", err)
		}

		out := make([]map[string]any, 0, len(records))

		for _, record := range records {
			out = append(out, recordView(record))
		}

		return jsonResult(out)
	}

	if err := rt.records.Restore(ctx, id); err != nil {
		return errorResult(ctx, "memory_restore", err)
	}

	return mcp.NewToolResultText(fmt.Sprintf("restored %s", id)), nil
}

func buildMemoryStaleTool() mcp.Tool {
	return mcp.NewTool(
		"memory_stale",
		mcp.WithDescription("List memories whose related files changed since the memory was written."),
	)
}

func (rt *Runtime) handleMemoryStale(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := rt.detector.Detect(ctx)

	if err != nil && report.Checked == 0 {
		return errorResult(ctx, "memory_stale", err)
	}

	return jsonResult(report)
}

// recordView is the wire shape of a record, which includes its ID.
func recordView(record memory.Record) map[string]any {
	view, err := record.Payload()

	if err != nil {
		view = map[string]any{"content": record.Content}
	}

	view["id"] = record.ID

	return view
}
