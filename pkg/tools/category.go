package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/theapemachine/memoria/pkg/taxonomy"
)

func buildCategoryListTool() mcp.Tool {
	return mcp.NewTool(
		"category_list",
		mcp.WithDescription("List the memory categories."),
		mcp.WithString("format",
			mcp.Description("flat lists every category, tree nests them, parents lists grouping categories"),
			mcp.Enum(string(taxonomy.FormatFlat), string(taxonomy.FormatTree), string(taxonomy.FormatParents)),
		),
	)
}

func (rt *Runtime) handleCategoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := taxonomy.ParseFormat(stringArg(req.GetArguments(), "format"))

	if err != nil {
		return errorResult(ctx, "category_list", err)
	}

	view, err := rt.manager.List(format)

	if err != nil {
		return errorResult(ctx, "category_list", err)
	}

	return jsonResult(view)
}

func buildCategoryCreateTool() mcp.Tool {
	return mcp.NewTool(
		"category_create",
		mcp.WithDescription("Create a memory category. Names are lowercase, start with a letter and may contain digits and hyphens."),
		mcp.WithString("name", mcp.Description("Category name, 2 to 30 characters"), mcp.Required()),
		mcp.WithString("description", mcp.Description("What belongs in this category"), mcp.Required()),
		mcp.WithString("parent", mcp.Description("Existing parent category")),
		mcp.WithString("color", mcp.Description("Display color")),
		mcp.WithBoolean("is_parent", mcp.Description("Marks a grouping category")),
	)
}

func (rt *Runtime) handleCategoryCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	category, err := rt.manager.Create(ctx, taxonomy.CreateParams{
		Name:        stringArg(args, "name"),
		Description: stringArg(args, "description"),
		Parent:      stringArg(args, "parent"),
		Color:       stringArg(args, "color"),
		IsParent:    boolArg(args, "is_parent"),
	})

	if err != nil {
		return errorResult(ctx, "category_create", err)
	}

	return jsonResult(category)
}

func buildCategoryRenameTool() mcp.Tool {
	return mcp.NewTool(
		"category_rename",
		mcp.WithDescription("Rename a category and relabel its children and memories. Repeating a rename finishes an interrupted relabel."),
		mcp.WithString("name", mcp.Description("Current name"), mcp.Required()),
		mcp.WithString("new_name", mcp.Description("New name"), mcp.Required()),
	)
}

func (rt *Runtime) handleCategoryRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	name, err := requireString(args, "name")

	if err != nil {
		return errorResult(ctx, "category_rename", err)
	}

	to, err := requireString(args, "new_name")

	if err != nil {
		return errorResult(ctx, "category_rename", err)
	}

	result, err := rt.manager.Rename(ctx, name, to)

	if err != nil {
		return errorResult(ctx, "category_rename", err)
	}

	return jsonResult(result)
}

func buildCategoryMoveTool() mcp.Tool {
	return mcp.NewTool(
		"category_move",
		mcp.WithDescription("Move a category under another parent, or to the top level when parent is empty."),
		mcp.WithString("name", mcp.Description("Category to move"), mcp.Required()),
		mcp.WithString("parent", mcp.Description("New parent, empty to detach")),
	)
}

func (rt *Runtime) handleCategoryMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	name, err := requireString(args, "name")

	if err != nil {
		return errorResult(ctx, "category_move", err)
	}

	category, err := rt.manager.Reparent(ctx, name, stringArg(args, "parent"))

	if err != nil {
		return errorResult(ctx, "category_move", err)
	}

	return jsonResult(category)
}

func buildCategoryDeleteTool() mcp.Tool {
	return mcp.NewTool(
		"category_delete",
		mcp.WithDescription("Delete a category. Refused while it has children or memories unless you say where they go."),
		mcp.WithString("name", mcp.Description("Category to delete"), mcp.Required()),
		mcp.WithString("reassign_records_to", mcp.Description("Category that receives the memories")),
		mcp.WithString("reassign_children_to", mcp.Description("New parent for the children")),
		mcp.WithBoolean("detach_children", mcp.Description("Move the children to the top level")),
	)
}

func (rt *Runtime) handleCategoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	name, err := requireString(args, "name")

	if err != nil {
		return errorResult(ctx, "category_delete", err)
	}

	result, err := rt.manager.Delete(ctx, name, taxonomy.DeleteParams{
		ReassignRecordsTo:  stringArg(args, "reassign_records_to"),
		ReassignChildrenTo: stringArg(args, "reassign_children_to"),
		DetachChildren:     boolArg(args, "detach_children"),
	})

	if err != nil {
		return errorResult(ctx, "category_delete", err)
	}

	return jsonResult(result)
}
