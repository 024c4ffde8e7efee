package service

import (
	"context"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"

	"github.com/theapemachine/memoria/pkg/auth"
	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/metrics"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

// SnapshotLister lists archived taxonomy snapshots.
type SnapshotLister interface {
	Snapshots(ctx context.Context) ([]string, error)
}

/*
AdminServer is the HTTP backend of the web admin. It exposes the category
lifecycle, the trash and the staleness report, and reads the same taxonomy
file and store as the MCP server.
*/
type AdminServer struct {
	app       *fiber.App
	records   *memory.Service
	manager   *taxonomy.Manager
	detector  *staleness.Detector
	stats     *metrics.Counters
	guide     func() string
	snapshots SnapshotLister
	auth      *auth.Service
}

type AdminDeps struct {
	Records   *memory.Service
	Manager   *taxonomy.Manager
	Detector  *staleness.Detector
	Stats     *metrics.Counters
	Guide     func() string
	Snapshots SnapshotLister
	Auth      *auth.Service
}

func NewAdminServer(deps AdminDeps) *AdminServer {
	srv := &AdminServer{
		app: fiber.New(fiber.Config{
			AppName:      "memoria admin",
			ServerHeader: "memoria",
		}),
		records:   deps.Records,
		manager:   deps.Manager,
		detector:  deps.Detector,
		stats:     deps.Stats,
		guide:     deps.Guide,
		snapshots: deps.Snapshots,
		auth:      deps.Auth,
	}

	if srv.stats == nil {
		srv.stats = metrics.NewCounters()
	}

	if srv.guide == nil {
		srv.guide = func() string {
			return taxonomy.RenderRoutingGuide(srv.manager.Store().Snapshot())
		}
	}

	if srv.auth == nil {
		srv.auth = auth.NewService("", 0)
	}

	srv.routes()

	return srv
}

func (srv *AdminServer) App() *fiber.App {
	return srv.app
}

func (srv *AdminServer) Run(addr string) error {
	log.Info("admin api listening", "addr", addr, "auth", srv.auth.Enabled())
	return srv.app.Listen(addr)
}

func (srv *AdminServer) Shutdown() error {
	return srv.app.Shutdown()
}

func (srv *AdminServer) routes() {
	api := srv.app.Group("/api", srv.authenticate)

	api.Get("/categories", srv.listCategories)
	api.Post("/categories", srv.createCategory)
	api.Patch("/categories/:name", srv.patchCategory)
	api.Delete("/categories/:name", srv.deleteCategory)

	api.Get("/stale", srv.stale)
	api.Get("/trash", srv.trash)
	api.Post("/memories/:id/restore", srv.restore)
	api.Delete("/memories/:id", srv.trashMemory)

	api.Get("/stats", srv.statistics)
	api.Get("/routing-guide", func(ctx fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).SendString(srv.guide())
	})
	api.Get("/snapshots", srv.listSnapshots)
}

func (srv *AdminServer) authenticate(ctx fiber.Ctx) error {
	err := srv.auth.Authenticate(ctx.Get(fiber.HeaderAuthorization))

	switch {
	case err == nil:
		return ctx.Next()
	case errors.Is(err, auth.ErrRateLimited):
		return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
	}

	log.Warn("admin request rejected", "path", ctx.Path(), "error", err)

	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

/*
fail maps a domain error onto a status code. Conflicts and partial
failures carry their detail so the admin can offer the resolution.
*/
func fail(ctx fiber.Ctx, err error) error {
	var (
		validation *errors.ValidationError
		conflict   *errors.ConflictError
		notFound   *errors.NotFoundError
		warning    *errors.Warning
	)

	switch {
	case errors.As(err, &validation):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "detail": conflict})
	case errors.As(err, &notFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &warning):
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "warning": warning})
	}

	log.Error("admin request failed", "path", ctx.Path(), "error", err)

	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func (srv *AdminServer) listCategories(ctx fiber.Ctx) error {
	format, err := taxonomy.ParseFormat(ctx.Query("format"))

	if err != nil {
		return fail(ctx, err)
	}

	view, err := srv.manager.List(format)

	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(view)
}

func (srv *AdminServer) createCategory(ctx fiber.Ctx) error {
	var params taxonomy.CreateParams

	if err := ctx.Bind().Body(&params); err != nil {
		return fail(ctx, errors.Invalid("body", "%v", err))
	}

	category, err := srv.manager.Create(ctx, params)

	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(category)
}

type categoryPatch struct {
	Name        string  `json:"name,omitempty"`
	Parent      *string `json:"parent,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsParent    *bool   `json:"is_parent,omitempty"`
}

/*
patchCategory applies a rename, then a move, then descriptive changes,
stopping at the first failure. A rename whose record relabel failed still
returns 200 with the warning, since the taxonomy change was committed.
*/
func (srv *AdminServer) patchCategory(ctx fiber.Ctx) error {
	var patch categoryPatch

	if err := ctx.Bind().Body(&patch); err != nil {
		return fail(ctx, errors.Invalid("body", "%v", err))
	}

	var (
		name     = ctx.Params("name")
		response = fiber.Map{}
	)

	if patch.Name != "" && patch.Name != name {
		renamed, err := srv.manager.Rename(ctx, name, patch.Name)

		if err != nil {
			return fail(ctx, err)
		}

		name = patch.Name
		response["rename"] = renamed
	}

	if patch.Parent != nil {
		if _, err := srv.manager.Reparent(ctx, name, *patch.Parent); err != nil {
			return fail(ctx, err)
		}
	}

	if patch.Description != nil || patch.Color != nil || patch.IsParent != nil {
		if _, err := srv.manager.Describe(ctx, name, taxonomy.DescribeParams{
			Description: patch.Description,
			Color:       patch.Color,
			IsParent:    patch.IsParent,
		}); err != nil {
			return fail(ctx, err)
		}
	}

	category, ok := srv.manager.Store().Snapshot().Get(name)

	if !ok {
		return fail(ctx, errors.NotFound("category", name))
	}

	response["category"] = category

	return ctx.Status(fiber.StatusOK).JSON(response)
}

func (srv *AdminServer) deleteCategory(ctx fiber.Ctx) error {
	result, err := srv.manager.Delete(ctx, ctx.Params("name"), taxonomy.DeleteParams{
		ReassignRecordsTo:  ctx.Query("records_to"),
		ReassignChildrenTo: ctx.Query("children_to"),
		DetachChildren:     ctx.Query("detach") == "true",
	})

	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(result)
}

func (srv *AdminServer) stale(ctx fiber.Ctx) error {
	report, err := srv.detector.Detect(ctx)

	if err != nil && report.Checked == 0 {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(report)
}

func (srv *AdminServer) trash(ctx fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	records, err := srv.records.ListTrashed(ctx, limit)

	if err != nil {
		return fail(ctx, err)
	}

	out := make([]fiber.Map, 0, len(records))

	for _, record := range records {
		out = append(out, fiber.Map{
			"id":         record.ID,
			"content":    record.Content,
			"category":   record.Category,
			"project":    record.Project,
			"importance": record.Importance,
			"trashed_at": record.TrashedAt,
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(out)
}

func (srv *AdminServer) restore(ctx fiber.Ctx) error {
	if err := srv.records.Restore(ctx, ctx.Params("id")); err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"restored": ctx.Params("id")})
}

func (srv *AdminServer) trashMemory(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if ctx.Query("purge") == "true" {
		if err := srv.records.Purge(ctx, id); err != nil {
			return fail(ctx, err)
		}

		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"purged": id})
	}

	if err := srv.records.Trash(ctx, id); err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"trashed": id})
}

func (srv *AdminServer) statistics(ctx fiber.Ctx) error {
	stats := srv.stats.Snapshot()
	stats["categories"] = len(srv.manager.Store().Snapshot().Categories)

	client := srv.records.Client()

	if live, err := client.Count(ctx, nil); err == nil {
		stats["memories"] = live
	}

	if trashed, err := client.Count(ctx, nil, memory.OnlyTrashed()); err == nil {
		stats["trashed"] = trashed
	}

	return ctx.Status(fiber.StatusOK).JSON(stats)
}

func (srv *AdminServer) listSnapshots(ctx fiber.Ctx) error {
	if srv.snapshots == nil {
		return ctx.Status(fiber.StatusOK).JSON([]string{})
	}

	keys, err := srv.snapshots.Snapshots(ctx)

	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(keys)
}
