package taxonomy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/errors"
)

/*
RecordRewriter is the slice of the store client the manager needs to keep
the denormalized category label on records in step with the taxonomy.
*/
type RecordRewriter interface {
	CategoryUsage(ctx context.Context, name string) (int64, error)
	RewriteCategory(ctx context.Context, from, to string) (int, error)
}

// Snapshotter keeps a copy of the taxonomy file before destructive changes.
type Snapshotter interface {
	Archive(ctx context.Context, reason string, data []byte) (string, error)
}

/*
Manager runs the category lifecycle. The taxonomy file is the source of
truth and is always committed first; record rewrites follow and are best
effort, reported through a Warning rather than rolled back.
*/
type Manager struct {
	store    *Store
	records  RecordRewriter
	archiver Snapshotter
	now      func() time.Time
}

type ManagerOption func(*Manager)

func WithSnapshotter(archiver Snapshotter) ManagerOption {
	return func(m *Manager) {
		m.archiver = archiver
	}
}

func NewManager(store *Store, records RecordRewriter, options ...ManagerOption) *Manager {
	manager := &Manager{
		store:   store,
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(manager)
	}

	return manager
}

func (manager *Manager) Store() *Store {
	return manager.store
}

type CreateParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parent      string `json:"parent,omitempty"`
	Color       string `json:"color,omitempty"`
	IsParent    bool   `json:"is_parent,omitempty"`
}

func (manager *Manager) Create(ctx context.Context, params CreateParams) (Category, error) {
	if err := ValidateName(params.Name); err != nil {
		return Category{}, err
	}

	category := Category{
		Name:        params.Name,
		Description: strings.TrimSpace(params.Description),
		Parent:      params.Parent,
		Color:       params.Color,
		IsParent:    params.IsParent,
		CreatedAt:   manager.now(),
	}

	_, err := manager.store.Update(func(t *Taxonomy) (bool, error) {
		if t.Exists(category.Name) {
			return false, errors.Invalid("name", "category %q already exists", category.Name)
		}

		if category.Parent != "" && !t.Exists(category.Parent) {
			return false, errors.Invalid("parent", "parent category %q does not exist", category.Parent)
		}

		t.Categories = append(t.Categories, category)

		return true, nil
	})

	if err != nil {
		return Category{}, err
	}

	log.Info("category created", "name", category.Name, "parent", category.Parent)

	return category, nil
}

type RenameResult struct {
	Category Category        `json:"category"`
	Children []string        `json:"children,omitempty"`
	Records  int             `json:"records"`
	Warning  *errors.Warning `json:"warning,omitempty"`
}

/*
Rename moves a category to a new name, repoints its children and then
relabels its records. When the old name is already gone but the new one
exists, the call is treated as a retry of an earlier rename whose record
rewrite did not finish, and only the rewrite runs.
*/
func (manager *Manager) Rename(ctx context.Context, from, to string) (RenameResult, error) {
	if err := ValidateName(to); err != nil {
		return RenameResult{}, err
	}

	if from == to {
		return RenameResult{}, errors.Invalid("name", "category %q is already named %q", from, to)
	}

	manager.archive(ctx, "rename-"+from)

	var result RenameResult

	t, err := manager.store.Update(func(t *Taxonomy) (bool, error) {
		i, j := t.index(from), t.index(to)

		switch {
		case i < 0 && j >= 0:
			return false, nil
		case i < 0:
			return false, errors.NotFound("category", from)
		case j >= 0:
			return false, errors.Invalid("name", "category %q already exists", to)
		}

		t.Categories[i].Name = to

		for k := range t.Categories {
			if t.Categories[k].Parent == from {
				t.Categories[k].Parent = to
				result.Children = append(result.Children, t.Categories[k].Name)
			}
		}

		return true, nil
	})

	if err != nil {
		return RenameResult{}, err
	}

	result.Category, _ = t.Get(to)

	n, err := manager.records.RewriteCategory(ctx, from, to)
	result.Records = n

	if err != nil {
		result.Warning = manager.pending(ctx, from, fmt.Sprintf(
			"category renamed but only %d records were relabelled; run the same rename again to finish", n,
		), err)

		log.Warn("rename cascade incomplete", "from", from, "to", to, "rewritten", n, "pending", result.Warning.Pending, "error", err)

		return result, nil
	}

	log.Info("category renamed", "from", from, "to", to, "children", len(result.Children), "records", n)

	return result, nil
}

/*
Reparent sets the parent of name. An empty parent detaches it to the top
level. A parent whose ancestor chain contains name is refused.
*/
func (manager *Manager) Reparent(ctx context.Context, name, parent string) (Category, error) {
	t, err := manager.store.Update(func(t *Taxonomy) (bool, error) {
		i := t.index(name)

		if i < 0 {
			return false, errors.NotFound("category", name)
		}

		if parent != "" {
			if !t.Exists(parent) {
				return false, errors.Invalid("parent", "parent category %q does not exist", parent)
			}

			if err := cycleCheck(t, name, parent); err != nil {
				return false, err
			}
		}

		if t.Categories[i].Parent == parent {
			return false, nil
		}

		t.Categories[i].Parent = parent

		return true, nil
	})

	if err != nil {
		return Category{}, err
	}

	category, _ := t.Get(name)

	log.Info("category moved", "name", name, "parent", parent)

	return category, nil
}

func cycleCheck(t *Taxonomy, name, parent string) error {
	chain := append([]string{parent}, t.Ancestors(parent)...)

	for k, ancestor := range chain {
		if ancestor == name {
			path := append([]string{name}, chain[:k+1]...)

			for a, b := 0, len(path)-1; a < b; a, b = a+1, b-1 {
				path[a], path[b] = path[b], path[a]
			}

			return errors.Conflict(
				"moving %q under %q would create a cycle: %s",
				name, parent, strings.Join(path, " > "),
			)
		}
	}

	return nil
}

type DeleteParams struct {
	ReassignRecordsTo  string `json:"reassign_records_to,omitempty"`
	ReassignChildrenTo string `json:"reassign_children_to,omitempty"`
	DetachChildren     bool   `json:"detach_children,omitempty"`
}

type DeleteResult struct {
	Children []string `json:"children,omitempty"`
	Records  int      `json:"records"`
}

/*
Delete removes a category once nothing depends on it. Children need a new
parent (or an explicit detach) and records need a new category, otherwise
the call is refused with what blocked it. Children move first, then the
records; the category is only removed when both succeeded.
*/
func (manager *Manager) Delete(ctx context.Context, name string, params DeleteParams) (DeleteResult, error) {
	t := manager.store.Snapshot()

	if !t.Exists(name) {
		return DeleteResult{}, errors.NotFound("category", name)
	}

	children := t.Children(name)

	if len(children) > 0 {
		if err := checkChildrenTarget(t, name, children, params); err != nil {
			return DeleteResult{}, err
		}
	}

	usage, err := manager.records.CategoryUsage(ctx, name)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("failed to count records in %q: %w", name, err)
	}

	if usage > 0 {
		if err := checkRecordsTarget(t, name, usage, params.ReassignRecordsTo); err != nil {
			return DeleteResult{}, err
		}
	}

	manager.archive(ctx, "delete-"+name)

	var result DeleteResult

	if len(children) > 0 {
		if _, err := manager.store.Update(func(t *Taxonomy) (bool, error) {
			for k := range t.Categories {
				if t.Categories[k].Parent == name {
					t.Categories[k].Parent = params.ReassignChildrenTo
					result.Children = append(result.Children, t.Categories[k].Name)
				}
			}

			return len(result.Children) > 0, nil
		}); err != nil {
			return DeleteResult{}, err
		}
	}

	if usage > 0 {
		n, err := manager.records.RewriteCategory(ctx, name, params.ReassignRecordsTo)
		result.Records = n

		if err != nil {
			warning := manager.pending(ctx, name, fmt.Sprintf(
				"category %q kept: only %d records were moved to %q", name, n, params.ReassignRecordsTo,
			), err)

			return result, warning
		}
	}

	_, err = manager.store.Update(func(t *Taxonomy) (bool, error) {
		i := t.index(name)

		if i < 0 {
			return false, nil
		}

		if late := t.Children(name); len(late) > 0 {
			return false, errors.Conflict("category %q gained children while being deleted: %s", name, joinNames(late))
		}

		t.Categories = append(t.Categories[:i], t.Categories[i+1:]...)

		return true, nil
	})

	if err != nil {
		return result, err
	}

	log.Info("category deleted", "name", name, "children", len(result.Children), "records", result.Records)

	return result, nil
}

func checkChildrenTarget(t *Taxonomy, name string, children []Category, params DeleteParams) error {
	target := params.ReassignChildrenTo

	if target == "" && !params.DetachChildren {
		err := errors.Conflict(
			"category %q has children (%s); give a category to move them to or detach them",
			name, joinNames(children),
		)

		for _, child := range children {
			err.Children = append(err.Children, child.Name)
		}

		return err
	}

	if target == "" {
		return nil
	}

	if target == name {
		return errors.Invalid("reassign_children_to", "cannot move the children of %q to itself", name)
	}

	if !t.Exists(target) {
		return errors.Invalid("reassign_children_to", "category %q does not exist", target)
	}

	for _, descendant := range t.Descendants(name) {
		if descendant == target {
			return errors.Conflict("cannot move the children of %q under its own descendant %q", name, target)
		}
	}

	return nil
}

func checkRecordsTarget(t *Taxonomy, name string, usage int64, target string) error {
	if target == "" {
		err := errors.Conflict(
			"category %q still holds %d records; give a category to move them to", name, usage,
		)
		err.Records = usage

		return err
	}

	if target == name {
		return errors.Invalid("reassign_records_to", "cannot move the records of %q to itself", name)
	}

	if !t.Exists(target) {
		return errors.Invalid("reassign_records_to", "category %q does not exist", target)
	}

	return nil
}

type DescribeParams struct {
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsParent    *bool   `json:"is_parent,omitempty"`
}

// Describe updates the descriptive fields of a category.
func (manager *Manager) Describe(ctx context.Context, name string, params DescribeParams) (Category, error) {
	t, err := manager.store.Update(func(t *Taxonomy) (bool, error) {
		i := t.index(name)

		if i < 0 {
			return false, errors.NotFound("category", name)
		}

		if params.Description != nil {
			t.Categories[i].Description = strings.TrimSpace(*params.Description)
		}

		if params.Color != nil {
			t.Categories[i].Color = *params.Color
		}

		if params.IsParent != nil {
			t.Categories[i].IsParent = *params.IsParent
		}

		return true, nil
	})

	if err != nil {
		return Category{}, err
	}

	category, _ := t.Get(name)

	return category, nil
}

// List projects the cached taxonomy; it never touches the record store.
func (manager *Manager) List(format Format) (View, error) {
	return Project(manager.store.Snapshot(), format)
}

func (manager *Manager) pending(ctx context.Context, name, message string, cause error) *errors.Warning {
	warning := &errors.Warning{Message: message, Pending: -1, Err: cause}

	if left, err := manager.records.CategoryUsage(ctx, name); err == nil {
		warning.Pending = left
	}

	return warning
}

func (manager *Manager) archive(ctx context.Context, reason string) {
	if manager.archiver == nil {
		return
	}

	data, err := manager.store.Raw()
	if err != nil {
		log.Warn("could not read taxonomy for archiving", "error", err)
		return
	}

	if _, err := manager.archiver.Archive(ctx, reason, data); err != nil {
		log.Warn("taxonomy archive failed", "reason", reason, "error", err)
	}
}

func joinNames(categories []Category) string {
	names := make([]string, len(categories))

	for i, c := range categories {
		names[i] = c.Name
	}

	return strings.Join(names, ", ")
}
