package memory

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/theapemachine/memoria/pkg/errors"
)

// DefaultImportance is used when a caller stores a record without one.
const DefaultImportance = 5

// Embedder turns text into a vector. Implemented by pkg/embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CategoryChecker reports whether a category currently exists.
type CategoryChecker interface {
	Exists(name string) bool
}

type NewRecord struct {
	Content          string
	Category         string
	Subcategory      string
	Project          string
	Tags             []string
	Importance       *int
	Source           Source
	RelatedFiles     []string
	RelatedMemoryIDs []string
}

/*
Patch is a metadata-only update. Nil fields are left untouched. Setting
RelatedFiles, even to the same list, recaptures the file checksums.
*/
type Patch struct {
	Category         *string
	Subcategory      *string
	Project          *string
	Tags             *[]string
	Importance       *int
	RelatedFiles     *[]string
	RelatedMemoryIDs *[]string
}

/*
Service implements the record lifecycle on top of the store client:
create, the two update paths, trash, restore and purge.
*/
type Service struct {
	client     *Client
	embedder   Embedder
	categories CategoryChecker
	now        func() time.Time
}

func NewService(client *Client, embedder Embedder, categories CategoryChecker) *Service {
	return &Service{
		client:     client,
		embedder:   embedder,
		categories: categories,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (service *Service) Client() *Client {
	return service.client
}

func (service *Service) Store(ctx context.Context, in NewRecord) (Record, error) {
	in.Content = strings.TrimSpace(in.Content)

	importance := DefaultImportance

	if in.Importance != nil {
		importance = *in.Importance
	}

	if in.Source == "" {
		in.Source = SourceUser
	}

	if in.Project == "" {
		in.Project = ProjectGlobal
	}

	val := valgo.Is(valgo.String(in.Content, FieldContent).Not().Blank()).
		Is(valgo.Int(importance, FieldImportance).Between(1, 10))

	if err := errors.FromValgo(val); err != nil {
		return Record{}, err
	}

	if err := service.checkSource(in.Source); err != nil {
		return Record{}, err
	}

	if err := service.checkCategory(in.Category); err != nil {
		return Record{}, err
	}

	vector, err := service.embedder.Embed(ctx, in.Content)
	if err != nil {
		return Record{}, err
	}

	now := service.now()

	record := Record{
		ID:               uuid.NewString(),
		Content:          in.Content,
		Category:         in.Category,
		Subcategory:      in.Subcategory,
		Project:          in.Project,
		Tags:             dedupe(in.Tags),
		Importance:       importance,
		Source:           in.Source,
		CreatedAt:        now,
		UpdatedAt:        now,
		RelatedFiles:     in.RelatedFiles,
		FileChecksums:    Checksums(in.RelatedFiles),
		RelatedMemoryIDs: in.RelatedMemoryIDs,
	}

	if err := service.client.Upsert(ctx, record.ID, vector, record); err != nil {
		return Record{}, err
	}

	log.Info("memory stored", "id", record.ID, "category", record.Category, "project", record.Project)

	return record, nil
}

func (service *Service) Get(ctx context.Context, id string) (Record, error) {
	return service.client.Get(ctx, id)
}

// UpdateMetadata is the fast path: the vector is left alone.
func (service *Service) UpdateMetadata(ctx context.Context, id string, patch Patch) (Record, error) {
	if err := service.checkPatch(patch); err != nil {
		return Record{}, err
	}

	record, err := service.client.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}

	partial := applyPatch(&record, patch)

	if len(partial) == 0 {
		return record, nil
	}

	record.UpdatedAt = service.now()
	partial[FieldUpdatedAt] = record.UpdatedAt

	if err := service.client.SetPayload(ctx, id, partial); err != nil {
		return Record{}, err
	}

	return record, nil
}

/*
UpdateContent is the slow path: the new content is embedded again and the
checksums of related files are recaptured along with it.
*/
func (service *Service) UpdateContent(ctx context.Context, id, content string) (Record, error) {
	return service.Update(ctx, id, &content, Patch{})
}

/*
Update applies new content and a metadata patch together. Both are checked
before anything is written, and a content change goes out as one upsert
carrying the patched payload, so a rejected patch never leaves new content
behind.
*/
func (service *Service) Update(ctx context.Context, id string, content *string, patch Patch) (Record, error) {
	if content == nil {
		return service.UpdateMetadata(ctx, id, patch)
	}

	text := strings.TrimSpace(*content)

	if err := errors.FromValgo(valgo.Is(valgo.String(text, FieldContent).Not().Blank())); err != nil {
		return Record{}, err
	}

	if err := service.checkPatch(patch); err != nil {
		return Record{}, err
	}

	record, err := service.client.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}

	vector, err := service.embedder.Embed(ctx, text)
	if err != nil {
		return Record{}, err
	}

	applyPatch(&record, patch)

	record.Content = text
	record.FileChecksums = Checksums(record.RelatedFiles)
	record.UpdatedAt = service.now()

	if err := service.client.Upsert(ctx, id, vector, record); err != nil {
		return Record{}, err
	}

	return record, nil
}

func (service *Service) checkPatch(patch Patch) error {
	if patch.Category != nil {
		if err := service.checkCategory(*patch.Category); err != nil {
			return err
		}
	}

	if patch.Importance != nil {
		return errors.FromValgo(valgo.Is(valgo.Int(*patch.Importance, FieldImportance).Between(1, 10)))
	}

	return nil
}

// applyPatch sets the patched fields on record and returns them as a payload.
func applyPatch(record *Record, patch Patch) map[string]any {
	partial := map[string]any{}

	if patch.Category != nil {
		record.Category = *patch.Category
		partial[FieldCategory] = record.Category
	}

	if patch.Subcategory != nil {
		record.Subcategory = *patch.Subcategory
		partial[FieldSubcategory] = record.Subcategory
	}

	if patch.Project != nil {
		record.Project = *patch.Project
		partial[FieldProject] = record.Project
	}

	if patch.Tags != nil {
		record.Tags = dedupe(*patch.Tags)
		partial[FieldTags] = record.Tags
	}

	if patch.Importance != nil {
		record.Importance = *patch.Importance
		partial[FieldImportance] = record.Importance
	}

	if patch.RelatedFiles != nil {
		record.RelatedFiles = *patch.RelatedFiles
		record.FileChecksums = Checksums(record.RelatedFiles)
		partial[FieldRelatedFiles] = record.RelatedFiles
		partial[FieldFileChecksums] = record.FileChecksums
	}

	if patch.RelatedMemoryIDs != nil {
		record.RelatedMemoryIDs = *patch.RelatedMemoryIDs
		partial[FieldRelatedMemoryIDs] = record.RelatedMemoryIDs
	}

	return partial
}

func (service *Service) Trash(ctx context.Context, id string) error {
	record, err := service.client.Get(ctx, id)
	if err != nil {
		return err
	}

	if record.Trashed() {
		return nil
	}

	now := service.now()

	return service.client.SetPayload(ctx, id, map[string]any{
		FieldTrashedAt: now,
		FieldUpdatedAt: now,
	})
}

func (service *Service) Restore(ctx context.Context, id string) error {
	if _, err := service.client.Get(ctx, id); err != nil {
		return err
	}

	return service.client.SetPayload(ctx, id, map[string]any{
		FieldTrashedAt: nil,
		FieldUpdatedAt: service.now(),
	})
}

// Purge permanently removes a record. Only trashed records can be purged.
func (service *Service) Purge(ctx context.Context, id string) error {
	record, err := service.client.Get(ctx, id)
	if err != nil {
		return err
	}

	if !record.Trashed() {
		return errors.Invalid("id", "memory %s is not in the trash, trash it before purging", id)
	}

	return service.client.Delete(ctx, id)
}

func (service *Service) ListTrashed(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	records, _, err := service.client.Scroll(ctx, nil, limit, "", OnlyTrashed())
	return records, err
}

// ReassignProject moves every record of one project to another.
func (service *Service) ReassignProject(ctx context.Context, from, to string) (int, error) {
	if strings.TrimSpace(to) == "" {
		return 0, errors.Invalid("project", "target project must not be blank")
	}

	return service.client.BulkRewrite(ctx, Filter{Must: []Condition{Match(FieldProject, from)}}, map[string]any{
		FieldProject:   to,
		FieldUpdatedAt: service.now(),
	}, DefaultPageSize)
}

func (service *Service) checkCategory(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Invalid(FieldCategory, "a category is required")
	}

	if service.categories != nil && !service.categories.Exists(name) {
		return errors.Invalid(FieldCategory, "unknown category %q", name)
	}

	return nil
}

func (service *Service) checkSource(source Source) error {
	if source.Valid() {
		return nil
	}

	names := make([]string, len(Sources))

	for i, s := range Sources {
		names[i] = string(s)
	}

	return errors.Invalid(FieldSource, "%q is not one of %s", source, strings.Join(names, ", "))
}

func dedupe(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)

		if _, ok := seen[tag]; ok || tag == "" {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}
