package memory

import (
	"context"

	"github.com/theapemachine/memoria/pkg/config"
)

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

/*
Page is one chunk of a scroll. Next is the opaque cursor for the following
page, empty when there is none.
*/
type Page struct {
	Points []Point
	Next   string
}

type IndexSchema string

const (
	IndexKeyword  IndexSchema = "keyword"
	IndexInteger  IndexSchema = "integer"
	IndexText     IndexSchema = "text"
	IndexDatetime IndexSchema = "datetime"
)

/*
Backend is the primitive surface of an external vector store. A nil filter
means "everything". Implementations live under pkg/stores.
*/
type Backend interface {
	EnsureCollection(ctx context.Context, dimension int) (bool, error)
	EnsureIndex(ctx context.Context, field string, schema IndexSchema) error
	Upsert(ctx context.Context, points ...Point) error
	Search(ctx context.Context, vector []float32, limit int, filter *Filter, threshold float64) ([]ScoredPoint, error)
	Retrieve(ctx context.Context, ids ...string) ([]Point, error)
	SetPayload(ctx context.Context, ids []string, payload map[string]any) error
	SetPayloadByFilter(ctx context.Context, filter Filter, payload map[string]any) error
	Scroll(ctx context.Context, filter *Filter, limit int, cursor string) (Page, error)
	Count(ctx context.Context, filter *Filter) (int64, error)
	Delete(ctx context.Context, ids ...string) error
	Close() error
}

// Dialer opens a backend for a connection profile.
type Dialer func(ctx context.Context, conn config.Connection) (Backend, error)

// IndexRoster is created on every collection bootstrap.
var IndexRoster = []struct {
	Field  string
	Schema IndexSchema
}{
	{FieldCategory, IndexKeyword},
	{FieldSubcategory, IndexKeyword},
	{FieldProject, IndexKeyword},
	{FieldTags, IndexKeyword},
	{FieldSource, IndexKeyword},
	{FieldImportance, IndexInteger},
	{FieldAccessCount, IndexInteger},
	{FieldContent, IndexText},
	{FieldTrashedAt, IndexDatetime},
}
