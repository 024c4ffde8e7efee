// Package memory holds the memory record model and the store client that
// fronts the vector store backend.
package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source describes where a record came from.
type Source string

const (
	SourceUser      Source = "user"
	SourceAssistant Source = "assistant"
	SourceImport    Source = "import"
	SourceSession   Source = "session"
	SourceTool      Source = "tool"
)

var Sources = []Source{SourceUser, SourceAssistant, SourceImport, SourceSession, SourceTool}

func (source Source) Valid() bool {
	for _, s := range Sources {
		if s == source {
			return true
		}
	}

	return false
}

// Reserved project values that rank as visible from every project.
const (
	ProjectGlobal = "global"
	ProjectShared = "shared"
)

// Importance at or above which a record is exempt from time decay.
const ImportanceShield = 8

// Payload field names, shared by filters, indexes and partial updates.
const (
	FieldContent          = "content"
	FieldCategory         = "category"
	FieldSubcategory      = "subcategory"
	FieldProject          = "project"
	FieldTags             = "tags"
	FieldImportance       = "importance"
	FieldSource           = "source"
	FieldCreatedAt        = "created_at"
	FieldUpdatedAt        = "updated_at"
	FieldAccessedAt       = "accessed_at"
	FieldTrashedAt        = "trashed_at"
	FieldAccessCount      = "access_count"
	FieldRelatedFiles     = "related_files"
	FieldFileChecksums    = "file_checksums"
	FieldRelatedMemoryIDs = "related_memory_ids"
	FieldInternal         = "internal"
)

/*
Record is a single stored memory. It travels as the payload of a vector
store point keyed by ID; the ID itself is not part of the payload.
*/
type Record struct {
	ID               string            `json:"-"`
	Content          string            `json:"content"`
	Category         string            `json:"category"`
	Subcategory      string            `json:"subcategory,omitempty"`
	Project          string            `json:"project,omitempty"`
	Tags             []string          `json:"tags"`
	Importance       int               `json:"importance"`
	Source           Source            `json:"source"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	AccessedAt       *time.Time        `json:"accessed_at"`
	TrashedAt        *time.Time        `json:"trashed_at"`
	AccessCount      int               `json:"access_count"`
	RelatedFiles     []string          `json:"related_files,omitempty"`
	FileChecksums    map[string]string `json:"file_checksums,omitempty"`
	RelatedMemoryIDs []string          `json:"related_memory_ids,omitempty"`
}

func (record Record) Trashed() bool {
	return record.TrashedAt != nil
}

// Payload renders the record into the generic map a backend stores.
func (record Record) Payload() (map[string]any, error) {
	if record.Tags == nil {
		record.Tags = []string{}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	payload := map[string]any{}

	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", record.ID, err)
	}

	return payload, nil
}

/*
RecordFromPayload decodes a stored payload. Records written by older
versions may lack fields entirely; those decode to zero values.
*/
func RecordFromPayload(id string, payload map[string]any) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal payload %s: %w", id, err)
	}

	var record Record

	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("failed to decode payload %s: %w", id, err)
	}

	record.ID = id

	return record, nil
}

// Hit is a record returned from a similarity search.
type Hit struct {
	Record Record
	Score  float64
}
