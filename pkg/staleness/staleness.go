/*
Package staleness reports records whose related files have changed since
their checksums were captured. It only reports; refreshing a record is
left to the caller.
*/
package staleness

import (
	"context"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/memory"
)

const (
	PreviewRunes = 120
	pageSize     = 100
)

// Scroller is the part of the store client the detector reads through.
type Scroller interface {
	Scroll(ctx context.Context, filter *memory.Filter, pageSize int, cursor string, options ...memory.QueryOption) ([]memory.Record, string, error)
}

type Entry struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Importance int      `json:"importance"`
	Preview    string   `json:"preview"`
	Changed    []string `json:"changed"`
	Missing    []string `json:"missing,omitempty"`
}

type Report struct {
	Checked int     `json:"checked"`
	Stale   []Entry `json:"stale"`
	// Missing lists records whose files are gone but nothing else changed.
	Missing []Entry `json:"missing,omitempty"`
}

type Detector struct {
	store Scroller
	hash  func(path string) (string, error)
}

func NewDetector(store Scroller) *Detector {
	return &Detector{store: store, hash: memory.FileChecksum}
}

/*
Detect walks every live record that references files. A path is changed
when its current hash differs from the stored one, or when it exists but
no hash was ever stored. A path that no longer exists is reported as
missing and does not make the record stale on its own.
*/
func (detector *Detector) Detect(ctx context.Context) (Report, error) {
	var (
		report Report
		cursor string
		failed []any
	)

	filter := memory.Filter{}.Not(memory.IsEmpty(memory.FieldRelatedFiles))

	for {
		records, next, err := detector.store.Scroll(ctx, &filter, pageSize, cursor)
		if err != nil {
			return Report{}, err
		}

		for _, record := range records {
			report.Checked++

			entry, err := detector.check(record)
			if err != nil {
				failed = append(failed, err)
			}

			switch {
			case len(entry.Changed) > 0:
				report.Stale = append(report.Stale, entry)
			case len(entry.Missing) > 0:
				report.Missing = append(report.Missing, entry)
			}
		}

		if next == "" {
			break
		}

		cursor = next
	}

	sortEntries(report.Stale)
	sortEntries(report.Missing)

	if err := errors.NewError(failed...); err != nil {
		log.Warn("some related files could not be read", "error", err)
	}

	return report, nil
}

func (detector *Detector) check(record memory.Record) (Entry, error) {
	entry := Entry{
		ID:         record.ID,
		Category:   record.Category,
		Importance: record.Importance,
		Preview:    Preview(record.Content),
	}

	var failed []any

	for _, path := range record.RelatedFiles {
		current, err := detector.hash(path)

		if os.IsNotExist(err) {
			entry.Missing = append(entry.Missing, path)
			continue
		}

		if err != nil {
			failed = append(failed, err)
			continue
		}

		if stored, ok := record.FileChecksums[path]; !ok || stored != current {
			entry.Changed = append(entry.Changed, path)
		}
	}

	return entry, errors.NewError(failed...)
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}

		return entries[i].ID < entries[j].ID
	})
}

// Preview cuts content to PreviewRunes runes, marking the cut.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewRunes {
		return content
	}

	return string([]rune(content)[:PreviewRunes]) + "…"
}
