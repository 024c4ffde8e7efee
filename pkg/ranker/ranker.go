/*
Package ranker turns raw similarity hits into the ordering an assistant
sees. The final score blends similarity with a 90 day half-life decay and
a small access boost, then favours the caller's current project.
*/
package ranker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/metrics"
)

const (
	DefaultK         = 5
	DefaultThreshold = 0.3
	HalfLifeDays     = 90.0
	ProjectBoost     = 1.2

	similarityWeight = 0.7
	decayWeight      = 0.2
	accessWeight     = 0.1
	maxAccessBoost   = 0.1
	accessStep       = 0.01
	touchTimeout     = 5 * time.Second
)

// Searcher is the part of the store client the ranker uses.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter *memory.Filter, threshold float64, options ...memory.QueryOption) ([]memory.Hit, error)
	SetPayload(ctx context.Context, id string, partial map[string]any) error
}

type Filter struct {
	Category      string   `json:"category,omitempty"`
	Project       string   `json:"project,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MinImportance int      `json:"min_importance,omitempty"`
	// IncludeShared widens a project filter to global and shared records.
	IncludeShared bool     `json:"include_shared,omitempty"`
}

type Query struct {
	Vector         []float32
	Filter         Filter
	K              int
	Threshold      float64
	CurrentProject string
}

// Explain breaks a final score down into the parts that produced it.
type Explain struct {
	Similarity  float64 `json:"similarity"`
	Decay       float64 `json:"decay"`
	AccessBoost float64 `json:"access_boost"`
	Multiplier  float64 `json:"multiplier"`
	Final       float64 `json:"final"`
}

type Result struct {
	Record  memory.Record `json:"record"`
	Explain Explain       `json:"explain"`
}

type Ranker struct {
	store Searcher
	stats *metrics.Counters
	now   func() time.Time
	wg    sync.WaitGroup
}

type Option func(*Ranker)

func WithCounters(stats *metrics.Counters) Option {
	return func(r *Ranker) {
		r.stats = stats
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Ranker) {
		r.now = now
	}
}

func New(store Searcher, options ...Option) *Ranker {
	ranker := &Ranker{
		store: store,
		now:   time.Now,
	}

	for _, option := range options {
		option(ranker)
	}

	return ranker
}

/*
Recall over-fetches 2k candidates, scores and sorts them, and returns the
best k. Access metadata for the returned records is updated in the
background and never affects the result.
*/
func (ranker *Ranker) Recall(ctx context.Context, query Query) ([]Result, error) {
	start := time.Now()

	if query.K <= 0 {
		query.K = DefaultK
	}

	if query.Threshold <= 0 {
		query.Threshold = DefaultThreshold
	}

	matches, err := ranker.store.Search(ctx, query.Vector, 2*query.K, query.Filter.build(), query.Threshold)
	if err != nil {
		return nil, err
	}

	now := ranker.now()
	results := make([]Result, 0, len(matches))

	for _, match := range matches {
		results = append(results, Result{
			Record:  match.Record,
			Explain: Score(match.Record, match.Score, now, boostFor(query)),
		})
	}

	Sort(results)

	if len(results) > query.K {
		results = results[:query.K]
	}

	ranker.touch(results, now)
	ranker.stats.RecordRecall(time.Since(start))

	log.Debug("recall", "candidates", len(matches), "returned", len(results), "project", query.CurrentProject)

	return results, nil
}

/*
build narrows the search. A project filter keeps exactly that project
unless IncludeShared also admits the global and shared records.
*/
func (filter Filter) build() *memory.Filter {
	f := memory.Filter{}

	if filter.Category != "" {
		f = f.And(memory.Match(memory.FieldCategory, filter.Category))
	}

	switch {
	case filter.Project != "" && filter.IncludeShared:
		f = f.And(memory.MatchAny(memory.FieldProject, filter.Project, memory.ProjectGlobal, memory.ProjectShared))
	case filter.Project != "":
		f = f.And(memory.Match(memory.FieldProject, filter.Project))
	}

	if len(filter.Tags) > 0 {
		f = f.And(memory.MatchAny(memory.FieldTags, filter.Tags...))
	}

	if filter.MinImportance > 0 {
		f = f.And(memory.AtLeast(memory.FieldImportance, float64(filter.MinImportance)))
	}

	return &f
}

// boostFor names the project that earns the boost, or "" when none does.
func boostFor(query Query) string {
	if query.Filter.Project != "" {
		return ""
	}

	return query.CurrentProject
}

// Decay is 0.5^(age/90 days), or exactly 1 for shielded importance.
func Decay(importance int, age time.Duration) float64 {
	if importance >= memory.ImportanceShield {
		return 1
	}

	days := age.Hours() / 24

	if days < 0 {
		days = 0
	}

	return math.Pow(0.5, days/HalfLifeDays)
}

func AccessBoost(count int) float64 {
	return math.Min(maxAccessBoost, float64(count)*accessStep)
}

func Score(record memory.Record, similarity float64, now time.Time, boostProject string) Explain {
	explain := Explain{
		Similarity:  similarity,
		Decay:       Decay(record.Importance, now.Sub(record.CreatedAt)),
		AccessBoost: AccessBoost(record.AccessCount),
		Multiplier:  1,
	}

	if boostProject != "" && record.Project == boostProject {
		explain.Multiplier = ProjectBoost
	}

	explain.Final = (similarityWeight*explain.Similarity +
		decayWeight*explain.Decay +
		accessWeight*explain.AccessBoost) * explain.Multiplier

	return explain
}

// Sort orders by final score, newest first on ties, then by id.
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]

		if a.Explain.Final != b.Explain.Final {
			return a.Explain.Final > b.Explain.Final
		}

		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}

		return a.Record.ID < b.Record.ID
	})
}

/*
touch records the retrieval on each returned record. It runs detached from
the caller's context, and its failures are logged and counted only.
*/
func (ranker *Ranker) touch(results []Result, now time.Time) {
	if len(results) == 0 {
		return
	}

	type access struct {
		id    string
		count int
	}

	pending := make([]access, len(results))

	for i, result := range results {
		pending[i] = access{id: result.Record.ID, count: result.Record.AccessCount}
	}

	ranker.wg.Add(1)

	go func() {
		defer ranker.wg.Done()

		defer func() {
			if r := recover(); r != nil {
				log.Error("access update panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		for _, a := range pending {
			err := ranker.store.SetPayload(ctx, a.id, map[string]any{
				memory.FieldAccessedAt:  now.UTC(),
				memory.FieldAccessCount: a.count + 1,
			})

			ranker.stats.RecordAccessUpdate(err == nil)

			if err != nil {
				log.Warn("access update failed", "id", a.id, "error", err)
			}
		}
	}()
}

// Wait blocks until background access updates have finished.
func (ranker *Ranker) Wait() {
	ranker.wg.Wait()
}
