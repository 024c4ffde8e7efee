package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/metrics"
)

// DefaultPageSize bounds each round-trip of a chunked bulk rewrite.
const DefaultPageSize = 100

type trashMode int

const (
	excludeTrashed trashMode = iota
	includeTrashed
	onlyTrashed
)

type queryOptions struct {
	trash trashMode
}

type QueryOption func(*queryOptions)

// WithTrashed includes soft-deleted records alongside live ones.
func WithTrashed() QueryOption {
	return func(o *queryOptions) {
		o.trash = includeTrashed
	}
}

// OnlyTrashed restricts a query to soft-deleted records.
func OnlyTrashed() QueryOption {
	return func(o *queryOptions) {
		o.trash = onlyTrashed
	}
}

/*
handle is one dialed backend. Calls hold a reference while they run; a
handle that has been replaced is retired and its backend is closed once
the last of those calls lets go.
*/
type handle struct {
	key          string
	conn         config.Connection
	backend      Backend
	bootstrapped atomic.Bool

	mu      sync.Mutex
	refs    int
	retired bool
}

func (h *handle) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.retired {
		return false
	}

	h.refs++

	return true
}

func (h *handle) release() {
	h.mu.Lock()
	h.refs--
	drained := h.retired && h.refs == 0
	h.mu.Unlock()

	if drained {
		if err := h.backend.Close(); err != nil {
			log.Warn("failed to close retired backend", "connection", h.conn.Name, "error", err)
		}
	}
}

// retire closes the backend now if it is idle, otherwise on the last release.
func (h *handle) retire() error {
	h.mu.Lock()
	h.retired = true
	drained := h.refs == 0
	h.mu.Unlock()

	if !drained {
		return nil
	}

	return h.backend.Close()
}

/*
Client is the store client every other component talks to. It scopes each
filter so internal bookkeeping and trashed records stay hidden, applies a
per-call timeout, and swaps its backend handle whenever the active
connection changes.
*/
type Client struct {
	dial      Dialer
	active    func() config.Connection
	dimension func() int
	stats     *metrics.Counters

	mu      sync.Mutex
	current atomic.Pointer[handle]
}

type ClientOption func(*Client)

func NewClient(dial Dialer, active func() config.Connection, options ...ClientOption) *Client {
	client := &Client{
		dial:      dial,
		active:    active,
		dimension: func() int { return config.DefaultDimension },
	}

	for _, option := range options {
		option(client)
	}

	return client
}

func WithDimension(dimension func() int) ClientOption {
	return func(c *Client) {
		c.dimension = dimension
	}
}

func WithCounters(stats *metrics.Counters) ClientOption {
	return func(c *Client) {
		c.stats = stats
	}
}

/*
Bootstrap makes sure the collection and its index roster exist on the
active connection. It is idempotent and an existing collection counts as
success.
*/
func (c *Client) Bootstrap(ctx context.Context) error {
	h, err := c.handle(ctx)
	if err != nil {
		return err
	}

	defer h.release()

	return c.bootstrap(ctx, h)
}

func (c *Client) bootstrap(ctx context.Context, h *handle) error {
	if h.bootstrapped.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout(h.conn))
	defer cancel()

	created, err := h.backend.EnsureCollection(ctx, c.dimension())
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", h.conn.Collection, err)
	}

	for _, index := range IndexRoster {
		if err := h.backend.EnsureIndex(ctx, index.Field, index.Schema); err != nil {
			return fmt.Errorf("failed to ensure index %s: %w", index.Field, err)
		}
	}

	h.bootstrapped.Store(true)
	log.Info("collection ready", "collection", h.conn.Collection, "created", created, "url", h.conn.URL)

	return nil
}

/*
handle returns the backend for the active connection with a reference
held, replacing the previous one wholesale when the connection's
identifying fields moved. The caller must release it. Calls still running
against the previous backend keep it open until they finish.
*/
func (c *Client) handle(ctx context.Context) (*handle, error) {
	conn := c.active()
	key := conn.Key()

	if h := c.current.Load(); h != nil && h.key == key && h.acquire() {
		return h, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h := c.current.Load(); h != nil && h.key == key && h.acquire() {
		return h, nil
	}

	backend, err := c.dial(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conn.URL, err)
	}

	next := &handle{key: key, conn: conn, backend: backend}
	next.acquire()

	if previous := c.current.Swap(next); previous != nil {
		log.Info("active connection changed", "from", previous.conn.Name, "to", conn.Name, "url", conn.URL)

		if err := previous.retire(); err != nil {
			log.Warn("failed to close previous backend", "error", err)
		}
	}

	return next, nil
}

/*
with runs fn against the active backend under the connection timeout. A
collection that could not be bootstrapped earlier is retried here; if that
still fails the operation proceeds and the backend reports the real error.
*/
func (c *Client) with(ctx context.Context, fn func(ctx context.Context, backend Backend) error) error {
	h, err := c.handle(ctx)
	if err != nil {
		return err
	}

	defer h.release()

	if err := c.bootstrap(ctx, h); err != nil {
		log.Warn("collection bootstrap failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout(h.conn))
	defer cancel()

	return fn(ctx, h.backend)
}

func timeout(conn config.Connection) time.Duration {
	if conn.Timeout > 0 {
		return conn.Timeout
	}

	return config.DefaultTimeout
}

func scoped(filter *Filter, options []QueryOption) *Filter {
	opts := queryOptions{}

	for _, option := range options {
		option(&opts)
	}

	f := Filter{}

	if filter != nil {
		f = filter.clone()
	}

	f = f.Not(Match(FieldInternal, true))

	switch opts.trash {
	case excludeTrashed:
		f = f.And(IsEmpty(FieldTrashedAt))
	case onlyTrashed:
		f = f.Not(IsEmpty(FieldTrashedAt))
	}

	return &f
}

func (c *Client) Upsert(ctx context.Context, id string, vector []float32, record Record) error {
	record.ID = id

	payload, err := record.Payload()
	if err != nil {
		return err
	}

	return c.with(ctx, func(ctx context.Context, backend Backend) error {
		return backend.Upsert(ctx, Point{ID: id, Vector: vector, Payload: payload})
	})
}

func (c *Client) Search(
	ctx context.Context,
	vector []float32,
	limit int,
	filter *Filter,
	threshold float64,
	options ...QueryOption,
) ([]Hit, error) {
	var points []ScoredPoint

	err := c.with(ctx, func(ctx context.Context, backend Backend) (err error) {
		points, err = backend.Search(ctx, vector, limit, scoped(filter, options), threshold)
		return err
	})

	if err != nil {
		return nil, err
	}

	matches := make([]Hit, 0, len(points))

	for _, point := range points {
		record, err := RecordFromPayload(point.ID, point.Payload)
		if err != nil {
			log.Warn("skipping undecodable record", "id", point.ID, "error", err)
			continue
		}

		matches = append(matches, Hit{Record: record, Score: point.Score})
	}

	return matches, nil
}

/*
Retrieve fetches records by id. Trashed records are returned, since asking
for an id is explicit; internal bookkeeping points are not.
*/
func (c *Client) Retrieve(ctx context.Context, ids ...string) ([]Record, error) {
	var points []Point

	err := c.with(ctx, func(ctx context.Context, backend Backend) (err error) {
		points, err = backend.Retrieve(ctx, ids...)
		return err
	})

	if err != nil {
		return nil, err
	}

	return decode(points), nil
}

func (c *Client) Get(ctx context.Context, id string) (Record, error) {
	records, err := c.Retrieve(ctx, id)
	if err != nil {
		return Record{}, err
	}

	if len(records) == 0 {
		return Record{}, errors.NotFound("memory", id)
	}

	return records[0], nil
}

// SetPayload merges partial into one record's payload without touching its vector.
func (c *Client) SetPayload(ctx context.Context, id string, partial map[string]any) error {
	return c.with(ctx, func(ctx context.Context, backend Backend) error {
		return backend.SetPayload(ctx, []string{id}, partial)
	})
}

func (c *Client) SetPayloadByFilter(ctx context.Context, filter Filter, partial map[string]any, options ...QueryOption) error {
	return c.with(ctx, func(ctx context.Context, backend Backend) error {
		return backend.SetPayloadByFilter(ctx, *scoped(&filter, options), partial)
	})
}

func (c *Client) Scroll(
	ctx context.Context,
	filter *Filter,
	pageSize int,
	cursor string,
	options ...QueryOption,
) ([]Record, string, error) {
	var page Page

	err := c.with(ctx, func(ctx context.Context, backend Backend) (err error) {
		page, err = backend.Scroll(ctx, scoped(filter, options), pageSize, cursor)
		return err
	})

	if err != nil {
		return nil, "", err
	}

	return decode(page.Points), page.Next, nil
}

func (c *Client) Count(ctx context.Context, filter *Filter, options ...QueryOption) (int64, error) {
	var count int64

	err := c.with(ctx, func(ctx context.Context, backend Backend) (err error) {
		count, err = backend.Count(ctx, scoped(filter, options))
		return err
	})

	return count, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.with(ctx, func(ctx context.Context, backend Backend) error {
		return backend.Delete(ctx, id)
	})
}

/*
BulkRewrite applies partial to every record matching filter, trashed ones
included, one page at a time. It is not atomic: on error the records
rewritten so far stay rewritten, and running it again only touches records
that still match.
*/
func (c *Client) BulkRewrite(ctx context.Context, filter Filter, partial map[string]any, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		rewritten int
		cursor    string
	)

	for {
		var page Page

		err := c.with(ctx, func(ctx context.Context, backend Backend) (err error) {
			page, err = backend.Scroll(ctx, scoped(&filter, []QueryOption{WithTrashed()}), pageSize, cursor)
			if err != nil || len(page.Points) == 0 {
				return err
			}

			ids := make([]string, len(page.Points))

			for i, point := range page.Points {
				ids[i] = point.ID
			}

			return backend.SetPayload(ctx, ids, partial)
		})

		if err != nil {
			c.stats.RecordBulkRewrite(rewritten, true)
			return rewritten, fmt.Errorf("bulk rewrite stopped after %d records: %w", rewritten, err)
		}

		rewritten += len(page.Points)

		if page.Next == "" || len(page.Points) == 0 {
			break
		}

		cursor = page.Next
	}

	c.stats.RecordBulkRewrite(rewritten, false)

	return rewritten, nil
}

// CategoryUsage counts records, trashed ones included, labelled name.
func (c *Client) CategoryUsage(ctx context.Context, name string) (int64, error) {
	return c.Count(ctx, &Filter{Must: []Condition{Match(FieldCategory, name)}}, WithTrashed())
}

// RewriteCategory relabels every record in category from as to.
func (c *Client) RewriteCategory(ctx context.Context, from, to string) (int, error) {
	return c.BulkRewrite(ctx, Filter{Must: []Condition{Match(FieldCategory, from)}}, map[string]any{
		FieldCategory:  to,
		FieldUpdatedAt: time.Now().UTC(),
	}, DefaultPageSize)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h := c.current.Swap(nil); h != nil {
		return h.retire()
	}

	return nil
}

func decode(points []Point) []Record {
	records := make([]Record, 0, len(points))

	for _, point := range points {
		if internal, _ := point.Payload[FieldInternal].(bool); internal {
			continue
		}

		record, err := RecordFromPayload(point.ID, point.Payload)
		if err != nil {
			log.Warn("skipping undecodable record", "id", point.ID, "error", err)
			continue
		}

		records = append(records, record)
	}

	return records
}
