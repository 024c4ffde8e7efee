/*
Package sqlite is a local, single-file memory.Backend. It keeps vectors and
payloads as JSON and searches by brute-force cosine similarity, which is
fine for a personal store and for tests that should not need a Qdrant.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/theapemachine/memoria/pkg/memory"
	"github.com/theapemachine/memoria/pkg/utils"
)

type Store struct {
	db         *sql.DB
	collection string
}

// Open opens or creates the database at dbPath and scopes it to collection.
func Open(dbPath, collection string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1)

	store := &Store{db: db, collection: collection}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (store *Store) migrate() error {
	_, err := store.db.Exec(`
	CREATE TABLE IF NOT EXISTS collections (
		name      TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payload_indexes (
		collection TEXT NOT NULL,
		field      TEXT NOT NULL,
		schema     TEXT NOT NULL,
		PRIMARY KEY (collection, field)
	);

	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		vector     TEXT NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`)

	return err
}

func (store *Store) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	res, err := store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, ?)`,
		store.collection, dimension,
	)

	if err != nil {
		return false, fmt.Errorf("create collection: %w", err)
	}

	n, err := res.RowsAffected()

	return n == 1, err
}

// EnsureIndex only records the index; filtering happens in Go either way.
func (store *Store) EnsureIndex(ctx context.Context, field string, schema memory.IndexSchema) error {
	_, err := store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payload_indexes (collection, field, schema) VALUES (?, ?, ?)`,
		store.collection, field, string(schema),
	)

	return err
}

func (store *Store) dimension(ctx context.Context) (int, error) {
	var dimension int

	err := store.db.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, store.collection,
	).Scan(&dimension)

	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("collection %s does not exist", store.collection)
	}

	return dimension, err
}

func (store *Store) Upsert(ctx context.Context, points ...memory.Point) error {
	dimension, err := store.dimension(ctx)
	if err != nil {
		return err
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		if len(p.Vector) != dimension {
			return fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), dimension)
		}

		vector, err := json.Marshal(p.Vector)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO points (collection, id, vector, payload) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload`,
			store.collection, p.ID, string(vector), string(payload),
		); err != nil {
			return fmt.Errorf("upsert %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

type row struct {
	id      string
	vector  []float32
	payload map[string]any
}

// scan walks points in id order starting at from, decoding as it goes.
func (store *Store) scan(ctx context.Context, q queryer, from string, fn func(row) bool) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, vector, payload FROM points WHERE collection = ? AND id >= ? ORDER BY id`,
		store.collection, from,
	)

	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       row
			vector  string
			payload string
		)

		if err := rows.Scan(&r.id, &vector, &payload); err != nil {
			return err
		}

		if err := json.Unmarshal([]byte(vector), &r.vector); err != nil {
			return fmt.Errorf("decode vector %s: %w", r.id, err)
		}

		if err := json.Unmarshal([]byte(payload), &r.payload); err != nil {
			return fmt.Errorf("decode payload %s: %w", r.id, err)
		}

		if !fn(r) {
			break
		}
	}

	return rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func matches(filter *memory.Filter, payload map[string]any) bool {
	return filter == nil || filter.Matches(payload)
}

func (store *Store) Search(
	ctx context.Context,
	vector []float32,
	limit int,
	filter *memory.Filter,
	threshold float64,
) ([]memory.ScoredPoint, error) {
	var scored []memory.ScoredPoint

	err := store.scan(ctx, store.db, "", func(r row) bool {
		if !matches(filter, r.payload) {
			return true
		}

		score := utils.Cosine(vector, r.vector)

		if score >= threshold {
			scored = append(scored, memory.ScoredPoint{ID: r.id, Score: score, Payload: r.payload})
		}

		return true
	})

	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	return scored, nil
}

func (store *Store) Retrieve(ctx context.Context, ids ...string) ([]memory.Point, error) {
	points := make([]memory.Point, 0, len(ids))

	for _, id := range ids {
		var (
			vector  string
			payload string
		)

		err := store.db.QueryRowContext(ctx,
			`SELECT vector, payload FROM points WHERE collection = ? AND id = ?`,
			store.collection, id,
		).Scan(&vector, &payload)

		if err == sql.ErrNoRows {
			continue
		}

		if err != nil {
			return nil, err
		}

		p := memory.Point{ID: id}

		if err := json.Unmarshal([]byte(vector), &p.Vector); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
			return nil, err
		}

		points = append(points, p)
	}

	return points, nil
}

func (store *Store) SetPayload(ctx context.Context, ids []string, payload map[string]any) error {
	wanted := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	return store.merge(ctx, func(r row) bool {
		_, ok := wanted[r.id]
		return ok
	}, payload)
}

func (store *Store) SetPayloadByFilter(ctx context.Context, filter memory.Filter, payload map[string]any) error {
	return store.merge(ctx, func(r row) bool {
		return filter.Matches(r.payload)
	}, payload)
}

// merge overwrites the given keys on every selected point in one transaction.
func (store *Store) merge(ctx context.Context, selected func(row) bool, partial map[string]any) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var targets []row

	if err := store.scan(ctx, tx, "", func(r row) bool {
		if selected(r) {
			targets = append(targets, r)
		}
		return true
	}); err != nil {
		return err
	}

	for _, r := range targets {
		for key, value := range partial {
			r.payload[key] = value
		}

		payload, err := json.Marshal(r.payload)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE points SET payload = ? WHERE collection = ? AND id = ?`,
			string(payload), store.collection, r.id,
		); err != nil {
			return fmt.Errorf("set payload %s: %w", r.id, err)
		}
	}

	return tx.Commit()
}

/*
Scroll returns up to limit matching points in id order. The cursor is the
id of the first point of the next page.
*/
func (store *Store) Scroll(ctx context.Context, filter *memory.Filter, limit int, cursor string) (memory.Page, error) {
	var page memory.Page

	if limit <= 0 {
		limit = memory.DefaultPageSize
	}

	err := store.scan(ctx, store.db, cursor, func(r row) bool {
		if !matches(filter, r.payload) {
			return true
		}

		if len(page.Points) == limit {
			page.Next = r.id
			return false
		}

		page.Points = append(page.Points, memory.Point{ID: r.id, Payload: r.payload})

		return true
	})

	return page, err
}

func (store *Store) Count(ctx context.Context, filter *memory.Filter) (int64, error) {
	var count int64

	err := store.scan(ctx, store.db, "", func(r row) bool {
		if matches(filter, r.payload) {
			count++
		}
		return true
	})

	return count, err
}

func (store *Store) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := store.db.ExecContext(ctx,
			`DELETE FROM points WHERE collection = ? AND id = ?`, store.collection, id,
		); err != nil {
			return err
		}
	}

	return nil
}

func (store *Store) Close() error {
	return store.db.Close()
}
