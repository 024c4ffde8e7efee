package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/errors"
)

var ErrUnsupportedVersion = errors.New("unsupported taxonomy version")

/*
Store caches the taxonomy file as an immutable snapshot. Readers never
lock; writers serialize on a mutex, re-read the file, write a new one
atomically and swap the snapshot. Other processes writing the same file
are reconciled through Invalidate or Reload.
*/
type Store struct {
	path     string
	snapshot atomic.Pointer[Taxonomy]
	mu       sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (store *Store) Path() string {
	return store.path
}

/*
Snapshot returns the cached taxonomy, loading it on first use. A missing
file or an unknown version reads as empty; a file that does not parse is
reported as empty without being cached, so the next read tries again.
*/
func (store *Store) Snapshot() *Taxonomy {
	if t := store.snapshot.Load(); t != nil {
		return t
	}

	t, err := load(store.path)

	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedVersion):
		log.Warn("ignoring taxonomy file", "path", store.path, "error", err)
		t = Empty()
	default:
		log.Warn("taxonomy file unreadable", "path", store.path, "error", err)
		return Empty()
	}

	store.snapshot.CompareAndSwap(nil, t)

	return store.snapshot.Load()
}

func (store *Store) Exists(name string) bool {
	return store.Snapshot().Exists(name)
}

// Invalidate drops the cached snapshot; the next read goes to disk.
func (store *Store) Invalidate() {
	store.snapshot.Store(nil)
}

/*
Reload re-reads the file and replaces the snapshot. When the file does not
parse, the previous snapshot is kept and the error returned.
*/
func (store *Store) Reload() (*Taxonomy, error) {
	t, err := load(store.path)

	if errors.Is(err, ErrUnsupportedVersion) {
		log.Warn("ignoring taxonomy file", "path", store.path, "error", err)
		t, err = Empty(), nil
	}

	if err != nil {
		return store.snapshot.Load(), err
	}

	store.snapshot.Store(t)

	return t, nil
}

/*
Update applies fn to a fresh copy of the file's current content and, when
fn reports a change, writes the result back and caches it. A file that
does not parse or has an unknown version is never overwritten.
*/
func (store *Store) Update(fn func(t *Taxonomy) (bool, error)) (*Taxonomy, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := load(store.path)
	if err != nil {
		return nil, fmt.Errorf("refusing to modify %s: %w", store.path, err)
	}

	next := current.clone()

	changed, err := fn(next)
	if err != nil {
		return nil, err
	}

	if !changed {
		store.snapshot.Store(current)
		return current, nil
	}

	if err := write(store.path, next); err != nil {
		return nil, err
	}

	store.snapshot.Store(next)

	return next, nil
}

// Raw returns the file as it is on disk, for archiving.
func (store *Store) Raw() ([]byte, error) {
	data, err := os.ReadFile(store.path)

	if os.IsNotExist(err) {
		return json.Marshal(Empty())
	}

	return data, err
}

func load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)

	if os.IsNotExist(err) {
		return Empty(), nil
	}

	if err != nil {
		return nil, err
	}

	var t Taxonomy

	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if t.Version != Version {
		return nil, fmt.Errorf("%w %d in %s", ErrUnsupportedVersion, t.Version, path)
	}

	if t.Categories == nil {
		t.Categories = []Category{}
	}

	return &t, nil
}

// write replaces path through a temp file in the same directory.
func write(path string, t *Taxonomy) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
