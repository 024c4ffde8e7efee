package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/theapemachine/memoria/pkg/metrics"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

const DefaultDebounce = 300 * time.Millisecond

/*
Coordinator watches the taxonomy file and, once a burst of events has been
quiet for the debounce window, reloads the store, rebuilds the routing
guide and publishes one notification. A file that does not parse is
treated as a write still in progress: nothing changes and nothing is
published.
*/
type Coordinator struct {
	store    *taxonomy.Store
	bus      *Bus
	debounce time.Duration
	stats    *metrics.Counters
	guide    atomic.Pointer[rendered]

	mu    sync.Mutex
	timer *time.Timer
}

// rendered ties a routing guide to the snapshot it was built from.
type rendered struct {
	snapshot *taxonomy.Taxonomy
	text     string
}

type Option func(*Coordinator)

func WithDebounce(debounce time.Duration) Option {
	return func(c *Coordinator) {
		c.debounce = debounce
	}
}

func WithCounters(stats *metrics.Counters) Option {
	return func(c *Coordinator) {
		c.stats = stats
	}
}

func NewCoordinator(store *taxonomy.Store, bus *Bus, options ...Option) *Coordinator {
	coordinator := &Coordinator{
		store:    store,
		bus:      bus,
		debounce: DefaultDebounce,
	}

	for _, option := range options {
		option(coordinator)
	}

	return coordinator
}

func (coordinator *Coordinator) Bus() *Bus {
	return coordinator.bus
}

/*
Start watches the directory holding the taxonomy file, so replacing the
file by rename is seen too. The watch stops when ctx is done.
*/
func (coordinator *Coordinator) Start(ctx context.Context) error {
	path := filepath.Clean(coordinator.store.Path())
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go coordinator.watch(ctx, watcher, path)

	log.Info("watching taxonomy", "path", path, "debounce", coordinator.debounce)

	return nil
}

func (coordinator *Coordinator) watch(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			coordinator.stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				coordinator.Trigger()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			log.Warn("taxonomy watch error", "error", err)
		}
	}
}

/*
Trigger schedules a reload, pushing back any one already pending. The
configuration watcher calls it as well, since switching the active
connection changes what consumers should show.
*/
func (coordinator *Coordinator) Trigger() {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	if coordinator.timer != nil {
		coordinator.timer.Stop()
	}

	coordinator.timer = time.AfterFunc(coordinator.debounce, coordinator.settle)
}

func (coordinator *Coordinator) settle() {
	t, err := coordinator.store.Reload()

	coordinator.stats.RecordReload(err == nil)

	if err != nil {
		log.Debug("taxonomy reload skipped", "error", err)
		return
	}

	coordinator.render(t)
	coordinator.bus.Publish()
}

/*
RoutingGuide returns the guide for the current snapshot, rendering it only
when the snapshot has been replaced since the last call.
*/
func (coordinator *Coordinator) RoutingGuide() string {
	t := coordinator.store.Snapshot()

	if cached := coordinator.guide.Load(); cached != nil && cached.snapshot == t {
		return cached.text
	}

	return coordinator.render(t)
}

func (coordinator *Coordinator) render(t *taxonomy.Taxonomy) string {
	text := taxonomy.RenderRoutingGuide(t)
	coordinator.guide.Store(&rendered{snapshot: t, text: text})

	return text
}

func (coordinator *Coordinator) stop() {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	if coordinator.timer != nil {
		coordinator.timer.Stop()
	}
}
