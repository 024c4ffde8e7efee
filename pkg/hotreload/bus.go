/*
Package hotreload notices taxonomy and configuration changes made by any
process and tells in-process consumers to refresh.
*/
package hotreload

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memoria/pkg/metrics"
)

/*
Bus fans a payload-free "something changed" signal out to subscribers.
Delivery is best effort: a subscriber that panics is logged and skipped.
*/
type Bus struct {
	mu    sync.RWMutex
	next  int
	subs  map[int]func()
	stats *metrics.Counters
}

func NewBus(stats *metrics.Counters) *Bus {
	return &Bus{subs: map[int]func(){}, stats: stats}
}

// Subscribe registers fn and returns a function that removes it again.
func (bus *Bus) Subscribe(fn func()) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	id := bus.next
	bus.next++
	bus.subs[id] = fn

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		delete(bus.subs, id)
	}
}

// Publish calls every current subscriber once, in subscription order.
func (bus *Bus) Publish() {
	bus.mu.RLock()

	ids := make([]int, 0, len(bus.subs))

	for id := range bus.subs {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	fns := make([]func(), len(ids))

	for i, id := range ids {
		fns[i] = bus.subs[id]
	}

	bus.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn)
	}

	bus.stats.RecordNotification()
}

func deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("change subscriber panicked", "panic", r)
		}
	}()

	fn()
}
