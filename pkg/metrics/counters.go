package metrics

import (
	"sync"
	"time"
)

// Counters tracks the best-effort paths whose failures are never surfaced
// to callers, so they stay visible somewhere.
type Counters struct {
	mu sync.RWMutex

	// Recall metrics
	Recalls        int64
	RecallDuration time.Duration
	AccessUpdates  int64
	AccessFailures int64

	// Taxonomy metrics
	BulkRewrites        int64
	RewrittenRecords    int64
	BulkRewriteFailures int64
	Reloads             int64
	ReloadFailures      int64
	Notifications       int64
}

// NewCounters creates a new Counters instance
func NewCounters() *Counters {
	return &Counters{}
}

// RecordRecall records one ranked retrieval.
func (m *Counters) RecordRecall(duration time.Duration) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Recalls++
	m.RecallDuration += duration
}

// RecordAccessUpdate records the outcome of a fire-and-forget access update.
func (m *Counters) RecordAccessUpdate(success bool) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.AccessUpdates++
	if !success {
		m.AccessFailures++
	}
}

// RecordBulkRewrite records a chunked denormalized-field rewrite.
func (m *Counters) RecordBulkRewrite(records int, failed bool) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.BulkRewrites++
	m.RewrittenRecords += int64(records)
	if failed {
		m.BulkRewriteFailures++
	}
}

// RecordReload records a hot-reload attempt of the taxonomy file.
func (m *Counters) RecordReload(success bool) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reloads++
	if !success {
		m.ReloadFailures++
	}
}

func (m *Counters) RecordNotification() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications++
}

// Snapshot returns a copy of the current metrics
func (m *Counters) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := 0.0
	if m.Recalls > 0 {
		avg = m.RecallDuration.Seconds() / float64(m.Recalls)
	}

	return map[string]any{
		"recalls":               m.Recalls,
		"avg_recall_seconds":    avg,
		"access_updates":        m.AccessUpdates,
		"access_failures":       m.AccessFailures,
		"bulk_rewrites":         m.BulkRewrites,
		"rewritten_records":     m.RewrittenRecords,
		"bulk_rewrite_failures": m.BulkRewriteFailures,
		"reloads":               m.Reloads,
		"reload_failures":       m.ReloadFailures,
		"notifications":         m.Notifications,
	}
}
