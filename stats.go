package tenantdb

import (
	"sync"
	"time"
)

// Stats aggregates dispatched operation timings for one Client.
// Count and TotalTime only move on success; failures are tallied separately.
type Stats struct {
	Count     int
	TotalTime time.Duration
	ByQuery   map[string]QueryStats
}

// QueryStats is the per-operation bucket of Stats.
type QueryStats struct {
	Count     int
	TotalTime time.Duration
	Failures  int
}

// statsRecorder guards a Stats value. Updates land in completion order.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{ByQuery: make(map[string]QueryStats)}}
}

func (r *statsRecorder) recordSuccess(name string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Count++
	r.stats.TotalTime += elapsed
	q := r.stats.ByQuery[name]
	q.Count++
	q.TotalTime += elapsed
	r.stats.ByQuery[name] = q
}

func (r *statsRecorder) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.stats.ByQuery[name]
	q.Failures++
	r.stats.ByQuery[name] = q
}

// snapshot returns a copy safe to hand out.
func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Stats{
		Count:     r.stats.Count,
		TotalTime: r.stats.TotalTime,
		ByQuery:   make(map[string]QueryStats, len(r.stats.ByQuery)),
	}
	for k, v := range r.stats.ByQuery {
		out.ByQuery[k] = v
	}
	return out
}
