// Package health aggregates infrastructure probes and metric readings into
// an up/down verdict computed on demand. Nothing here is stored; every call
// re-evaluates.
package health

import (
	"context"
	"fmt"
	"runtime"

	"medguard.org/internal/obs"
)

// State is a component verdict.
type State string

const (
	StateUp   State = "UP"
	StateDown State = "DOWN"
)

// Status is one evaluated snapshot.
type Status struct {
	Overall    State             `json:"status"`
	Components map[string]State  `json:"components"`
	Details    map[string]string `json:"details"`
}

// DatabaseProber checks connectivity plus a trivial round trip.
type DatabaseProber interface {
	Probe(ctx context.Context) error
}

const (
	maxDatabaseErrors = 10
	maxActiveSessions = 1000
	maxHeapRatio      = 0.90
	minCacheHitRatio  = 0.5
)

// Evaluator combines the database probe with metric readings. Thresholds
// follow the legacy system: the session ceiling exists because session
// replacement orphans old activity records instead of evicting them.
type Evaluator struct {
	db       DatabaseProber
	metrics  *obs.Registry
	memUsage func() (used, max uint64)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMemoryUsage overrides how heap usage is read (tests).
func WithMemoryUsage(fn func() (used, max uint64)) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.memUsage = fn
		}
	}
}

// NewEvaluator constructs an evaluator. db may be nil when no database is
// configured; that check then passes vacuously.
func NewEvaluator(db DatabaseProber, metrics *obs.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{
		db:       db,
		metrics:  metrics,
		memUsage: heapUsage,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates all four components. Overall is UP iff every component
// is UP.
func (e *Evaluator) Check(ctx context.Context) Status {
	st := Status{
		Components: make(map[string]State, 4),
		Details:    make(map[string]string, 8),
	}

	st.Components["database"] = e.checkDatabase(ctx, st.Details)
	st.Components["cache"] = e.checkCache(st.Details)
	st.Components["sessions"] = e.checkSessions(st.Details)
	st.Components["memory"] = e.checkMemory(st.Details)

	st.Overall = StateUp
	for _, s := range st.Components {
		if s != StateUp {
			st.Overall = StateDown
			break
		}
	}
	return st
}

func (e *Evaluator) checkDatabase(ctx context.Context, details map[string]string) (state State) {
	state = StateUp
	defer func() {
		// A panicking probe counts as that component being down, with
		// the message captured.
		if r := recover(); r != nil {
			details["database_error"] = fmt.Sprint(r)
			state = StateDown
		}
	}()

	errCount := e.metrics.CounterValue("errors", obs.T("component", "database"))
	details["database_errors"] = fmt.Sprintf("%d", errCount)

	if e.db == nil {
		details["database"] = "not configured"
	} else if err := e.db.Probe(ctx); err != nil {
		details["database_error"] = err.Error()
		return StateDown
	}
	if errCount >= maxDatabaseErrors {
		return StateDown
	}
	return state
}

func (e *Evaluator) checkCache(details map[string]string) State {
	hits := e.metrics.CounterValue("cache", obs.T("result", "hit"))
	misses := e.metrics.CounterValue("cache", obs.T("result", "miss"))
	total := hits + misses
	if total == 0 {
		details["cache_hit_ratio"] = "no samples"
		return StateUp
	}
	ratio := float64(hits) / float64(total)
	details["cache_hit_ratio"] = fmt.Sprintf("%.1f%%", ratio*100)
	if ratio > minCacheHitRatio {
		return StateUp
	}
	return StateDown
}

func (e *Evaluator) checkSessions(details map[string]string) State {
	active := e.metrics.GaugeValue("sessions.active")
	details["active_sessions"] = fmt.Sprintf("%.0f", active)
	if active < maxActiveSessions {
		return StateUp
	}
	return StateDown
}

func (e *Evaluator) checkMemory(details map[string]string) State {
	used, max := e.memUsage()
	details["heap_used"] = formatBytes(used)
	details["heap_max"] = formatBytes(max)
	if max == 0 {
		details["heap_ratio"] = "unknown"
		return StateUp
	}
	ratio := float64(used) / float64(max)
	details["heap_ratio"] = fmt.Sprintf("%.1f%%", ratio*100)
	if ratio < maxHeapRatio {
		return StateUp
	}
	return StateDown
}

func heapUsage() (used, max uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc, m.HeapSys
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
