package auth

import (
	"sync"
	"time"

	"medguard.org/internal/audit"
	"medguard.org/internal/obs"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutWindow    = 15 * time.Minute
)

type attemptRecord struct {
	mu       sync.Mutex
	fails    int
	locked   bool
	lockedAt time.Time
}

// AttemptTracker counts consecutive failed logins per username and locks
// the account for a window once the threshold is reached. State is
// process-wide and in-memory only; nothing survives a restart.
//
// Records live in a sync.Map with a per-record mutex, so the increment-
// then-compare sequence is linearizable per username while attempts for
// different usernames never contend.
type AttemptTracker struct {
	records   sync.Map // username -> *attemptRecord
	threshold int
	window    time.Duration
	now       func() time.Time

	metrics *obs.Registry
	trail   *audit.Pipeline
}

// TrackerOption configures an AttemptTracker.
type TrackerOption func(*AttemptTracker)

// WithLockoutThreshold sets the consecutive-failure count that locks the
// account.
func WithLockoutThreshold(n int) TrackerOption {
	return func(t *AttemptTracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithLockoutWindow sets how long a lock holds.
func WithLockoutWindow(d time.Duration) TrackerOption {
	return func(t *AttemptTracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithTrackerClock overrides the time source (tests).
func WithTrackerClock(fn func() time.Time) TrackerOption {
	return func(t *AttemptTracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewAttemptTracker constructs a tracker with the default threshold of 5
// failures and a 15 minute lockout window.
func NewAttemptTracker(metrics *obs.Registry, trail *audit.Pipeline, opts ...TrackerOption) *AttemptTracker {
	t := &AttemptTracker{
		threshold: defaultLockoutThreshold,
		window:    defaultLockoutWindow,
		now:       time.Now,
		metrics:   metrics,
		trail:     trail,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordAttempt registers the outcome of one login attempt. Success clears
// any record for the username; failure increments the count and locks the
// account exactly when the count reaches the threshold.
func (t *AttemptTracker) RecordAttempt(username string, succeeded bool) {
	if succeeded {
		t.records.Delete(username)
		t.count("success")
		return
	}

	rec := t.record(username)
	rec.mu.Lock()
	if rec.locked && !t.now().Before(rec.lockedAt.Add(t.window)) {
		// Lock already expired; this failure starts a fresh count.
		rec.fails = 0
		rec.locked = false
	}
	rec.fails++
	justLocked := false
	if !rec.locked && rec.fails == t.threshold {
		rec.locked = true
		rec.lockedAt = t.now()
		justLocked = true
	}
	rec.mu.Unlock()

	t.count("failure")
	if justLocked {
		if t.metrics != nil {
			t.metrics.Increment("errors", obs.T("component", "authentication"))
		}
		if t.trail != nil {
			t.trail.LogSecurityEvent("", "ACCOUNT_LOCKED", username)
		}
	} else if t.trail != nil {
		t.trail.LogSecurityEvent("", "LOGIN_FAILED", username)
	}
}

// IsLocked reports whether the username is currently locked. Observing an
// expired lock resets the count under the record mutex, so the next failure
// starts a fresh count. The record itself stays in the map: a concurrent
// RecordAttempt may already hold a pointer to it, and deleting here would
// let that failure land on an orphaned record and vanish.
func (t *AttemptTracker) IsLocked(username string) bool {
	v, ok := t.records.Load(username)
	if !ok {
		return false
	}
	rec := v.(*attemptRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.locked {
		return false
	}
	if !t.now().Before(rec.lockedAt.Add(t.window)) {
		rec.fails = 0
		rec.locked = false
		return false
	}
	return true
}

// FailureCount returns the current consecutive-failure count for the
// username. Exposed for the ops surface.
func (t *AttemptTracker) FailureCount(username string) int {
	v, ok := t.records.Load(username)
	if !ok {
		return 0
	}
	rec := v.(*attemptRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.fails
}

func (t *AttemptTracker) record(username string) *attemptRecord {
	v, _ := t.records.LoadOrStore(username, &attemptRecord{})
	return v.(*attemptRecord)
}

func (t *AttemptTracker) count(status string) {
	if t.metrics != nil {
		t.metrics.Increment("logins", obs.T("status", status))
	}
}
