package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"medguard.org/internal/audit"
	"medguard.org/internal/obs"
)

const (
	defaultIdleTimeout = 30 * time.Minute
	sessionTokenBytes  = 32

	activeSessionsGauge = "sessions.active"
)

type sessionRecord struct {
	userID    string
	createdAt time.Time
	// lastActivity is unix nanoseconds, read and written atomically so
	// Valid stays a pure read with no lock.
	lastActivity atomic.Int64
}

// SessionRegistry issues opaque bearer tokens and tracks last activity per
// session. One session is tracked per user; creating a new one replaces the
// user mapping, last write wins. State is in-memory for the process
// lifetime only.
type SessionRegistry struct {
	byUser  sync.Map // userID -> token
	byToken sync.Map // token -> *sessionRecord
	active  atomic.Int64

	idle time.Duration
	now  func() time.Time

	metrics *obs.Registry
	trail   *audit.Pipeline
}

// SessionOption configures a SessionRegistry.
type SessionOption func(*SessionRegistry)

// WithIdleTimeout sets the inactivity window after which a session is
// considered expired.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(r *SessionRegistry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithSessionClock overrides the time source (tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(r *SessionRegistry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewSessionRegistry constructs a registry with the default 30 minute idle
// timeout.
func NewSessionRegistry(metrics *obs.Registry, trail *audit.Pipeline, opts ...SessionOption) *SessionRegistry {
	r := &SessionRegistry{
		idle:    defaultIdleTimeout,
		now:     time.Now,
		metrics: metrics,
		trail:   trail,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create issues a fresh session token for the user and replaces any prior
// session mapping for the same user. The prior session's activity record is
// left in place until its own idle timeout; it is reachable by direct token
// lookup but no longer through the user.
func (r *SessionRegistry) Create(userID string) (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := r.now()
	rec := &sessionRecord{userID: userID, createdAt: now}
	rec.lastActivity.Store(now.UnixNano())
	r.byToken.Store(token, rec)
	r.byUser.Store(userID, token)
	r.active.Add(1)
	r.publishGauge()

	if r.trail != nil {
		r.trail.LogSession(userID, "LOGIN")
	}
	return token, nil
}

// Invalidate removes the user's tracked session and its activity record.
// Without an active session it is a no-op beyond refreshing the gauge.
func (r *SessionRegistry) Invalidate(userID string) {
	v, ok := r.byUser.LoadAndDelete(userID)
	if ok {
		r.byToken.Delete(v.(string))
		r.active.Add(-1)
		if r.trail != nil {
			r.trail.LogSession(userID, "LOGOUT")
		}
	}
	r.publishGauge()
}

// Valid reports whether the token identifies a session inside its idle
// window. Expiry is recognized lazily: observing an expired session reaps
// its record and drops it from the gauge, so replaced sessions that run out
// their own idle timeout do not inflate the active count forever.
func (r *SessionRegistry) Valid(token string) bool {
	v, ok := r.byToken.Load(token)
	if !ok {
		return false
	}
	rec := v.(*sessionRecord)
	last := time.Unix(0, rec.lastActivity.Load())
	if r.now().Before(last.Add(r.idle)) {
		return true
	}
	if r.byToken.CompareAndDelete(token, v) {
		// Only unmap the user if this token is still their current
		// session; a replaced session must not evict its successor.
		r.byUser.CompareAndDelete(rec.userID, token)
		r.active.Add(-1)
		r.publishGauge()
	}
	return false
}

// Touch refreshes the session's last-activity time. Unknown tokens are
// ignored; a removed session is not resurrected.
func (r *SessionRegistry) Touch(token string) {
	v, ok := r.byToken.Load(token)
	if !ok {
		return
	}
	v.(*sessionRecord).lastActivity.Store(r.now().UnixNano())
}

// UserOf returns the user that owns the session token.
func (r *SessionRegistry) UserOf(token string) (string, bool) {
	v, ok := r.byToken.Load(token)
	if !ok {
		return "", false
	}
	return v.(*sessionRecord).userID, true
}

func (r *SessionRegistry) publishGauge() {
	if r.metrics != nil {
		r.metrics.SetGauge(activeSessionsGauge, float64(r.active.Load()))
	}
}
