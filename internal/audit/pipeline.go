// Package audit decouples audit-trail writes from the request path. Every
// logging call is fire-and-forget: the event goes onto a bounded queue
// served by a fixed pool of workers, and failures are counted and logged
// but never surfaced to the caller.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medguard.org/internal/ids"
	"medguard.org/internal/obs"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4

	// Error metric components. Security events are counted separately so
	// the ops surface can alert on them with a tighter threshold.
	componentAudit    = "audit"
	componentSecurity = "security"
)

type envelope struct {
	ev        Event
	component string
}

// Pipeline accepts audit events and persists them off the calling path.
type Pipeline struct {
	queue   chan envelope
	workers int
	sink    Sink
	metrics *obs.Registry
	now     func() time.Time

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQueueSize bounds the in-flight event queue. Events arriving at a full
// queue are dropped and counted, never blocked on.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queue = make(chan envelope, n)
		}
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewPipeline starts the worker pool immediately.
func NewPipeline(sink Sink, metrics *obs.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:   make(chan envelope, defaultQueueSize),
		sink:    sink,
		metrics: metrics,
		now:     time.Now,
		quit:    make(chan struct{}),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// LogAction records a generic entity action.
func (p *Pipeline) LogAction(userID, action, entityType, entityID string) {
	p.enqueue(Event{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}, componentAudit)
}

// LogSession records a session lifecycle event (LOGIN, LOGOUT).
func (p *Pipeline) LogSession(userID, action string) {
	p.enqueue(Event{
		UserID:     userID,
		Action:     "SESSION_" + action,
		EntityType: "SESSION",
	}, componentAudit)
}

// LogSecurityEvent records a security-relevant event (lockouts, denied
// logins). Failures on this path are counted under the security component.
func (p *Pipeline) LogSecurityEvent(userID, action, detail string) {
	p.enqueue(Event{
		UserID:     userID,
		Action:     action,
		EntityType: "SECURITY",
		EntityID:   detail,
	}, componentSecurity)
}

// LogBulk issues count independent events with suffixed action names.
// Each follows the same best-effort contract; partial completion is
// expected and acceptable.
func (p *Pipeline) LogBulk(userID, baseAction, entityType string, count int) {
	for i := 0; i < count; i++ {
		p.enqueue(Event{
			UserID:     userID,
			Action:     fmt.Sprintf("%s_BULK_%d", baseAction, i),
			EntityType: entityType,
		}, componentAudit)
	}
}

// Close stops the workers. Events still queued are abandoned; best-effort
// semantics extend to shutdown.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *Pipeline) enqueue(ev Event, component string) {
	ev.ID = ids.New()
	ev.OccurredAt = p.now().UTC()
	select {
	case <-p.quit:
		p.drop(ev, component, "pipeline closed")
		return
	default:
	}
	select {
	case p.queue <- envelope{ev: ev, component: component}:
	default:
		p.drop(ev, component, "queue full")
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case env := <-p.queue:
			// No deadline on the sink: a stuck write occupies this
			// worker slot until it returns.
			if err := p.sink.Write(context.Background(), env.ev); err != nil {
				p.fail(env, err)
			}
		}
	}
}

func (p *Pipeline) drop(ev Event, component, reason string) {
	if p.metrics != nil {
		p.metrics.Increment("errors", obs.T("component", component))
	}
	obs.LogEvent("warn", "audit event dropped", map[string]any{
		"reason": reason,
		"action": ev.Action,
	})
}

func (p *Pipeline) fail(env envelope, err error) {
	if p.metrics != nil {
		p.metrics.Increment("errors", obs.T("component", env.component))
	}
	obs.LogEvent("error", "audit write failed", map[string]any{
		"action": env.ev.Action,
		"error":  err.Error(),
	})
}
