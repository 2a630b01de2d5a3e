package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"medguard.org/internal/obs"
)

// collectSink records writes in memory and can be told to fail or stall.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	gate   chan struct{}
}

func (s *collectSink) Write(_ context.Context, ev Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *collectSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEventsReachSink(t *testing.T) {
	sink := &collectSink{}
	p := NewPipeline(sink, obs.NewRegistry())
	defer p.Close()

	p.LogAction("u1", "UPDATE", "PATIENT", "p-9")
	p.LogSession("u1", "LOGIN")
	p.LogSecurityEvent("", "ACCOUNT_LOCKED", "bob")

	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })

	byAction := map[string]Event{}
	for _, ev := range sink.snapshot() {
		byAction[ev.Action] = ev
		if ev.ID == "" || ev.OccurredAt.IsZero() {
			t.Fatalf("event missing id or timestamp: %+v", ev)
		}
	}
	if ev := byAction["SESSION_LOGIN"]; ev.EntityType != "SESSION" || ev.UserID != "u1" {
		t.Fatalf("unexpected session event: %+v", ev)
	}
	if ev := byAction["ACCOUNT_LOCKED"]; ev.EntityType != "SECURITY" || ev.EntityID != "bob" {
		t.Fatalf("unexpected security event: %+v", ev)
	}
}

func TestLogBulkSuffixesActions(t *testing.T) {
	sink := &collectSink{}
	p := NewPipeline(sink, obs.NewRegistry())
	defer p.Close()

	p.LogBulk("u2", "EXPORT", "REPORT", 3)
	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })

	seen := map[string]bool{}
	for _, ev := range sink.snapshot() {
		if !strings.HasPrefix(ev.Action, "EXPORT_BULK_") {
			t.Fatalf("unexpected bulk action %q", ev.Action)
		}
		seen[ev.Action] = true
	}
	for _, want := range []string{"EXPORT_BULK_0", "EXPORT_BULK_1", "EXPORT_BULK_2"} {
		if !seen[want] {
			t.Fatalf("missing bulk action %q", want)
		}
	}
}

func TestSinkFailureIsCountedNotPropagated(t *testing.T) {
	reg := obs.NewRegistry()
	sink := &collectSink{err: errors.New("audit store down")}
	p := NewPipeline(sink, reg)
	defer p.Close()

	p.LogAction("u1", "DELETE", "DOCTOR", "d-1")
	p.LogSecurityEvent("u1", "LOGIN_FAILED", "")

	waitFor(t, func() bool {
		return reg.CounterValue("errors", obs.T("component", "audit")) == 1 &&
			reg.CounterValue("errors", obs.T("component", "security")) == 1
	})
}

func TestFullQueueDropsAndCounts(t *testing.T) {
	reg := obs.NewRegistry()
	gate := make(chan struct{})
	sink := &collectSink{gate: gate}
	p := NewPipeline(sink, reg, WithQueueSize(1), WithWorkers(1))
	defer p.Close()

	// First event occupies the worker, second fills the queue, the rest
	// must be dropped without blocking this goroutine.
	for i := 0; i < 5; i++ {
		p.LogAction("u1", "PING", "NODE", "")
	}
	waitFor(t, func() bool {
		return reg.CounterValue("errors", obs.T("component", "audit")) >= 3
	})
	close(gate)
}

func TestCloseAbandonsQueuedEvents(t *testing.T) {
	gate := make(chan struct{})
	sink := &collectSink{gate: gate}
	p := NewPipeline(sink, obs.NewRegistry(), WithQueueSize(8), WithWorkers(1))

	for i := 0; i < 4; i++ {
		p.LogAction("u1", "NOOP", "NODE", "")
	}
	close(gate)
	p.Close()

	// After Close, new events are dropped immediately.
	p.LogAction("u1", "LATE", "NODE", "")
	for _, ev := range sink.snapshot() {
		if ev.Action == "LATE" {
			t.Fatal("event accepted after Close")
		}
	}
}
