package testutils

import (
	"sync"
	"time"

	"github.com/srg/crafty/internal/event"
)

// RecordingSink is an event.Sink that keeps every event it receives.
type RecordingSink struct {
	mu      sync.Mutex
	events  []event.Event
	changed chan struct{}
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{changed: make(chan struct{})}
}

// Emit records e.
func (r *RecordingSink) Emit(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

// Events returns a copy of every recorded event in order.
func (r *RecordingSink) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Kinds returns the kinds of every recorded event in order.
func (r *RecordingSink) Kinds() []event.Kind {
	events := r.Events()
	kinds := make([]event.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind()
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (r *RecordingSink) Count(kind event.Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

// Reset forgets every recorded event.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n events of kind were recorded or timeout elapses.
func (r *RecordingSink) WaitFor(kind event.Kind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		count := 0
		for _, e := range r.events {
			if e.Kind() == kind {
				count++
			}
		}
		changed := r.changed
		r.mu.Unlock()

		if count >= n {
			return true
		}
		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

// EventsOf returns the recorded events of type T in order.
func EventsOf[T event.Event](r *RecordingSink) []T {
	var out []T
	for _, e := range r.Events() {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// LastOf returns the most recent recorded event of type T.
func LastOf[T event.Event](r *RecordingSink) (T, bool) {
	all := EventsOf[T](r)
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[len(all)-1], true
}
