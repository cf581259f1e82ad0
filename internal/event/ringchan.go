package event

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full, the oldest element is discarded.
// Readers use C() like a normal Go channel.
//
//	rc := NewRingChannel[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println("got:", v) // 7, 8, 9
//	}
type RingChannel[T any] struct {
	ch      chan T
	mu      sync.Mutex // serializes senders and Close
	closed  bool
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest if the buffer is full.
// Returns true if an item was overwritten. Sending after Close is a no-op.
func (rc *RingChannel[T]) Send(v T) (overwritten bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		atomic.AddInt64(&rc.metrics.Errors, 1)
		return false
	}

	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return overwritten
		default:
		}

		select {
		case <-rc.ch: // drop oldest
			atomic.AddInt64(&rc.metrics.Overwritten, 1)
			overwritten = true
		default:
			// a reader drained it meanwhile; retry
		}
	}
}

// SendKeep is Send, except that a full buffer discards its oldest element for which
// keep returns false. When every buffered element must be kept the oldest one goes.
func (rc *RingChannel[T]) SendKeep(v T, keep func(T) bool) (overwritten bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		atomic.AddInt64(&rc.metrics.Errors, 1)
		return false
	}

	select {
	case rc.ch <- v:
		atomic.AddInt64(&rc.metrics.Written, 1)
		return false
	default:
	}

	// Senders are serialized by mu, so draining and refilling keeps the order.
	buf := make([]T, 0, cap(rc.ch))
drain:
	for {
		select {
		case x := <-rc.ch:
			buf = append(buf, x)
		default:
			break drain
		}
	}

	if len(buf) == cap(rc.ch) {
		victim := 0
		for i, x := range buf {
			if !keep(x) {
				victim = i
				break
			}
		}
		buf = append(buf[:victim], buf[victim+1:]...)
		atomic.AddInt64(&rc.metrics.Overwritten, 1)
		overwritten = true
	}

	for _, x := range buf {
		rc.ch <- x
	}
	rc.ch <- v
	atomic.AddInt64(&rc.metrics.Written, 1)
	return overwritten
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Buffered items remain readable. Idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&rc.metrics.Errors),
	}
}

// Metrics counts RingChannel traffic. Errors counts sends after Close.
type Metrics struct {
	Written     int64
	Overwritten int64
	Errors      int64
}
