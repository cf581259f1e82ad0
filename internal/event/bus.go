package event

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Sink receives events. Emit must not block the engine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi returns a Sink that forwards to every sink in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range out {
			s.Emit(e)
		}
	})
}

// DefaultSubscriberBuffer is used when Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 64

// Bus fans events out to any number of subscribers. Each subscriber gets its own
// overwrite-oldest buffer, so a slow consumer loses its oldest events instead of
// stalling the engine. Lifecycle events and the command bracket are only dropped
// when a buffer holds nothing else.
type Bus struct {
	subs   *hashmap.Map[uint64, *Subscriber]
	nextID atomic.Uint64
	logger *logrus.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		subs:   hashmap.New[uint64, *Subscriber](),
		logger: logger,
	}
}

// Emit delivers e to every current subscriber.
func (b *Bus) Emit(e Event) {
	b.subs.Range(func(id uint64, s *Subscriber) bool {
		if s.ring.SendKeep(e, mustDeliver) {
			b.logger.WithFields(logrus.Fields{
				"subscriber": id,
				"kind":       e.Kind().String(),
			}).Debug("Subscriber buffer full, oldest event dropped")
		}
		return true
	})
}

// mustDeliver reports events whose loss would leave a consumer's state stuck.
func mustDeliver(e Event) bool {
	switch e.(type) {
	case Connected, Disconnected, UpdatingStarted, UpdatingFinished:
		return true
	}
	return false
}

// Subscribe registers a new subscriber with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	s := &Subscriber{
		id:   b.nextID.Add(1),
		bus:  b,
		ring: NewRingChannel[Event](buffer),
	}
	b.subs.Set(s.id, s)
	return s
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	return b.subs.Len()
}

// Close closes every subscriber.
func (b *Bus) Close() {
	var all []*Subscriber
	b.subs.Range(func(_ uint64, s *Subscriber) bool {
		all = append(all, s)
		return true
	})
	for _, s := range all {
		s.Close()
	}
}

// Subscriber is one consumer of a Bus.
type Subscriber struct {
	id   uint64
	bus  *Bus
	ring *RingChannel[Event]
	once sync.Once
}

// C returns the event channel. It is closed by Close.
func (s *Subscriber) C() <-chan Event {
	return s.ring.C()
}

// Close unregisters the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.subs.Del(s.id)
		s.ring.Close()
	})
}

// Metrics returns the subscriber buffer counters.
func (s *Subscriber) Metrics() Metrics {
	return s.ring.GetMetrics()
}
