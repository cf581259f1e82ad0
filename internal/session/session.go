package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/internal/groutine"
	"github.com/srg/crafty/internal/queue"
	"github.com/srg/crafty/internal/units"
)

// Snapshot holds the most recent raw temperatures (tenths of °C) and settings.
type Snapshot struct {
	Unit        units.Unit
	Temperature uint16
	SetPoint    uint16
	Boost       uint16
	Settings    uint16
}

// Display converts a raw temperature of the snapshot to its display unit.
func (s Snapshot) Display(raw uint16) float64 {
	return units.DeviceToDisplay(raw, s.Unit, units.DefaultDecimals)
}

// Session is one live connection to the heater. It becomes invalid after teardown;
// every command then fails with ErrSessionClosed.
type Session struct {
	m        *Manager
	conn     device.Connection
	address  string
	detailed bool
	sink     event.Sink
	logger   *logrus.Logger
	queue    *queue.Queue

	// written during bring-up only
	services map[string]device.Service
	chars    map[string]device.Characteristic
	subs     []device.Subscription

	unit         atomic.Int32
	settingsBusy atomic.Bool

	mu   sync.RWMutex
	snap Snapshot

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	err       error
}

func newSession(m *Manager, conn device.Connection, opts ConnectOptions) *Session {
	s := &Session{
		m:        m,
		conn:     conn,
		address:  conn.Address(),
		detailed: opts.Detailed,
		sink:     m.sink,
		logger:   m.logger,
		queue: queue.New(m.logger,
			queue.WithName("session-queue"),
			queue.WithTaskTimeout(m.commandTimeout)),
		services: make(map[string]device.Service),
		chars:    make(map[string]device.Characteristic),
		done:     make(chan struct{}),
	}
	s.unit.Store(int32(opts.Unit))
	s.snap.Unit = opts.Unit
	return s
}

// Address returns the peripheral address.
func (s *Session) Address() string { return s.address }

// Unit returns the current display unit.
func (s *Session) Unit() units.Unit { return units.Unit(s.unit.Load()) }

// Detailed reports whether the diagnostics group was read at bring-up.
func (s *Session) Detailed() bool { return s.detailed }

// Snapshot returns the cached raw values.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Unit = s.Unit()
	return snap
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the teardown cause: nil while live or after an explicit Disconnect,
// ErrConnectionLost after an unsolicited drop.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Stats returns the command queue counters.
func (s *Session) Stats() queue.Stats {
	return s.queue.Stats()
}

// Disconnect tears the session down and emits a single Disconnected event.
// Calling it again is a no-op.
func (s *Session) Disconnect() error {
	return s.teardown(nil, false)
}

func (s *Session) updateSnapshot(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

// arm starts watching for an unsolicited drop. It is called after Connected has
// been emitted so that Disconnected always follows it.
func (s *Session) arm() {
	groutine.Go(context.Background(), "session-watch", func(ctx context.Context) {
		select {
		case <-s.conn.Disconnected():
			if s.closing.Load() {
				return
			}
			s.logger.WithField("address", s.address).Warn("Heater disconnected unexpectedly")
			_ = s.teardown(ErrConnectionLost, true)
		case <-s.done:
		}
	})
}

// teardown releases the session once. Tasks still queued fail with ErrConnectionLost
// or ErrSessionClosed; the task in flight is left to fail on its own.
func (s *Session) teardown(cause error, unsolicited bool) error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		queueCause := ErrSessionClosed
		if unsolicited {
			queueCause = ErrConnectionLost
		}
		s.queue.Close(queueCause)
		s.cancelSubscriptions()
		err = s.conn.Disconnect()

		s.err = cause
		s.m.detach(s)
		close(s.done)

		s.logger.WithFields(logrus.Fields{
			"address":     s.address,
			"cause":       cause,
			"unsolicited": unsolicited,
		}).Info("Session closed")
		s.sink.Emit(event.Disconnected{Cause: cause, Unsolicited: unsolicited})
	})
	return err
}

// rollback releases a session whose bring-up failed. It emits nothing; the manager
// reports the failure.
func (s *Session) rollback() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.queue.Close(ErrSessionClosed)
		s.cancelSubscriptions()
		if err := s.conn.Disconnect(); err != nil {
			s.logger.WithError(err).Debug("Disconnect during rollback failed")
		}
		close(s.done)
	})
}

func (s *Session) cancelSubscriptions() {
	for _, sub := range s.subs {
		if err := sub.Cancel(); err != nil {
			s.logger.WithError(err).Debug("Failed to cancel subscription")
		}
	}
}

func (s *Session) closed() bool {
	return s.closing.Load()
}
