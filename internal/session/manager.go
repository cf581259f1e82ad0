// Package session owns the lifecycle of a single GATT session with the heater:
// discovery, connection, resolution of the catalog characteristics, the initial
// bring-up reads, notification subscriptions and the serialized write commands.
//
// All device I/O after bring-up runs on one command queue, so a notification
// decode never overlaps a write. State changes leave the package only as events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/internal/units"
)

// State is the manager's connection state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultCommandTimeout bounds a single queued task.
const DefaultCommandTimeout = 10 * time.Second

// ConnectOptions configures one connect attempt.
type ConnectOptions struct {
	// Unit is the initial display unit.
	Unit units.Unit
	// Detailed also reads the diagnostics group of the catalog at bring-up.
	Detailed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithDiscoverOptions replaces the advertisement filter. The default accepts the
// heater's local name or its primary data service.
func WithDiscoverOptions(opts device.DiscoverOptions) Option {
	return func(m *Manager) { m.discover = opts }
}

// WithCommandTimeout bounds each queued task. Zero disables the bound.
func WithCommandTimeout(d time.Duration) Option {
	return func(m *Manager) { m.commandTimeout = d }
}

// Manager connects to the heater and owns at most one Session at a time.
type Manager struct {
	central        device.Central
	sink           event.Sink
	logger         *logrus.Logger
	discover       device.DiscoverOptions
	commandTimeout time.Duration

	mu      sync.Mutex
	state   State
	session *Session

	// set while Connecting
	abort       context.CancelCauseFunc
	connectDone chan struct{}
}

// NewManager creates an idle Manager. A nil sink discards events.
func NewManager(central device.Central, sink event.Sink, logger *logrus.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = event.Discard
	}

	m := &Manager{
		central: central,
		sink:    sink,
		logger:  logger,
		discover: device.DiscoverOptions{
			Name:     device.DefaultDeviceName,
			Services: []string{catalog.DataService},
		},
		commandTimeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the active session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect discovers the heater, connects, resolves and reads every catalog field and
// subscribes to notifications. ctx bounds the bring-up only, not the session.
//
// On failure everything acquired so far is released, a single Disconnected event
// carrying the error is emitted and the manager returns to Idle.
func (m *Manager) Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	if !opts.Unit.Valid() {
		return nil, invalidValue("unit %d", int(opts.Unit))
	}

	m.mu.Lock()
	if m.state != Idle {
		state := m.state
		m.mu.Unlock()
		return nil, &device.ConnectionError{State: device.AlreadyConnected, Msg: state.String()}
	}
	m.state = Connecting
	ctx, abort := context.WithCancelCause(ctx)
	done := make(chan struct{})
	m.abort, m.connectDone = abort, done
	m.mu.Unlock()

	defer close(done)
	defer abort(nil)

	m.logger.WithFields(logrus.Fields{
		"name":     m.discover.Name,
		"detailed": opts.Detailed,
		"unit":     opts.Unit.String(),
	}).Info("Connecting to heater...")
	m.sink.Emit(event.Connecting{})

	s, err := m.establish(ctx, opts)
	if errors.Is(context.Cause(ctx), ErrSessionClosed) {
		if err == nil {
			s.rollback()
			err = ErrSessionClosed
		} else {
			err = fmt.Errorf("%w: %w", ErrSessionClosed, err)
		}
	}
	if err != nil {
		m.mu.Lock()
		m.state = Idle
		m.abort, m.connectDone = nil, nil
		m.mu.Unlock()

		m.logger.WithError(err).Warn("Connect failed")
		m.sink.Emit(event.Disconnected{Cause: err})
		return nil, err
	}

	m.mu.Lock()
	m.state = Connected
	m.session = s
	m.abort, m.connectDone = nil, nil
	m.mu.Unlock()

	m.sink.Emit(event.Connected{Address: s.address})
	s.arm()

	m.logger.WithField("address", s.address).Info("Connected")
	return s, nil
}

// Disconnect tears down the active session. While Connecting it aborts the bring-up
// and waits for Connect to return; the aborted Connect fails with ErrSessionClosed.
// It is a no-op when idle.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	abort, done := m.abort, m.connectDone
	m.mu.Unlock()

	if abort != nil {
		m.logger.Info("Aborting connect")
		abort(ErrSessionClosed)
		<-done
	}

	s := m.Session()
	if s == nil {
		return nil
	}
	return s.Disconnect()
}

func (m *Manager) establish(ctx context.Context, opts ConnectOptions) (*Session, error) {
	adv, err := m.central.Discover(ctx, m.discover)
	if err != nil {
		return nil, asNotFound(device.ResourceDevice, []string{m.discover.Name}, err)
	}
	m.logger.WithFields(logrus.Fields{
		"address": adv.Address,
		"name":    adv.Name,
		"rssi":    adv.RSSI,
	}).Debug("Heater discovered")

	conn, err := m.central.Dial(ctx, adv.Address)
	if err != nil {
		return nil, asNotFound(device.ResourceServer, []string{adv.Address}, err)
	}

	s := newSession(m, conn, opts)
	if err := s.bringUp(ctx); err != nil {
		s.rollback()
		return nil, err
	}
	return s, nil
}

// detach returns the manager to Idle if s is its active session.
func (m *Manager) detach(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
		m.state = Idle
	}
}
