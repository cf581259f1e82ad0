package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/groutine"
)

// Connection is a live go-ble client connection. Services and characteristics are
// discovered lazily on first lookup and cached for the lifetime of the connection.
type Connection struct {
	client  ble.Client
	address string
	logger  *logrus.Logger

	discoverMutex sync.Mutex
	bleServices   []*ble.Service // nil until discovered
	services      map[string]*Service

	subsMutex sync.Mutex
	subs      map[*subscription]struct{}

	closed       atomic.Bool
	disconnected chan struct{}
	dropOnce     sync.Once
	cancelOnce   sync.Once
	cancelErr    error
}

func newConnection(client ble.Client, address string, logger *logrus.Logger) *Connection {
	c := &Connection{
		client:       client,
		address:      address,
		logger:       logger,
		services:     make(map[string]*Service),
		subs:         make(map[*subscription]struct{}),
		disconnected: make(chan struct{}),
	}

	// Monitor go-ble client Disconnected() channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				if !c.closed.Load() {
					c.logger.WithField("address", c.address).Warn("Transport reported disconnection")
				}
				c.markDisconnected()
			case <-c.disconnected:
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	c.logger.WithField("address", address).Info("BLE device connected")
	return c
}

// Address returns the peer address.
func (c *Connection) Address() string {
	return c.address
}

// Disconnected is closed when the link goes down.
func (c *Connection) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *Connection) markDisconnected() {
	c.dropOnce.Do(func() {
		c.closed.Store(true)
		close(c.disconnected)
	})
}

// Disconnect unsubscribes every active notification and cancels the connection.
func (c *Connection) Disconnect() error {
	c.cancelOnce.Do(func() {
		c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")

		c.subsMutex.Lock()
		subs := make([]*subscription, 0, len(c.subs))
		for s := range c.subs {
			subs = append(subs, s)
		}
		c.subsMutex.Unlock()

		if !c.closed.Load() {
			for _, s := range subs {
				if err := s.Cancel(); err != nil {
					c.logger.WithFields(logrus.Fields{
						"char_uuid": s.char.uuid,
						"error":     err,
					}).Warn("Failed to unsubscribe during disconnect")
				}
			}
		}

		c.markDisconnected()
		c.cancelErr = NormalizeError(c.client.CancelConnection())

		if c.cancelErr != nil {
			c.logger.WithField("error", c.cancelErr).Warn("BLE device disconnected with errors")
		} else {
			c.logger.Info("BLE device disconnected successfully")
		}
	})
	return c.cancelErr
}

// GetService resolves a primary service by UUID.
func (c *Connection) GetService(ctx context.Context, uuid string) (device.Service, error) {
	if c.closed.Load() {
		return nil, device.ErrNotConnected
	}

	want, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	c.discoverMutex.Lock()
	defer c.discoverMutex.Unlock()

	key := device.NormalizeUUID(uuid)
	if svc, ok := c.services[key]; ok {
		return svc, nil
	}

	if c.bleServices == nil {
		c.logger.WithField("address", c.address).Debug("Discovering services...")
		svcs, err := await(ctx, func() ([]*ble.Service, error) {
			return c.client.DiscoverServices(nil)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
		}
		c.bleServices = svcs
		c.logger.WithField("services", len(svcs)).Debug("Services discovered")
	}

	for _, s := range c.bleServices {
		if s.UUID.Equal(want) {
			svc := &Service{conn: c, svc: s, uuid: key}
			c.services[key] = svc
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: device.ResourceService, UUIDs: []string{uuid}}
}

func (c *Connection) track(s *subscription) {
	c.subsMutex.Lock()
	c.subs[s] = struct{}{}
	c.subsMutex.Unlock()
}

func (c *Connection) untrack(s *subscription) {
	c.subsMutex.Lock()
	delete(c.subs, s)
	c.subsMutex.Unlock()
}

// await runs op in a goroutine and returns early when ctx is done.
// The transport call itself is not interrupted.
func await[T any](ctx context.Context, op func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)

	go func() {
		v, err := op()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
