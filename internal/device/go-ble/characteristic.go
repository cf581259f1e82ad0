package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/device"
)

// Service is a resolved GATT service on a Connection.
type Service struct {
	conn *Connection
	svc  *ble.Service
	uuid string

	mu    sync.Mutex
	chars []*ble.Characteristic // nil until discovered
	cache map[string]*Characteristic
}

func (s *Service) UUID() string {
	return s.uuid
}

// GetCharacteristic resolves a characteristic of this service by UUID.
func (s *Service) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	if s.conn.closed.Load() {
		return nil, device.ErrNotConnected
	}

	want, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", uuid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := device.NormalizeUUID(uuid)
	if c, ok := s.cache[key]; ok {
		return c, nil
	}

	if s.chars == nil {
		chars, err := await(ctx, func() ([]*ble.Characteristic, error) {
			return s.conn.client.DiscoverCharacteristics(nil, s.svc)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", s.uuid, NormalizeError(err))
		}
		s.chars = chars
		s.cache = make(map[string]*Characteristic, len(chars))
	}

	for _, ch := range s.chars {
		if !ch.UUID.Equal(want) {
			continue
		}

		props := toProperties(ch.Property)
		if props.CanNotify() && ch.CCCD == nil {
			// the client configuration descriptor is needed to enable notifications
			if _, err := await(ctx, func() ([]*ble.Descriptor, error) {
				return s.conn.client.DiscoverDescriptors(nil, ch)
			}); err != nil {
				s.conn.logger.WithFields(logrus.Fields{
					"char_uuid": key,
					"error":     err,
				}).Debug("Descriptor discovery failed")
			}
		}

		c := &Characteristic{conn: s.conn, ch: ch, uuid: key, props: props}
		s.cache[key] = c
		return c, nil
	}
	return nil, &device.NotFoundError{Resource: device.ResourceCharacteristic, UUIDs: []string{s.uuid, uuid}}
}

// Characteristic is a live characteristic handle.
type Characteristic struct {
	conn  *Connection
	ch    *ble.Characteristic
	uuid  string
	props device.Properties
}

func (c *Characteristic) UUID() string {
	return c.uuid
}

func (c *Characteristic) Properties() device.Properties {
	return c.props
}

// Read reads the current value from the device.
func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if c.conn.closed.Load() {
		return nil, fmt.Errorf("read characteristic %s: %w", c.uuid, device.ErrNotConnected)
	}

	data, err := await(ctx, func() ([]byte, error) {
		return c.conn.client.ReadCharacteristic(c.ch)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, NormalizeError(err))
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write writes data to the device.
func (c *Characteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if c.conn.closed.Load() {
		return fmt.Errorf("write characteristic %s: %w", c.uuid, device.ErrNotConnected)
	}

	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, c.conn.client.WriteCharacteristic(c.ch, data, !withResponse)
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications, falling back to indications when the
// characteristic does not support notify.
func (c *Characteristic) Subscribe(fn func(data []byte)) (device.Subscription, error) {
	if c.conn.closed.Load() {
		return nil, fmt.Errorf("subscribe characteristic %s: %w", c.uuid, device.ErrNotConnected)
	}
	if !c.props.CanNotify() {
		return nil, fmt.Errorf("characteristic %s has no notify or indicate property: %w", c.uuid, device.ErrUnsupported)
	}

	ind := !c.props.Has(device.PropNotify)
	if err := c.conn.client.Subscribe(c.ch, ind, func(data []byte) {
		fn(data)
	}); err != nil {
		c.conn.logger.WithFields(logrus.Fields{
			"char_uuid": c.uuid,
			"error":     err,
		}).Error("Failed to subscribe to characteristic notifications")
		return nil, fmt.Errorf("failed to subscribe to characteristic %s: %w", c.uuid, NormalizeError(err))
	}

	s := &subscription{char: c, ind: ind}
	c.conn.track(s)

	c.conn.logger.WithField("char_uuid", c.uuid).Debug("Subscribed to characteristic notifications")
	return s, nil
}

type subscription struct {
	char *Characteristic
	ind  bool
	once sync.Once
	err  error
}

// Cancel disables notifications on the device unless the link is already gone.
func (s *subscription) Cancel() error {
	s.once.Do(func() {
		conn := s.char.conn
		conn.untrack(s)
		if conn.closed.Load() {
			return
		}
		s.err = NormalizeError(conn.client.Unsubscribe(s.char.ch, s.ind))
	})
	return s.err
}
