package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/queue"
	"github.com/srg/crafty/internal/units"
)

// subscribe enables notifications on every resolved catalog entry flagged Notify.
// Mandatory entries must subscribe; optional ones are best effort.
func (s *Session) subscribe() error {
	for _, d := range catalog.Notifying() {
		c, ok := s.chars[d.UUID]
		if !ok {
			continue
		}

		sub, err := c.Subscribe(s.onNotify(d))
		if err != nil {
			if d.Mandatory {
				return asNotFound(device.ResourceCharacteristic, []string{d.Service, d.UUID},
					fmt.Errorf("subscribe: %w", err))
			}
			s.logger.WithError(err).WithField("label", d.Label).Warn("Notifications unavailable")
			continue
		}
		s.subs = append(s.subs, sub)

		s.logger.WithFields(logrus.Fields{
			"uuid":  d.UUID,
			"label": d.Label,
		}).Debug("Subscribed to notifications")
	}
	return nil
}

// onNotify returns the transport callback for d. It runs on a transport goroutine, so it
// only copies the payload and queues the decode.
func (s *Session) onNotify(d catalog.Descriptor) func([]byte) {
	return func(data []byte) {
		payload := append([]byte(nil), data...)
		if _, err := s.queue.Enqueue("notify:"+d.Label, s.decodeTask(d, payload)); err != nil {
			s.logger.WithError(err).WithField("label", d.Label).Debug("Notification dropped")
		}
	}
}

// decodeTask publishes a notification payload. Power notifications re-read the whole
// triple; an empty payload falls back to a fresh read.
func (s *Session) decodeTask(d catalog.Descriptor, payload []byte) queue.Task {
	return func(ctx context.Context) error {
		if d.UUID == catalog.Power {
			return s.readPowerState(ctx)
		}
		if len(payload) == 0 {
			data, _, err := s.read(ctx, d)
			if err != nil {
				return err
			}
			payload = data
		}
		s.publish(d, payload, units.DefaultDecimals)
		return nil
	}
}
