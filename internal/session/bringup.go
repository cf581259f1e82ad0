package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/internal/units"
)

var (
	bringUpServices = []string{catalog.DataService, catalog.MetaService, catalog.MiscService}

	primaryFields = []string{catalog.Temperature, catalog.SetPoint, catalog.Boost, catalog.LED, catalog.Battery}
	metaFields    = []string{catalog.Serial, catalog.Model, catalog.FirmwareVersion}
	miscFields    = []string{catalog.Settings, catalog.HoursOfOperation}
	powerFields   = []string{catalog.Power, catalog.BoostHeat, catalog.Charge}
)

// bringUp resolves the services and characteristics, performs the initial reads and
// subscribes to notifications. Every step that fails aborts the whole sequence.
func (s *Session) bringUp(ctx context.Context) error {
	for _, uuid := range bringUpServices {
		svc, err := s.conn.GetService(ctx, uuid)
		if err != nil {
			return asNotFound(device.ResourceService, []string{uuid}, err)
		}
		s.services[uuid] = svc
		s.logger.WithField("service", uuid).Debug("Service resolved")
	}

	// primary data: set-point and boost are shown at device granularity until the first change
	if err := s.readFields(ctx, primaryFields, units.BringUpDecimals); err != nil {
		return err
	}
	if err := s.readFields(ctx, metaFields, units.DefaultDecimals); err != nil {
		return err
	}
	if err := s.readFields(ctx, miscFields, units.DefaultDecimals); err != nil {
		return err
	}
	if err := s.resolveAll(ctx, powerFields); err != nil {
		return err
	}
	if err := s.readPowerState(ctx); err != nil {
		return err
	}

	if err := s.readExtras(ctx); err != nil {
		return err
	}

	return s.subscribe()
}

// resolve looks up a catalog characteristic and remembers its handle. A missing
// optional characteristic yields (nil, nil).
func (s *Session) resolve(ctx context.Context, uuid string) (device.Characteristic, error) {
	d := catalog.MustLookup(uuid)
	if c, ok := s.chars[d.UUID]; ok {
		return c, nil
	}

	svc, ok := s.services[d.Service]
	if !ok {
		return nil, &device.NotFoundError{Resource: device.ResourceService, UUIDs: []string{d.Service}}
	}

	c, err := svc.GetCharacteristic(ctx, d.UUID)
	if err != nil {
		if !d.Mandatory && device.IsNotFound(err, device.ResourceCharacteristic) {
			s.logger.WithFields(logrus.Fields{
				"uuid":  d.UUID,
				"label": d.Label,
			}).Debug("Optional characteristic not present")
			return nil, nil
		}
		return nil, asNotFound(device.ResourceCharacteristic, []string{d.Service, d.UUID}, err)
	}

	s.chars[d.UUID] = c
	return c, nil
}

func (s *Session) resolveAll(ctx context.Context, uuids []string) error {
	for _, uuid := range uuids {
		if _, err := s.resolve(ctx, uuid); err != nil {
			return err
		}
	}
	return nil
}

// readFields resolves every field first, then reads and publishes them in order.
// A failed read of an optional field is logged and skipped.
func (s *Session) readFields(ctx context.Context, uuids []string, decimals int) error {
	if err := s.resolveAll(ctx, uuids); err != nil {
		return err
	}
	for _, uuid := range uuids {
		d := catalog.MustLookup(uuid)
		data, ok, err := s.read(ctx, d)
		if err != nil {
			if d.Mandatory || ctx.Err() != nil {
				return err
			}
			s.logger.WithError(err).WithField("label", d.Label).Warn("Skipping unreadable optional characteristic")
			continue
		}
		if ok {
			s.publish(d, data, decimals)
		}
	}
	return nil
}

// readExtras reads the catalog entries outside the fixed bring-up set. They are all
// optional; a failed read is logged and skipped.
func (s *Session) readExtras(ctx context.Context) error {
	for _, d := range catalog.Extras(s.detailed) {
		c, err := s.resolve(ctx, d.UUID)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}

		data, _, err := s.read(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.WithError(err).WithField("label", d.Label).Warn("Skipping unreadable characteristic")
			continue
		}
		s.publish(d, data, units.DefaultDecimals)
	}
	return nil
}

// read returns the value of a resolved characteristic; ok is false if it was not resolved.
func (s *Session) read(ctx context.Context, d catalog.Descriptor) ([]byte, bool, error) {
	c, ok := s.chars[d.UUID]
	if !ok {
		return nil, false, nil
	}
	data, err := c.Read(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", d.Label, err)
	}
	s.logger.WithFields(logrus.Fields{
		"uuid":  d.UUID,
		"label": d.Label,
		"bytes": len(data),
	}).Debug("Characteristic read")
	return data, true, nil
}

// readPowerState reads the power / boost-heat / charge triple and emits it as one event.
func (s *Session) readPowerState(ctx context.Context) error {
	var vals [3]uint16
	for i, uuid := range powerFields {
		d := catalog.MustLookup(uuid)
		data, _, err := s.read(ctx, d)
		if err != nil {
			return err
		}
		v, err := decodeUint16(data)
		if err != nil {
			s.logger.WithError(err).WithField("label", d.Label).Warn("Dropping undecodable power state")
			return nil
		}
		vals[i] = v
	}
	s.sink.Emit(event.PowerState{Power: vals[0], BoostHeat: vals[1], Charge: vals[2]})
	return nil
}

// publish decodes data for d and emits the matching event. Undecodable payloads are
// logged and dropped.
func (s *Session) publish(d catalog.Descriptor, data []byte, decimals int) {
	if d.Kind == catalog.Text {
		text := decodeText(data)
		switch d.UUID {
		case catalog.Serial:
			s.sink.Emit(event.Serial{Value: text})
		case catalog.Model:
			s.sink.Emit(event.Model{Value: text})
		case catalog.FirmwareVersion:
			s.sink.Emit(event.FirmwareVersion{Value: text})
		default:
			s.sink.Emit(event.FieldUpdated{Descriptor: d, Reading: event.TextReading(text)})
		}
		return
	}

	raw, err := decodeUint16(data)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"uuid":  d.UUID,
			"label": d.Label,
		}).Warn("Dropping undecodable value")
		return
	}

	unit := s.Unit()
	switch d.UUID {
	case catalog.Temperature:
		s.updateSnapshot(func(snap *Snapshot) { snap.Temperature = raw })
		s.sink.Emit(event.CurrentTemperature{Value: units.DeviceToDisplay(raw, unit, units.DefaultDecimals), Unit: unit})
	case catalog.SetPoint:
		s.updateSnapshot(func(snap *Snapshot) { snap.SetPoint = raw })
		s.sink.Emit(event.SetPoint{Value: units.DeviceToDisplay(raw, unit, decimals), Unit: unit})
	case catalog.Boost:
		s.updateSnapshot(func(snap *Snapshot) { snap.Boost = raw })
		s.sink.Emit(event.Boost{Value: units.DeviceToDisplay(raw, unit, decimals), Unit: unit})
	case catalog.Battery:
		s.sink.Emit(event.BatteryPercent{Value: raw})
	case catalog.LED:
		s.sink.Emit(event.LED{Value: raw})
	case catalog.Settings:
		s.updateSnapshot(func(snap *Snapshot) { snap.Settings = raw })
		s.sink.Emit(event.Settings{Bitmask: raw})
	case catalog.HoursOfOperation:
		s.sink.Emit(event.HoursOfOperation{Hours: raw})
	default:
		s.sink.Emit(event.FieldUpdated{Descriptor: d, Reading: event.NumericReading(raw)})
	}
}
