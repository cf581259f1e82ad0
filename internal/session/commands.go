package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/internal/groutine"
	"github.com/srg/crafty/internal/queue"
	"github.com/srg/crafty/internal/units"
)

// Command names carried by the UpdatingStarted / UpdatingFinished bracket.
const (
	CommandSetPoint = "set-point"
	CommandBoost    = "boost"
	CommandLED      = "led"
	CommandSettings = "settings"
	CommandUnits    = "units"
)

// UpdateSetPoint writes a new target temperature given in the session's display unit.
func (s *Session) UpdateSetPoint(ctx context.Context, value float64) error {
	return s.command(ctx, CommandSetPoint, nil, func(ctx context.Context) error {
		return s.writeTemperature(ctx, catalog.SetPoint, value)
	})
}

// UpdateBoost writes a new boost offset given in the session's display unit.
func (s *Session) UpdateBoost(ctx context.Context, value float64) error {
	return s.command(ctx, CommandBoost, nil, func(ctx context.Context) error {
		return s.writeTemperature(ctx, catalog.Boost, value)
	})
}

// UpdateLED writes the display brightness, 0 to 100.
func (s *Session) UpdateLED(ctx context.Context, value int) error {
	if value < 0 || value > 100 {
		return invalidValue("led brightness %d out of range 0..100", value)
	}
	c, ok := s.chars[catalog.LED]
	if !ok {
		return &device.NotFoundError{
			Resource: device.ResourceCharacteristic,
			UUIDs:    []string{catalog.DataService, catalog.LED},
		}
	}

	return s.command(ctx, CommandLED, nil, func(ctx context.Context) error {
		raw := uint16(value)
		if err := c.Write(ctx, encodeUint16(raw), true); err != nil {
			return fmt.Errorf("write led brightness: %w", err)
		}
		s.sink.Emit(event.LED{Value: raw})
		return nil
	})
}

// UpdateSettings writes the settings bitmask. A call made while another settings
// write is outstanding fails with ErrSettingsBusy without being queued.
func (s *Session) UpdateSettings(ctx context.Context, bitmask uint16) error {
	if s.closed() {
		return ErrSessionClosed
	}
	if !s.settingsBusy.CompareAndSwap(false, true) {
		return ErrSettingsBusy
	}
	release := func() { s.settingsBusy.Store(false) }

	return s.command(ctx, CommandSettings, release, func(ctx context.Context) error {
		if err := s.chars[catalog.Settings].Write(ctx, encodeUint16(bitmask), true); err != nil {
			return fmt.Errorf("write settings: %w", err)
		}
		s.updateSnapshot(func(snap *Snapshot) { snap.Settings = bitmask })
		s.sink.Emit(event.Settings{Bitmask: bitmask})
		return nil
	})
}

// UpdateUnits switches the display unit. The three temperatures are read fresh from
// the device and re-emitted in the new unit before UnitChanged.
func (s *Session) UpdateUnits(ctx context.Context, unit units.Unit) error {
	if !unit.Valid() {
		return invalidValue("unit %d", int(unit))
	}

	return s.command(ctx, CommandUnits, nil, func(ctx context.Context) error {
		temps := []string{catalog.Temperature, catalog.SetPoint, catalog.Boost}
		payloads := make([][]byte, len(temps))
		for i, uuid := range temps {
			data, _, err := s.read(ctx, catalog.MustLookup(uuid))
			if err != nil {
				return err
			}
			payloads[i] = data
		}

		s.unit.Store(int32(unit))
		for i, uuid := range temps {
			s.publish(catalog.MustLookup(uuid), payloads[i], units.DefaultDecimals)
		}
		s.sink.Emit(event.UnitChanged{Unit: unit})
		return nil
	})
}

// SetVibration returns bitmask with the vibration feature switched. The bit is
// inverted: a set bit disables vibration.
func SetVibration(bitmask uint16, enabled bool) uint16 {
	return setInverted(bitmask, event.SettingVibrationOff, enabled)
}

// SetChargeIndicator returns bitmask with the charge indicator switched.
func SetChargeIndicator(bitmask uint16, enabled bool) uint16 {
	return setInverted(bitmask, event.SettingChargeIndicatorOff, enabled)
}

func setInverted(bitmask, bit uint16, enabled bool) uint16 {
	if enabled {
		return bitmask &^ bit
	}
	return bitmask | bit
}

// writeTemperature converts value with the unit current when the task runs, so a
// queued unit switch ahead of it is honoured.
func (s *Session) writeTemperature(ctx context.Context, uuid string, value float64) error {
	d := catalog.MustLookup(uuid)
	unit := s.Unit()
	raw := units.DisplayToDevice(value, unit)

	if err := s.chars[uuid].Write(ctx, encodeUint16(raw), true); err != nil {
		return fmt.Errorf("write %s: %w", d.Label, err)
	}

	display := units.DeviceToDisplay(raw, unit, units.DefaultDecimals)
	switch uuid {
	case catalog.SetPoint:
		s.updateSnapshot(func(snap *Snapshot) { snap.SetPoint = raw })
		s.sink.Emit(event.SetPoint{Value: display, Unit: unit})
	case catalog.Boost:
		s.updateSnapshot(func(snap *Snapshot) { snap.Boost = raw })
		s.sink.Emit(event.Boost{Value: display, Unit: unit})
	}
	return nil
}

// command brackets task with UpdatingStarted / UpdatingFinished and runs it on the
// queue. The bracket closes when the task completes, even if the caller stopped
// waiting; release, if set, runs just before it closes.
func (s *Session) command(ctx context.Context, name string, release func(), task queue.Task) error {
	if s.closed() {
		if release != nil {
			release()
		}
		return ErrSessionClosed
	}

	log := s.logger.WithField("command", name)
	s.sink.Emit(event.UpdatingStarted{Command: name})

	finish := func(err error) {
		if release != nil {
			release()
		}
		if err != nil {
			log.WithError(err).Error("Command failed")
		} else {
			log.Debug("Command completed")
		}
		s.sink.Emit(event.UpdatingFinished{Command: name, Err: err})
	}

	p, err := s.queue.Enqueue(name, task)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			err = ErrSessionClosed
		}
		finish(err)
		return err
	}

	select {
	case <-p.Done():
		err := p.Err()
		finish(err)
		return err
	case <-ctx.Done():
		groutine.Go(context.Background(), "command-finish", func(context.Context) {
			<-p.Done()
			finish(p.Err())
		})
		log.WithFields(logrus.Fields{"seq": p.Seq()}).Debug("Caller stopped waiting for command")
		return ctx.Err()
	}
}
