package event

import (
	"fmt"

	"github.com/srg/crafty/internal/units"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// State is the consumer-side view of the heater, built by folding events with Reduce.
type State struct {
	Connecting bool
	Connected  bool
	Address    string
	LastError  error

	// Pending counts write commands between UpdatingStarted and UpdatingFinished.
	Pending int

	Unit               units.Unit
	CurrentTemperature float64
	SetPoint           float64
	Boost              float64

	Battery          uint16
	LED              uint16
	HasLED           bool
	Settings         uint16
	HoursOfOperation uint16
	Power            uint16
	BoostHeat        uint16
	Charge           uint16

	Serial          string
	Model           string
	FirmwareVersion string

	// Info holds generic catalog readings keyed by characteristic UUID in arrival order.
	// Reduce never mutates a map it was given.
	Info *orderedmap.OrderedMap[string, FieldUpdated]
}

// Updating reports whether any write command is in flight.
func (s State) Updating() bool {
	return s.Pending > 0
}

// VibrationEnabled reports the inverted bit 0 of the settings bitmask.
func (s State) VibrationEnabled() bool {
	return Settings{Bitmask: s.Settings}.VibrationEnabled()
}

// ChargeIndicatorEnabled reports the inverted bit 1 of the settings bitmask.
func (s State) ChargeIndicatorEnabled() bool {
	return Settings{Bitmask: s.Settings}.ChargeIndicatorEnabled()
}

// Reduce returns the state after applying e. It is a pure function of its inputs.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case Connecting:
		unit := s.Unit
		s = State{Connecting: true, Unit: unit}
	case Connected:
		s.Connecting = false
		s.Connected = true
		s.Address = ev.Address
	case Disconnected:
		// device data does not outlive the session; the unit is a preference
		s = State{Unit: s.Unit, LastError: ev.Cause}
	case UpdatingStarted:
		s.Pending++
	case UpdatingFinished:
		if s.Pending > 0 {
			s.Pending--
		}
		if ev.Err != nil {
			s.LastError = fmt.Errorf("%s: %w", ev.Command, ev.Err)
		}
	case CurrentTemperature:
		s.CurrentTemperature, s.Unit = ev.Value, ev.Unit
	case SetPoint:
		s.SetPoint, s.Unit = ev.Value, ev.Unit
	case Boost:
		s.Boost, s.Unit = ev.Value, ev.Unit
	case BatteryPercent:
		s.Battery = ev.Value
	case LED:
		s.LED, s.HasLED = ev.Value, true
	case Settings:
		s.Settings = ev.Bitmask
	case HoursOfOperation:
		s.HoursOfOperation = ev.Hours
	case PowerState:
		s.Power, s.BoostHeat, s.Charge = ev.Power, ev.BoostHeat, ev.Charge
	case Serial:
		s.Serial = ev.Value
	case Model:
		s.Model = ev.Value
	case FirmwareVersion:
		s.FirmwareVersion = ev.Value
	case FieldUpdated:
		info := orderedmap.New[string, FieldUpdated]()
		if s.Info != nil {
			for p := s.Info.Oldest(); p != nil; p = p.Next() {
				info.Set(p.Key, p.Value)
			}
		}
		info.Set(ev.Descriptor.UUID, ev)
		s.Info = info
	case UnitChanged:
		s.Unit = ev.Unit
	}
	return s
}
