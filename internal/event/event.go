// Package event defines the closed set of state-change events emitted by the session
// engine and the plumbing used to deliver them to consumers.
//
// Every event type implements Event through an unexported marker method, so the set
// cannot be extended outside this package and consumers can switch over it exhaustively.
package event

import (
	"strconv"

	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/units"
)

// Kind identifies an event type.
type Kind int

const (
	KindConnecting Kind = iota
	KindConnected
	KindDisconnected
	KindUpdatingStarted
	KindUpdatingFinished
	KindCurrentTemperature
	KindSetPoint
	KindBoost
	KindBatteryPercent
	KindLED
	KindSettings
	KindHoursOfOperation
	KindPowerState
	KindSerial
	KindModel
	KindFirmwareVersion
	KindFieldUpdated
	KindUnitChanged
)

var kindNames = [...]string{
	KindConnecting:         "connecting",
	KindConnected:          "connected",
	KindDisconnected:       "disconnected",
	KindUpdatingStarted:    "updating-started",
	KindUpdatingFinished:   "updating-finished",
	KindCurrentTemperature: "current-temperature",
	KindSetPoint:           "set-point",
	KindBoost:              "boost",
	KindBatteryPercent:     "battery-percent",
	KindLED:                "led",
	KindSettings:           "settings",
	KindHoursOfOperation:   "hours-of-operation",
	KindPowerState:         "power-state",
	KindSerial:             "serial",
	KindModel:              "model",
	KindFirmwareVersion:    "firmware-version",
	KindFieldUpdated:       "field-updated",
	KindUnitChanged:        "unit-changed",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Event is a single state change.
type Event interface {
	Kind() Kind
	event()
}

// Settings bitmask bits. A set bit disables the feature.
const (
	SettingVibrationOff       uint16 = 1 << 0
	SettingChargeIndicatorOff uint16 = 1 << 1
)

type (
	// Connecting is emitted when a connect attempt starts.
	Connecting struct{}

	// Connected is emitted once bring-up completes.
	Connected struct {
		Address string
	}

	// Disconnected is the terminal event of a session or of a failed connect.
	// Cause is nil for an explicit disconnect.
	Disconnected struct {
		Cause       error
		Unsolicited bool
	}

	// UpdatingStarted opens the bracket around a write command.
	UpdatingStarted struct {
		Command string
	}

	// UpdatingFinished closes the bracket; Err is the command's outcome.
	UpdatingFinished struct {
		Command string
		Err     error
	}

	CurrentTemperature struct {
		Value float64
		Unit  units.Unit
	}

	SetPoint struct {
		Value float64
		Unit  units.Unit
	}

	Boost struct {
		Value float64
		Unit  units.Unit
	}

	BatteryPercent struct {
		Value uint16
	}

	// LED is the display brightness, 0 to 100.
	LED struct {
		Value uint16
	}

	// Settings carries the raw settings bitmask.
	Settings struct {
		Bitmask uint16
	}

	HoursOfOperation struct {
		Hours uint16
	}

	// PowerState is the power / boost-heat / charge triple.
	PowerState struct {
		Power     uint16
		BoostHeat uint16
		Charge    uint16
	}

	Serial struct {
		Value string
	}

	Model struct {
		Value string
	}

	FirmwareVersion struct {
		Value string
	}

	// FieldUpdated carries a generic catalog reading.
	FieldUpdated struct {
		Descriptor catalog.Descriptor
		Reading    Reading
	}

	// UnitChanged is emitted after a unit switch has re-emitted every temperature.
	UnitChanged struct {
		Unit units.Unit
	}
)

func (Connecting) Kind() Kind         { return KindConnecting }
func (Connected) Kind() Kind          { return KindConnected }
func (Disconnected) Kind() Kind       { return KindDisconnected }
func (UpdatingStarted) Kind() Kind    { return KindUpdatingStarted }
func (UpdatingFinished) Kind() Kind   { return KindUpdatingFinished }
func (CurrentTemperature) Kind() Kind { return KindCurrentTemperature }
func (SetPoint) Kind() Kind           { return KindSetPoint }
func (Boost) Kind() Kind              { return KindBoost }
func (BatteryPercent) Kind() Kind     { return KindBatteryPercent }
func (LED) Kind() Kind                { return KindLED }
func (Settings) Kind() Kind           { return KindSettings }
func (HoursOfOperation) Kind() Kind   { return KindHoursOfOperation }
func (PowerState) Kind() Kind         { return KindPowerState }
func (Serial) Kind() Kind             { return KindSerial }
func (Model) Kind() Kind              { return KindModel }
func (FirmwareVersion) Kind() Kind    { return KindFirmwareVersion }
func (FieldUpdated) Kind() Kind       { return KindFieldUpdated }
func (UnitChanged) Kind() Kind        { return KindUnitChanged }

func (Connecting) event()         {}
func (Connected) event()          {}
func (Disconnected) event()       {}
func (UpdatingStarted) event()    {}
func (UpdatingFinished) event()   {}
func (CurrentTemperature) event() {}
func (SetPoint) event()           {}
func (Boost) event()              {}
func (BatteryPercent) event()     {}
func (LED) event()                {}
func (Settings) event()           {}
func (HoursOfOperation) event()   {}
func (PowerState) event()         {}
func (Serial) event()             {}
func (Model) event()              {}
func (FirmwareVersion) event()    {}
func (FieldUpdated) event()       {}
func (UnitChanged) event()        {}

// VibrationEnabled is the negation of bit 0.
func (s Settings) VibrationEnabled() bool {
	return s.Bitmask&SettingVibrationOff == 0
}

// ChargeIndicatorEnabled is the negation of bit 1.
func (s Settings) ChargeIndicatorEnabled() bool {
	return s.Bitmask&SettingChargeIndicatorOff == 0
}

// Reading is a decoded characteristic value.
type Reading struct {
	Kind catalog.Kind
	Raw  uint16 // Numeric readings
	Text string // Text readings
}

// NumericReading returns a Numeric reading.
func NumericReading(v uint16) Reading {
	return Reading{Kind: catalog.Numeric, Raw: v}
}

// TextReading returns a Text reading.
func TextReading(s string) Reading {
	return Reading{Kind: catalog.Text, Text: s}
}

// Value returns the reading as uint16 or string.
func (r Reading) Value() any {
	if r.Kind == catalog.Text {
		return r.Text
	}
	return r.Raw
}

// Formatted renders the reading with the descriptor's divider and suffix.
func (f FieldUpdated) Formatted() string {
	return f.Descriptor.Format(f.Reading.Value())
}
