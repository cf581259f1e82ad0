// Package units converts between the heater's raw temperature encoding and display units.
//
// The device reports every temperature-bearing characteristic as an unsigned
// 16-bit count of tenths of a degree Celsius. Conversion in either direction
// performs no range clamping beyond what is needed to stay inside uint16.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a display temperature unit.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

const (
	// DefaultDecimals is the display precision for live temperature, set-point and boost.
	DefaultDecimals = 1

	// BringUpDecimals is the precision used for the set-point and boost reads during connect,
	// matching the device's whole-degree granularity.
	BringUpDecimals = 0
)

// String returns "C" or "F".
func (u Unit) String() string {
	switch u {
	case Celsius:
		return "C"
	case Fahrenheit:
		return "F"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Suffix returns the unit suffix used when rendering a temperature.
func (u Unit) Suffix() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	return u == Celsius || u == Fahrenheit
}

// ParseUnit parses c, celsius, f or fahrenheit (case-insensitive).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "celsius", "°c":
		return Celsius, nil
	case "f", "fahrenheit", "°f":
		return Fahrenheit, nil
	default:
		return Celsius, fmt.Errorf("invalid unit %q (must be c or f)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("invalid unit %d", int(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// DeviceToDisplay converts a raw device reading to unit, rounded to decimals places.
func DeviceToDisplay(raw uint16, unit Unit, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))

	var v float64
	if unit == Fahrenheit {
		v = float64(raw)*0.18 + 32
	} else {
		v = float64(raw) * 0.1
	}
	return math.Round(v*scale) / scale
}

// DisplayToDevice converts a display temperature back to the raw device encoding.
// Non-finite and negative results map to 0; results above the uint16 range saturate.
func DisplayToDevice(value float64, unit Unit) uint16 {
	var raw float64
	if unit == Fahrenheit {
		raw = math.Round((value - 32) / 0.18)
	} else {
		raw = math.Round(value / 0.1)
	}

	switch {
	case math.IsNaN(raw), raw <= 0:
		return 0
	case raw >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(raw)
	}
}
