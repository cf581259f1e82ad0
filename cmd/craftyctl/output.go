package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/srg/crafty/internal/event"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newColor(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// eventPrinter renders one line per event for the monitor command.
type eventPrinter struct {
	out   io.Writer
	now   func() time.Time
	label *color.Color
	value *color.Color
	good  *color.Color
	bad   *color.Color
	dim   *color.Color
}

func newEventPrinter(out io.Writer, noColor bool) *eventPrinter {
	colored := !noColor && isTerminal(out)
	return &eventPrinter{
		out:   out,
		now:   time.Now,
		label: newColor(colored, color.FgCyan),
		value: newColor(colored, color.Bold),
		good:  newColor(colored, color.FgGreen),
		bad:   newColor(colored, color.FgRed, color.Bold),
		dim:   newColor(colored, color.Faint),
	}
}

// Print writes e. Unknown events are ignored.
func (p *eventPrinter) Print(e event.Event) {
	label, value, ok := describe(e)
	if !ok {
		return
	}

	valueColor := p.value
	switch ev := e.(type) {
	case event.Connected:
		valueColor = p.good
	case event.Disconnected:
		if ev.Cause != nil {
			valueColor = p.bad
		}
	case event.UpdatingFinished:
		if ev.Err != nil {
			valueColor = p.bad
		}
	case event.Connecting, event.UpdatingStarted:
		valueColor = p.dim
	}

	fmt.Fprintf(p.out, "%s %s %s\n",
		p.dim.Sprint(p.now().Format("15:04:05")),
		p.label.Sprintf("%-20s", label),
		valueColor.Sprint(value))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatTemperature(v float64, suffix string) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + suffix
}

// describe returns the label and value text of an event.
func describe(e event.Event) (label, value string, ok bool) {
	switch ev := e.(type) {
	case event.Connecting:
		return "connection", "connecting...", true
	case event.Connected:
		return "connection", "connected to " + ev.Address, true
	case event.Disconnected:
		if ev.Cause != nil {
			return "connection", "disconnected: " + FormatUserError(ev.Cause), true
		}
		return "connection", "disconnected", true
	case event.UpdatingStarted:
		return ev.Command, "updating...", true
	case event.UpdatingFinished:
		if ev.Err != nil {
			return ev.Command, "failed: " + FormatUserError(ev.Err), true
		}
		return ev.Command, "done", true
	case event.CurrentTemperature:
		return "temperature", formatTemperature(ev.Value, ev.Unit.Suffix()), true
	case event.SetPoint:
		return "set-point", formatTemperature(ev.Value, ev.Unit.Suffix()), true
	case event.Boost:
		return "boost", "+" + formatTemperature(ev.Value, ev.Unit.Suffix()), true
	case event.BatteryPercent:
		return "battery", fmt.Sprintf("%d %%", ev.Value), true
	case event.LED:
		return "led", fmt.Sprintf("%d %%", ev.Value), true
	case event.Settings:
		return "settings", fmt.Sprintf("vibration %s, charge indicator %s",
			onOff(ev.VibrationEnabled()), onOff(ev.ChargeIndicatorEnabled())), true
	case event.HoursOfOperation:
		return "hours of operation", fmt.Sprintf("%d h", ev.Hours), true
	case event.PowerState:
		return "power", fmt.Sprintf("heater %s, boost %s, charging %s",
			onOff(ev.Power != 0), onOff(ev.BoostHeat != 0), onOff(ev.Charge != 0)), true
	case event.Serial:
		return "serial", ev.Value, true
	case event.Model:
		return "model", ev.Value, true
	case event.FirmwareVersion:
		return "firmware", ev.Value, true
	case event.FieldUpdated:
		return ev.Descriptor.Label, ev.Formatted(), true
	case event.UnitChanged:
		return "unit", ev.Unit.Suffix(), true
	}
	return "", "", false
}
