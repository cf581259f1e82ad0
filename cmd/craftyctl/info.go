package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/event"
)

// serialDigits is how much of the serial number the device screen shows.
const serialDigits = 8

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device information and current state",
	Long: `Connects to the heater, reads every supported characteristic once and
prints device identity, current state and diagnostics.

Examples:
  craftyctl info
  craftyctl info --brief`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

var infoBrief bool

func init() {
	infoCmd.Flags().BoolVar(&infoBrief, "brief", false, "Skip the diagnostic characteristics")
}

func runInfo(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()

	sub := a.bus.Subscribe(512)
	defer sub.Close()

	s, err := a.connect(ctx, cmd, !infoBrief)
	if err != nil {
		return err
	}

	// Connected is emitted before Connect returns, so the bring-up is fully buffered.
	var state event.State
	for e := range sub.C() {
		state = event.Reduce(state, e)
		if _, ok := e.(event.Connected); ok {
			break
		}
	}

	printInfo(cmd.OutOrStdout(), state)
	return s.Disconnect()
}

func printInfo(w io.Writer, st event.State) {
	row := func(label, value string) {
		fmt.Fprintf(w, "  %-20s %s\n", label, value)
	}
	suffix := st.Unit.Suffix()

	fmt.Fprintln(w, "Device")
	row("Address", st.Address)
	row("Model", st.Model)
	row("Serial", shortSerial(st.Serial))
	row("Firmware", st.FirmwareVersion)

	fmt.Fprintln(w, "State")
	row("Temperature", formatTemperature(st.CurrentTemperature, suffix))
	row("Set-point", formatTemperature(st.SetPoint, suffix))
	row("Boost", "+"+formatTemperature(st.Boost, suffix))
	row("Battery", fmt.Sprintf("%d %%", st.Battery))
	if st.HasLED {
		row("LED", fmt.Sprintf("%d %%", st.LED))
	}
	row("Heater", onOff(st.Power != 0))
	row("Boost heat", onOff(st.BoostHeat != 0))
	row("Charging", onOff(st.Charge != 0))
	row("Vibration", onOff(st.VibrationEnabled()))
	row("Charge indicator", onOff(st.ChargeIndicatorEnabled()))
	row("Hours of operation", fmt.Sprintf("%d h", st.HoursOfOperation))

	printGroup(w, st, catalog.GroupBattery, "Battery")
	printGroup(w, st, catalog.GroupDiagnostics, "Diagnostics")
}

// printGroup prints the generic readings of one catalog group under title. Nothing is
// printed when the group has no readings.
func printGroup(w io.Writer, st event.State, group catalog.Group, title string) {
	if st.Info == nil {
		return
	}
	header := false
	for p := st.Info.Oldest(); p != nil; p = p.Next() {
		d := p.Value.Descriptor
		if d.Group != group {
			continue
		}
		if !header {
			fmt.Fprintln(w, title)
			header = true
		}
		fmt.Fprintf(w, "  %-20s %s\n", d.Label, p.Value.Formatted())
	}
}

func shortSerial(serial string) string {
	r := []rune(serial)
	if len(r) <= serialDigits {
		return serial
	}
	return string(r[:serialDigits])
}
