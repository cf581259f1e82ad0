package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/session"
	"github.com/srg/crafty/internal/units"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a heater setting",
	Long: `Changes one heater setting and waits until the device confirms it.

Temperatures are given in the configured display unit. "+" and "-" step the
current value by set_point_step / boost_step from the config file.

Examples:
  craftyctl set set-point 185
  craftyctl set set-point +
  craftyctl set boost 15
  craftyctl set led 60
  craftyctl set vibration off
  craftyctl set units f`,
}

var setPointCmd = &cobra.Command{
	Use:   "set-point <value|+|->",
	Short: "Set the target temperature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetTemperature(cmd, args[0], false)
	},
}

var setBoostCmd = &cobra.Command{
	Use:   "boost <value|+|->",
	Short: "Set the boost offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetTemperature(cmd, args[0], true)
	},
}

var setLEDCmd = &cobra.Command{
	Use:   "led <0-100>",
	Short: "Set the LED brightness",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetLED,
}

var setVibrationCmd = &cobra.Command{
	Use:       "vibration <on|off>",
	Short:     "Enable or disable vibration",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetToggle(cmd, args[0], session.SetVibration)
	},
}

var setChargeIndicatorCmd = &cobra.Command{
	Use:       "charge-indicator <on|off>",
	Short:     "Enable or disable the charge indicator LED",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetToggle(cmd, args[0], session.SetChargeIndicator)
	},
}

var setUnitsCmd = &cobra.Command{
	Use:   "units <c|f>",
	Short: "Switch the display unit and remember it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetUnits,
}

func init() {
	setCmd.AddCommand(setPointCmd)
	setCmd.AddCommand(setBoostCmd)
	setCmd.AddCommand(setLEDCmd)
	setCmd.AddCommand(setVibrationCmd)
	setCmd.AddCommand(setChargeIndicatorCmd)
	setCmd.AddCommand(setUnitsCmd)
}

// temperatureArg is an absolute value or a step of +1 / -1.
type temperatureArg struct {
	value float64
	step  int
}

func parseTemperatureArg(s string) (temperatureArg, error) {
	switch strings.TrimSpace(s) {
	case "+":
		return temperatureArg{step: 1}, nil
	case "-":
		return temperatureArg{step: -1}, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return temperatureArg{}, fmt.Errorf("invalid temperature %q: use a number, + or -", s)
	}
	return temperatureArg{value: v}, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch %q: use on or off", s)
}

// withSession connects, runs fn and disconnects.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app, s *session.Session) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()

	s, err := a.connect(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Disconnect() }()

	return fn(ctx, a, s)
}

func runSetTemperature(cmd *cobra.Command, raw string, boost bool) error {
	arg, err := parseTemperatureArg(raw)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, a *app, s *session.Session) error {
		snap := s.Snapshot()
		name, current, step := "Set-point", snap.SetPoint, a.cfg.SetPointStep
		update := s.UpdateSetPoint
		if boost {
			name, current, step = "Boost", snap.Boost, a.cfg.BoostStep
			update = s.UpdateBoost
		}

		value := arg.value
		if arg.step != 0 {
			value = snap.Display(current) + float64(arg.step)*step
		}

		if err := update(ctx, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s set to %s\n", name, formatTemperature(value, s.Unit().Suffix()))
		return nil
	})
}

func runSetLED(cmd *cobra.Command, args []string) error {
	v, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("invalid brightness %q: use 0 to 100", args[0])
	}

	return withSession(cmd, func(ctx context.Context, _ *app, s *session.Session) error {
		if err := s.UpdateLED(ctx, v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "LED brightness set to %d %%\n", v)
		return nil
	})
}

func runSetToggle(cmd *cobra.Command, raw string, apply func(uint16, bool) uint16) error {
	enabled, err := parseOnOff(raw)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, _ *app, s *session.Session) error {
		bitmask := apply(s.Snapshot().Settings, enabled)
		if err := s.UpdateSettings(ctx, bitmask); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", strings.SplitN(cmd.Use, " ", 2)[0], onOff(enabled))
		return nil
	})
}

func runSetUnits(cmd *cobra.Command, args []string) error {
	unit, err := units.ParseUnit(args[0])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, a *app, s *session.Session) error {
		if err := s.UpdateUnits(ctx, unit); err != nil {
			return err
		}

		// the unit is a UI preference; it outlives the session
		a.cfg.Unit = unit
		if err := a.cfg.Save(a.cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Display unit set to %s\n", unit.Suffix())
		return nil
	})
}
