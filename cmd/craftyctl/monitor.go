package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/groutine"
	"github.com/srg/crafty/internal/session"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream live readings from the heater",
	Long: `Connects to the heater and prints every reading as it changes until
Ctrl+C is pressed or the connection drops.

Examples:
  # Follow temperature, set-point, battery and power state
  craftyctl monitor

  # Include battery and runtime diagnostics, stop after a minute
  craftyctl monitor --detailed --duration 1m`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var (
	monitorDetailed bool
	monitorNoColor  bool
	monitorDuration time.Duration
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorDetailed, "detailed", false, "Also read diagnostic characteristics")
	monitorCmd.Flags().BoolVar(&monitorNoColor, "no-color", false, "Disable colored output")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()
	if monitorDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	printer := newEventPrinter(cmd.OutOrStdout(), monitorNoColor)
	sub := a.bus.Subscribe(256)
	printed := groutine.Go(ctx, "monitor-print", func(context.Context) {
		for e := range sub.C() {
			printer.Print(e)
		}
	})
	defer func() {
		sub.Close()
		<-printed
	}()

	s, err := a.connect(ctx, cmd, monitorDetailed)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Monitoring. Press Ctrl+C to stop...")

	select {
	case <-ctx.Done():
		return s.Disconnect()
	case <-s.Done():
		if err := s.Err(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			return err
		}
		return nil
	}
}
