package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby heaters",
	Long: `Scans for advertising heaters and prints their address, name and signal
strength, strongest first.

Examples:
  craftyctl scan
  craftyctl scan --duration 10s --all`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
	scanBlock    []string
)

func init() {
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 5*time.Second, "Scan duration")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertiser, not only heaters")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Addresses to ignore")
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sc, ok := a.central.(device.Scanner)
	if !ok {
		return fmt.Errorf("BLE adapter does not support scanning")
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for heaters", "Starting", "Processing results")
	progress.Start()
	defer progress.Stop()

	results, err := scanner.NewScanner(sc, a.logger).Scan(ctx, &scanner.ScanOptions{
		Duration: scanDuration,
		Filter: device.DiscoverOptions{
			Name:     a.cfg.DeviceName,
			Services: []string{catalog.DataService},
		},
		All:       scanAll,
		BlockList: scanBlock,
	}, progress.Callback())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No heaters found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSEEN")
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d\n", r.Address, name, r.RSSI, r.Seen)
	}
	return w.Flush()
}
