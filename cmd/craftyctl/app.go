package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	goble "github.com/srg/crafty/internal/device/go-ble"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/internal/session"
	"github.com/srg/crafty/pkg/config"
)

// newCentral opens the BLE radio; the returned func releases it. Tests replace it.
var newCentral = func(logger *logrus.Logger) (device.Central, func(), error) {
	c, err := goble.NewCentral(logger)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Stop() }, nil
}

// app wires config, logging, the event bus and the session manager for one command run.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *logrus.Logger
	central device.Central
	bus     *event.Bus
	manager *session.Manager
	release func()
}

func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	central, release, err := newCentral(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	bus := event.NewBus(logger)
	manager := session.NewManager(central, bus, logger,
		session.WithDiscoverOptions(device.DiscoverOptions{
			Name:     cfg.DeviceName,
			Services: []string{catalog.DataService},
		}),
		session.WithCommandTimeout(cfg.CommandTimeout),
	)

	return &app{
		cfg:     cfg,
		cfgPath: path,
		logger:  logger,
		central: central,
		bus:     bus,
		manager: manager,
		release: release,
	}, nil
}

// connect runs discovery and bring-up bounded by the scan and connect timeouts,
// showing progress on stderr.
func (a *app) connect(ctx context.Context, cmd *cobra.Command, detailed bool) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ScanTimeout+a.cfg.ConnectTimeout)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Connecting to "+a.cfg.DeviceName, phaseScanning, phaseConnected, phaseFailed)
	progress.Start()
	defer progress.Stop()

	sub := a.bus.Subscribe(0)
	defer sub.Close()
	go func() {
		sink := progress.Sink()
		for e := range sub.C() {
			sink.Emit(e)
		}
	}()

	return a.manager.Connect(ctx, session.ConnectOptions{
		Unit:     a.cfg.Unit,
		Detailed: detailed,
	})
}

// Close disconnects any session and releases the adapter.
func (a *app) Close() {
	if err := a.manager.Disconnect(); err != nil {
		a.logger.WithError(err).Debug("Disconnect failed")
	}
	a.bus.Close()
	if a.release != nil {
		a.release()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
