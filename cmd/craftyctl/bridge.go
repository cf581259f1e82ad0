package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/crafty/internal/groutine"
	"github.com/srg/crafty/internal/mqttbridge"
	"github.com/srg/crafty/internal/session"
	"github.com/srg/crafty/internal/units"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Publish heater events to an MQTT broker",
	Long: `Connects to the heater and the MQTT broker from the config file, publishes
every event under <topic_prefix>/<event> and applies commands received on
<topic_prefix>/set/{set-point,boost,led,units}.

Examples:
  craftyctl bridge
  craftyctl bridge --broker tcp://10.0.0.2:1883 --reconnect`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

var (
	bridgeBroker    string
	bridgeReconnect bool
	bridgeRetry     time.Duration
)

func init() {
	bridgeCmd.Flags().StringVar(&bridgeBroker, "broker", "", "Broker URL (overrides mqtt.broker)")
	bridgeCmd.Flags().BoolVar(&bridgeReconnect, "reconnect", false, "Reconnect to the heater after a drop")
	bridgeCmd.Flags().DurationVar(&bridgeRetry, "retry", 5*time.Second, "Delay between heater reconnect attempts")
}

// liveSession routes MQTT commands to whichever session is currently connected.
type liveSession struct {
	manager *session.Manager
}

func (l liveSession) current() (*session.Session, error) {
	if s := l.manager.Session(); s != nil {
		return s, nil
	}
	return nil, session.ErrSessionClosed
}

func (l liveSession) UpdateSetPoint(ctx context.Context, v float64) error {
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.UpdateSetPoint(ctx, v)
}

func (l liveSession) UpdateBoost(ctx context.Context, v float64) error {
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.UpdateBoost(ctx, v)
}

func (l liveSession) UpdateLED(ctx context.Context, v int) error {
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.UpdateLED(ctx, v)
}

func (l liveSession) UpdateUnits(ctx context.Context, u units.Unit) error {
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.UpdateUnits(ctx, u)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.SilenceUsage = true

	mqttCfg := a.cfg.MQTT
	if bridgeBroker != "" {
		mqttCfg.Broker = bridgeBroker
	}

	ctx, cancel := signalContext()
	defer cancel()

	b := mqttbridge.New(mqttCfg, a.logger)
	if err := b.Connect(ctx); err != nil {
		return err
	}
	defer b.Stop()

	sub := a.bus.Subscribe(1024)
	defer sub.Close()
	published := groutine.Go(context.Background(), "mqtt-publish", func(ctx context.Context) {
		_ = b.Run(ctx, sub.C())
	})

	if err := b.Serve(liveSession{manager: a.manager}, a.cfg.CommandTimeout); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Bridging to %s. Press Ctrl+C to stop...\n", mqttCfg.Broker)

	err = bridgeLoop(ctx, cmd, a)

	// let the final Disconnected reach the broker
	sub.Close()
	<-published
	return err
}

// bridgeLoop keeps a session up until ctx ends, reconnecting after drops when asked to.
func bridgeLoop(ctx context.Context, cmd *cobra.Command, a *app) error {
	for {
		s, err := a.connect(ctx, cmd, a.cfg.Detailed)
		if err == nil {
			select {
			case <-ctx.Done():
				return s.Disconnect()
			case <-s.Done():
				err = s.Err()
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		if !bridgeReconnect {
			return err
		}
		if err != nil && !errors.Is(err, session.ErrConnectionLost) {
			a.logger.WithError(err).Warn("Heater connect failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(bridgeRetry):
		}
	}
}
