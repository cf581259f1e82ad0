package mqttbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/groutine"
	"github.com/srg/crafty/internal/units"
)

// Commander is the subset of a session the bridge can drive.
type Commander interface {
	UpdateSetPoint(ctx context.Context, value float64) error
	UpdateBoost(ctx context.Context, value float64) error
	UpdateLED(ctx context.Context, value int) error
	UpdateUnits(ctx context.Context, unit units.Unit) error
}

const subscribeTimeout = 5 * time.Second

// Serve subscribes to <prefix>/set/+ and forwards each message to cmd. Commands run
// detached from the MQTT callback goroutine, each bounded by timeout.
func (b *Bridge) Serve(cmd Commander, timeout time.Duration) error {
	filter := b.topic("set/+")
	token := b.client.Subscribe(filter, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		name := strings.TrimPrefix(msg.Topic(), b.topic("set/"))
		payload := string(msg.Payload())

		groutine.Go(context.Background(), "mqtt-command", func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			log := b.logger.WithFields(logrus.Fields{"command": name, "payload": payload})
			if err := dispatch(ctx, cmd, name, payload); err != nil {
				log.WithError(err).Warn("MQTT command failed")
				return
			}
			log.Debug("MQTT command applied")
		})
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	b.logger.WithField("topic", filter).Info("Listening for MQTT commands")
	return nil
}

func dispatch(ctx context.Context, cmd Commander, name, payload string) error {
	payload = strings.TrimSpace(payload)

	switch name {
	case "set-point", "boost":
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", payload, err)
		}
		if name == "boost" {
			return cmd.UpdateBoost(ctx, v)
		}
		return cmd.UpdateSetPoint(ctx, v)
	case "led":
		v, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("invalid brightness %q: %w", payload, err)
		}
		return cmd.UpdateLED(ctx, v)
	case "units":
		u, err := units.ParseUnit(payload)
		if err != nil {
			return err
		}
		return cmd.UpdateUnits(ctx, u)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}
