// Package mqttbridge republishes session events on an MQTT broker and turns
// messages on the command topics back into session commands.
//
// Topics are rooted at the configured prefix:
//
//	<prefix>/status              "online" / "offline", retained
//	<prefix>/<event-kind>        one JSON message per event
//	<prefix>/field/<uuid>        generic catalog readings
//	<prefix>/set/<command>       inbound: set-point, boost, led, units
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/event"
	"github.com/srg/crafty/pkg/config"
)

// ClientFactory creates the MQTT client. Tests replace it.
var ClientFactory = mqtt.NewClient

const publishTimeout = 5 * time.Second

var ErrStopped = errors.New("bridge stopped")

// Bridge forwards events to MQTT.
type Bridge struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	published atomic.Uint64
	failed    atomic.Uint64
}

// New creates a bridge for cfg. It does not connect.
func New(cfg config.MQTTConfig, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Bridge{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// the broker announces us offline if we vanish
	opts.SetWill(b.topic("status"), "offline", cfg.QoS, true)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		b.setConnected(true)
		logger.WithField("broker", cfg.Broker).Info("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.setConnected(false)
		logger.WithError(err).Warn("MQTT connection lost")
	})

	b.client = ClientFactory(opts)
	return b
}

// Connect waits for the initial broker connection, honouring ctx and Stop.
func (b *Bridge) Connect(ctx context.Context) error {
	select {
	case <-b.stopCh:
		return ErrStopped
	default:
	}

	if b.IsConnected() {
		return nil
	}

	token := b.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			b.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			b.client.Disconnect(0)
			return ctx.Err()
		case <-b.stopCh:
			b.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
}

// Run publishes every event received on events until ctx is done, Stop is called or
// events is closed. Publish failures are logged and counted; they do not stop the loop.
func (b *Bridge) Run(ctx context.Context, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.Publish(e); err != nil {
				b.failed.Add(1)
				b.logger.WithError(err).WithField("kind", e.Kind().String()).Warn("Failed to publish event")
			}
		}
	}
}

// Publish sends one event.
func (b *Bridge) Publish(e event.Event) error {
	if !b.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	msgs, err := encode(b.cfg.TopicPrefix, e, time.Now())
	if err != nil {
		return err
	}

	for _, m := range msgs {
		token := b.client.Publish(m.Topic, b.cfg.QoS, m.Retained || b.cfg.Retain, m.Payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish timeout for topic %s", m.Topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", m.Topic, err)
		}
		b.published.Add(1)
		b.logger.WithFields(logrus.Fields{
			"topic": m.Topic,
			"bytes": len(m.Payload),
		}).Debug("Published event")
	}
	return nil
}

// Published returns how many messages were delivered to the broker.
func (b *Bridge) Published() uint64 { return b.published.Load() }

// Failed returns how many events could not be published.
func (b *Bridge) Failed() uint64 { return b.failed.Load() }

// IsConnected reports whether the client is connected.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	connected := b.connected
	b.mu.RUnlock()
	return connected && b.client.IsConnected()
}

// Stop publishes the offline status and closes the connection. Idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)

		if b.IsConnected() {
			token := b.client.Publish(b.topic("status"), b.cfg.QoS, true, "offline")
			token.WaitTimeout(time.Second)
		}
		b.client.Disconnect(250)
		b.setConnected(false)
		b.logger.Info("MQTT disconnected")
	})
}

func (b *Bridge) topic(suffix string) string {
	return topicFor(b.cfg.TopicPrefix, suffix)
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}
