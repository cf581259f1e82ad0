package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
)

// Message is the JSON body published for an event.
type Message struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Label     string    `json:"label,omitempty"`
	Formatted string    `json:"formatted,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type outbound struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func topicFor(prefix, suffix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// encode maps an event to the messages to publish. Lifecycle events also update
// the retained status topic.
func encode(prefix string, e event.Event, now time.Time) ([]outbound, error) {
	msg := Message{Kind: e.Kind().String(), Timestamp: now.UTC()}
	topic := topicFor(prefix, msg.Kind)
	var out []outbound

	switch ev := e.(type) {
	case event.Connecting:
	case event.Connected:
		msg.Value = ev.Address
		out = append(out, outbound{Topic: topicFor(prefix, "status"), Payload: []byte("online"), Retained: true})
	case event.Disconnected:
		msg.Error = errString(ev.Cause)
		msg.Value = map[string]bool{"unsolicited": ev.Unsolicited}
		out = append(out, outbound{Topic: topicFor(prefix, "status"), Payload: []byte("offline"), Retained: true})
	case event.UpdatingStarted:
		msg.Label = ev.Command
	case event.UpdatingFinished:
		msg.Label = ev.Command
		msg.Error = errString(ev.Err)
	case event.CurrentTemperature:
		msg.Value, msg.Unit = ev.Value, ev.Unit.Suffix()
	case event.SetPoint:
		msg.Value, msg.Unit = ev.Value, ev.Unit.Suffix()
	case event.Boost:
		msg.Value, msg.Unit = ev.Value, ev.Unit.Suffix()
	case event.BatteryPercent:
		msg.Value, msg.Unit = ev.Value, "%"
	case event.LED:
		msg.Value, msg.Unit = ev.Value, "%"
	case event.Settings:
		msg.Value = map[string]any{
			"bitmask":          ev.Bitmask,
			"vibration":        ev.VibrationEnabled(),
			"charge_indicator": ev.ChargeIndicatorEnabled(),
		}
	case event.HoursOfOperation:
		msg.Value, msg.Unit = ev.Hours, "h"
	case event.PowerState:
		msg.Value = map[string]uint16{"power": ev.Power, "boost_heat": ev.BoostHeat, "charge": ev.Charge}
	case event.Serial:
		msg.Value = ev.Value
	case event.Model:
		msg.Value = ev.Value
	case event.FirmwareVersion:
		msg.Value = ev.Value
	case event.FieldUpdated:
		topic = topicFor(prefix, "field/"+device.ShortenUUID(ev.Descriptor.UUID))
		msg.Value = ev.Reading.Value()
		msg.Label = ev.Descriptor.Label
		msg.Formatted = ev.Formatted()
	case event.UnitChanged:
		msg.Value = ev.Unit.String()
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Kind, err)
	}
	return append([]outbound{{Topic: topic, Payload: payload}}, out...), nil
}
