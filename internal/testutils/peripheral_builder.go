package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/srg/crafty/internal/device"
)

// CharacteristicConfig represents a GATT characteristic of the fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a GATT service of the fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile
type DeviceProfileConfig struct {
	Name     string          `json:"name,omitempty"`
	Address  string          `json:"address,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// CharOption tunes the behaviour of a single fake characteristic.
type CharOption func(*fakeCharacteristic)

// WithReadError makes every read of the characteristic fail with err.
func WithReadError(err error) CharOption {
	return func(c *fakeCharacteristic) { c.readErr = err }
}

// WithWriteError makes every write to the characteristic fail with err.
func WithWriteError(err error) CharOption {
	return func(c *fakeCharacteristic) { c.writeErr = err }
}

// WithSubscribeError makes Subscribe on the characteristic fail with err.
func WithSubscribeError(err error) CharOption {
	return func(c *fakeCharacteristic) { c.subscribeErr = err }
}

// WithDelay delays every read and write of the characteristic.
func WithDelay(d time.Duration) CharOption {
	return func(c *fakeCharacteristic) { c.delay = d }
}

// WithWriteHook runs fn inside every write, before the value is stored.
// A non-nil error fails the write.
func WithWriteHook(fn func(data []byte) error) CharOption {
	return func(c *fakeCharacteristic) { c.writeHook = fn }
}

// PeripheralBuilder builds an in-memory peripheral implementing device.Central
type PeripheralBuilder struct {
	profile     DeviceProfileConfig
	charOpts    map[string][]CharOption
	discoverErr error
	dialErr     error
	ioDelay     time.Duration
	neighbours  []device.Advertisement
}

// NewPeripheralBuilder creates an empty peripheral builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: DeviceProfileConfig{
			Name:     device.DefaultDeviceName,
			Address:  DefaultAddress,
			Services: []ServiceConfig{},
		},
		charOpts: make(map[string][]CharOption),
	}
}

// DefaultAddress is the address of peripherals built without WithAddress.
const DefaultAddress = "AA:BB:CC:DD:EE:FF"

// WithName sets the advertised local name
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.profile.Name = name
	return b
}

// WithAddress sets the peripheral address
func (b *PeripheralBuilder) WithAddress(address string) *PeripheralBuilder {
	b.profile.Address = address
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte, opts ...CharOption) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	if len(opts) > 0 {
		key := device.NormalizeUUID(uuid)
		b.charOpts[key] = append(b.charOpts[key], opts...)
	}
	return b
}

// WithCharacteristicOptions applies opts to an already configured characteristic
func (b *PeripheralBuilder) WithCharacteristicOptions(uuid string, opts ...CharOption) *PeripheralBuilder {
	key := device.NormalizeUUID(uuid)
	b.charOpts[key] = append(b.charOpts[key], opts...)
	return b
}

// WithValue replaces the initial value of an already configured characteristic
func (b *PeripheralBuilder) WithValue(uuid string, value []byte) *PeripheralBuilder {
	key := device.NormalizeUUID(uuid)
	for i := range b.profile.Services {
		for j := range b.profile.Services[i].Characteristics {
			if device.NormalizeUUID(b.profile.Services[i].Characteristics[j].UUID) == key {
				b.profile.Services[i].Characteristics[j].Value = value
				return b
			}
		}
	}
	panic(fmt.Sprintf("WithValue: characteristic %s is not configured", uuid))
}

// WithoutCharacteristic removes a characteristic from every service
func (b *PeripheralBuilder) WithoutCharacteristic(uuid string) *PeripheralBuilder {
	key := device.NormalizeUUID(uuid)
	for i := range b.profile.Services {
		chars := b.profile.Services[i].Characteristics[:0]
		for _, c := range b.profile.Services[i].Characteristics {
			if device.NormalizeUUID(c.UUID) != key {
				chars = append(chars, c)
			}
		}
		b.profile.Services[i].Characteristics = chars
	}
	return b
}

// WithoutService removes a service and its characteristics
func (b *PeripheralBuilder) WithoutService(uuid string) *PeripheralBuilder {
	key := device.NormalizeUUID(uuid)
	svcs := b.profile.Services[:0]
	for _, s := range b.profile.Services {
		if device.NormalizeUUID(s.UUID) != key {
			svcs = append(svcs, s)
		}
	}
	b.profile.Services = svcs
	return b
}

// WithDiscoverError makes Discover fail with err
func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

// WithDialError makes Dial fail with err
func (b *PeripheralBuilder) WithDialError(err error) *PeripheralBuilder {
	b.dialErr = err
	return b
}

// WithIODelay delays every characteristic read and write
func (b *PeripheralBuilder) WithIODelay(d time.Duration) *PeripheralBuilder {
	b.ioDelay = d
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.Name == "" {
		config.Name = b.profile.Name
	}
	if config.Address == "" {
		config.Address = b.profile.Address
	}

	b.profile = config
	return b
}

// Profile returns the configured profile
func (b *PeripheralBuilder) Profile() DeviceProfileConfig {
	return b.profile
}

// Build creates the peripheral with the configured profile
// WithNeighbours adds other advertisers that Scan reports alongside the peripheral.
func (b *PeripheralBuilder) WithNeighbours(advs ...device.Advertisement) *PeripheralBuilder {
	b.neighbours = append(b.neighbours, advs...)
	return b
}

func (b *PeripheralBuilder) Build() *Peripheral {
	p := &Peripheral{
		name:        b.profile.Name,
		address:     b.profile.Address,
		discoverErr: b.discoverErr,
		dialErr:     b.dialErr,
		neighbours:  append([]device.Advertisement(nil), b.neighbours...),
		chars:       make(map[string]*fakeCharacteristic),
	}

	for _, svcConfig := range b.profile.Services {
		svc := &fakeService{p: p, uuid: device.NormalizeUUID(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			c := &fakeCharacteristic{
				p:     p,
				uuid:  device.NormalizeUUID(charConfig.UUID),
				props: ParseProperties(charConfig.Properties),
				value: append([]byte(nil), charConfig.Value...),
				delay: b.ioDelay,
				subs:  make(map[int]func([]byte)),
			}
			for _, opt := range b.charOpts[c.uuid] {
				opt(c)
			}
			svc.chars = append(svc.chars, c)
			p.chars[c.uuid] = c
		}
		p.services = append(p.services, svc)
	}
	return p
}

// ParseProperties converts a comma-separated property list to device.Properties.
// An empty string means read, write and notify.
func ParseProperties(props string) device.Properties {
	if strings.TrimSpace(props) == "" {
		return device.PropRead | device.PropWrite | device.PropNotify
	}

	var p device.Properties
	for _, part := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "broadcast":
			p |= device.PropBroadcast
		case "read":
			p |= device.PropRead
		case "write-without-response", "writewithoutresponse":
			p |= device.PropWriteWithoutResponse
		case "write":
			p |= device.PropWrite
		case "notify":
			p |= device.PropNotify
		case "indicate":
			p |= device.PropIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", part))
		}
	}
	return p
}
