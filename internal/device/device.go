package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resource names reported by NotFoundError.
const (
	ResourceDevice         = "device"
	ResourceServer         = "server"
	ResourceService        = "service"
	ResourceCharacteristic = "characteristic"
)

// NotFoundError represents a BLE resource that could not be resolved
type NotFoundError struct {
	Resource string   // one of the Resource* constants
	UUIDs    []string // e.g. [serviceUUID] or [serviceUUID, charUUID]; device name or address for device/server
	Err      error    // underlying transport error, if any
}

func (e *NotFoundError) Error() string {
	var msg string
	switch len(e.UUIDs) {
	case 0:
		msg = fmt.Sprintf("%s not found", e.Resource)
	case 1:
		msg = fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		// characteristic is in service
		msg = fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], ResourceService, e.UUIDs[0])
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError for resource. An empty resource matches any.
func IsNotFound(err error, resource string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return resource == "" || nf.Resource == resource
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// DefaultDeviceName is the advertised local name prefix of the heater.
const DefaultDeviceName = "STORZ&BICKEL"

// DiscoverOptions selects which advertisement Discover accepts.
type DiscoverOptions struct {
	// Name matches advertisements whose local name contains it (case-insensitive).
	Name string
	// Services matches advertisements that list any of these service UUIDs.
	Services []string
}

// Matches reports whether an advertisement with the given local name and services is accepted.
// Empty options accept nothing.
func (o DiscoverOptions) Matches(localName string, services []string) bool {
	if o.Name != "" && strings.Contains(strings.ToUpper(localName), strings.ToUpper(o.Name)) {
		return true
	}
	for _, want := range o.Services {
		w := NormalizeUUID(want)
		for _, got := range services {
			if NormalizeUUID(got) == w {
				return true
			}
		}
	}
	return false
}

// Advertisement is the subset of a scan result the engine needs.
type Advertisement struct {
	Name     string
	Address  string
	RSSI     int
	Services []string
}

// Central discovers and dials peripherals.
type Central interface {
	// Discover scans until the first advertisement accepted by opts or until ctx is done.
	Discover(ctx context.Context, opts DiscoverOptions) (Advertisement, error)
	// Dial opens a GATT connection to address.
	Dial(ctx context.Context, address string) (Connection, error)
}

// Scanner is implemented by centrals that can report every advertisement they see.
type Scanner interface {
	// Scan calls fn for each advertisement until ctx is done. Ending by ctx is not an error.
	Scan(ctx context.Context, fn func(Advertisement)) error
}

// Connection is an open GATT client connection.
type Connection interface {
	Address() string
	GetService(ctx context.Context, uuid string) (Service, error)
	// Disconnected is closed when the link goes down for any reason.
	Disconnected() <-chan struct{}
	// Disconnect closes the link. Safe to call more than once.
	Disconnect() error
}

// Service is a resolved GATT service.
type Service interface {
	UUID() string
	GetCharacteristic(ctx context.Context, uuid string) (Characteristic, error)
}

// Characteristic is a resolved GATT characteristic handle.
type Characteristic interface {
	UUID() string
	Properties() Properties
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withResponse bool) error
	// Subscribe enables notifications; fn may be called from a transport goroutine and
	// must not retain data after returning.
	Subscribe(fn func(data []byte)) (Subscription, error)
}

// Subscription is a cancellable notification registration.
type Subscription interface {
	// Cancel disables notifications. Safe to call more than once.
	Cancel() error
}

// Properties is the GATT characteristic property bit set.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

// Has reports whether every bit in p2 is set.
func (p Properties) Has(p2 Properties) bool {
	return p&p2 == p2
}

// CanNotify reports whether the characteristic supports notify or indicate.
func (p Properties) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

func (p Properties) String() string {
	names := []struct {
		bit  Properties
		name string
	}{
		{PropBroadcast, "Broadcast"},
		{PropRead, "Read"},
		{PropWriteWithoutResponse, "WriteWithoutResponse"},
		{PropWrite, "Write"},
		{PropNotify, "Notify"},
		{PropIndicate, "Indicate"},
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}
