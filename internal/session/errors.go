package session

import (
	"errors"
	"fmt"

	"github.com/srg/crafty/internal/device"
)

var (
	// ErrSettingsBusy is returned by UpdateSettings while another settings write is in flight.
	ErrSettingsBusy = errors.New("settings update already in progress")

	// ErrInvalidValue is returned for command arguments outside their domain.
	ErrInvalidValue = errors.New("invalid value")

	// ErrConnectionLost is the cause of a teardown triggered by an unsolicited link drop.
	ErrConnectionLost = errors.New("connection lost")

	// ErrSessionClosed is returned by commands issued on, or queued behind, a torn down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrShortPayload is returned when a numeric payload has fewer than two bytes.
	ErrShortPayload = errors.New("short payload")
)

// asNotFound wraps err as a NotFoundError for resource unless it already is one.
// Context errors are preserved in the chain.
func asNotFound(resource string, uuids []string, err error) error {
	if device.IsNotFound(err, "") {
		return err
	}
	return &device.NotFoundError{Resource: resource, UUIDs: uuids, Err: err}
}

func invalidValue(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}
