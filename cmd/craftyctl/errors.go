package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/session"
)

// FormatUserError turns engine errors into a one-line message for the terminal.
// Unknown errors are returned verbatim.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var nf *device.NotFoundError
	switch {
	case errors.As(err, &nf):
		return formatNotFound(nf)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrAlreadyConnected):
		return "already connected to the heater"
	case errors.Is(err, session.ErrConnectionLost):
		return "connection to the heater was lost"
	case errors.Is(err, session.ErrSettingsBusy):
		return "another settings change is still in progress"
	case errors.Is(err, session.ErrSessionClosed):
		return "the session was closed before the command completed"
	case errors.Is(err, session.ErrInvalidValue):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	}
	return err.Error()
}

func formatNotFound(nf *device.NotFoundError) string {
	switch nf.Resource {
	case device.ResourceDevice:
		return "no Crafty heater found; make sure it is switched on and in range"
	case device.ResourceServer:
		return "the heater was found but refused the connection"
	case device.ResourceService, device.ResourceCharacteristic:
		if len(nf.UUIDs) == 0 {
			break
		}
		uuid := nf.UUIDs[len(nf.UUIDs)-1]
		if d, ok := catalog.Lookup(uuid); ok {
			return fmt.Sprintf("the heater does not expose %q (%s); unsupported firmware?", d.Label, device.ShortenUUID(uuid))
		}
		return fmt.Sprintf("the heater does not expose %s %s; unsupported firmware?", nf.Resource, device.ShortenUUID(uuid))
	}
	return nf.Error()
}
