package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newPlatformDevice

// Central implements device.Central on top of a go-ble HCI/CoreBluetooth device.
type Central struct {
	dev    ble.Device
	logger *logrus.Logger
}

var (
	_ device.Central = (*Central)(nil)
	_ device.Scanner = (*Central)(nil)
)

// NewCentral opens the platform BLE device.
func NewCentral(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	return &Central{dev: dev, logger: logger}, nil
}

// Discover scans until an advertisement accepted by opts is seen.
// Returns a *device.NotFoundError for the device when ctx ends first.
func (c *Central) Discover(ctx context.Context, opts device.DiscoverOptions) (device.Advertisement, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan device.Advertisement, 1)

	c.logger.WithFields(logrus.Fields{
		"name":     opts.Name,
		"services": opts.Services,
	}).Debug("Scanning for device...")

	err := c.dev.Scan(scanCtx, false, func(a ble.Advertisement) {
		adv := toAdvertisement(a)
		if !opts.Matches(adv.Name, adv.Services) {
			return
		}
		select {
		case found <- adv:
			cancel()
		default:
		}
	})

	select {
	case adv := <-found:
		c.logger.WithFields(logrus.Fields{
			"name":    adv.Name,
			"address": adv.Address,
			"rssi":    adv.RSSI,
		}).Info("Device discovered")
		return adv, nil
	default:
	}

	if ctx.Err() != nil || err == nil {
		return device.Advertisement{}, &device.NotFoundError{
			Resource: device.ResourceDevice,
			UUIDs:    []string{opts.Name},
			Err:      ctx.Err(),
		}
	}
	return device.Advertisement{}, NormalizeError(err)
}

// Scan reports every advertisement until ctx is done. Duplicates are reported again
// so that RSSI stays current.
func (c *Central) Scan(ctx context.Context, fn func(device.Advertisement)) error {
	c.logger.Debug("Scanning...")

	err := c.dev.Scan(ctx, true, func(a ble.Advertisement) {
		fn(toAdvertisement(a))
	})
	if err != nil && ctx.Err() == nil {
		return NormalizeError(err)
	}
	return nil
}

func toAdvertisement(a ble.Advertisement) device.Advertisement {
	services := make([]string, 0, len(a.Services()))
	for _, u := range a.Services() {
		services = append(services, device.NormalizeUUID(u.String()))
	}
	return device.Advertisement{
		Name:     a.LocalName(),
		Address:  a.Addr().String(),
		RSSI:     a.RSSI(),
		Services: services,
	}
}

// Dial opens a GATT client connection to address.
func (c *Central) Dial(ctx context.Context, address string) (device.Connection, error) {
	c.logger.WithField("address", address).Debug("Dialing BLE device...")

	client, err := c.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, NormalizeError(err)
	}

	return newConnection(client, address, c.logger), nil
}

// Stop releases the underlying platform device.
func (c *Central) Stop() error {
	return NormalizeError(c.dev.Stop())
}
