// Package scanner lists nearby heaters from a bounded BLE scan.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/event"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Result Result
}

// Result is one advertiser seen during the scan.
type Result struct {
	device.Advertisement
	FirstSeen time.Time
	LastSeen  time.Time
	Seen      int
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration time.Duration
	// Filter selects heaters by name or service. Ignored when All is set.
	Filter    device.DiscoverOptions
	All       bool
	AllowList []string
	BlockList []string
}

// DefaultScanOptions looks for heaters for five seconds.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 5 * time.Second,
		Filter: device.DiscoverOptions{
			Name:     device.DefaultDeviceName,
			Services: []string{catalog.DataService},
		},
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	central device.Scanner
	devices *hashmap.Map[string, *Result]
	events  *event.RingChannel[DeviceEvent]
	logger  *logrus.Logger
	now     func() time.Time

	scanOptions *ScanOptions
}

// NewScanner creates a scanner on top of central.
func NewScanner(central device.Scanner, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		central: central,
		events:  event.NewRingChannel[DeviceEvent](100),
		logger:  logger,
		now:     time.Now,
	}
}

// Scan runs for opts.Duration or until ctx is done and returns the advertisers
// accepted by opts, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Result, error) {
	s.devices = hashmap.New[string, *Result]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	if err := s.central.Scan(scanCtx, s.handleAdvertisement); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	results := make([]Result, 0, s.devices.Len())
	s.devices.Range(func(_ string, r *Result) bool {
		results = append(results, *r)
		return true
	})
	sort.Slice(results, func(i, j int) bool {
		if results[i].RSSI != results[j].RSSI {
			return results[i].RSSI > results[j].RSSI
		}
		return results[i].Address < results[j].Address
	})
	return results, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	now := s.now()

	r, existing := s.devices.Get(adv.Address)
	if !existing {
		if !s.shouldInclude(adv, s.scanOptions) {
			return
		}
		r, existing = s.devices.GetOrInsert(adv.Address, &Result{Advertisement: adv, FirstSeen: now})
	}

	if adv.Name != "" {
		r.Name = adv.Name
	}
	if len(adv.Services) > 0 {
		r.Services = adv.Services
	}
	r.RSSI = adv.RSSI
	r.LastSeen = now
	r.Seen++

	ev := DeviceEvent{Type: EventNew, Result: *r}
	if existing {
		ev.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  adv.Name,
			"address": adv.Address,
			"rssi":    adv.RSSI,
		}).Info("Discovered new device")
	}
	s.events.Send(ev)
}

// shouldInclude applies the allow, block and heater filters
func (s *Scanner) shouldInclude(adv device.Advertisement, opts *ScanOptions) bool {
	for _, blocked := range opts.BlockList {
		if adv.Address == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if adv.Address == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return opts.All || opts.Filter.Matches(adv.Name, adv.Services)
}

// Events returns a read-only channel of discovery events. Old events are dropped
// when nobody reads them.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
