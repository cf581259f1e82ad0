package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/srg/crafty/internal/event"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// Progress phases driven by connection events.
const (
	phaseScanning  = "Scanning"
	phaseReading   = "Reading"
	phaseConnected = "Connected"
	phaseFailed    = "Failed"
)

// ProgressPrinter shows a single self-overwriting status line with elapsed seconds.
//
//	p := NewProgressPrinter(w, "Connecting to Crafty", phaseScanning, phaseConnected, phaseFailed)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Stop must be called to release the ticker goroutine.
// Nothing is printed when the writer is not a terminal.
type ProgressPrinter struct {
	out        io.Writer
	enabled    bool
	prefix     string
	phase      atomic.Value        // string
	stopPhases map[string]struct{} // phases that end the display
	startTime  time.Time
	ticker     atomic.Pointer[time.Ticker]
	stopChan   chan struct{}
	done       chan struct{}
	started    atomic.Bool
}

// NewProgressPrinter creates a printer writing to out.
func NewProgressPrinter(out io.Writer, prefix string, phase string, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		enabled:    isTerminal(out),
		prefix:     prefix,
		stopPhases: stopSet,
	}
	p.phase.Store(phase)
	return p
}

// Start begins updating the line in a background goroutine. Panics if called twice.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	if !p.enabled {
		return
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.Phase())

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.Phase()
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				if secs := int(time.Since(p.startTime).Seconds()); secs > 0 {
					fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, secs)
				} else {
					fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
				}
			}
		}
	}()
}

// Phase returns the current phase.
func (p *ProgressPrinter) Phase() string {
	return p.phase.Load().(string)
}

// Callback returns a function that moves to a new phase, stopping on a stop phase.
// Safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Sink advances the phases from connection events.
func (p *ProgressPrinter) Sink() event.Sink {
	update := p.Callback()
	return event.SinkFunc(func(e event.Event) {
		switch e.(type) {
		case event.Connecting:
			update(phaseScanning)
		case event.Serial, event.Model, event.FirmwareVersion, event.CurrentTemperature:
			update(phaseReading)
		case event.Connected:
			update(phaseConnected)
		case event.Disconnected:
			update(phaseFailed)
		}
	})
}

// Stop ends the display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}
