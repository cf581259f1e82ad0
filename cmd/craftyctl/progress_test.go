package main

import (
	"bytes"
	"testing"

	"github.com/srg/crafty/internal/event"
	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_SinkPhases(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "Connecting", "Starting", phaseConnected, phaseFailed)
	p.Start()
	defer p.Stop()

	sink := p.Sink()

	sink.Emit(event.Connecting{})
	assert.Equal(t, phaseScanning, p.Phase())

	sink.Emit(event.Serial{Value: "CY1"})
	assert.Equal(t, phaseReading, p.Phase())

	sink.Emit(event.LED{Value: 1})
	assert.Equal(t, phaseReading, p.Phase(), "unrelated events MUST NOT change the phase")

	sink.Emit(event.Connected{Address: "AA"})
	assert.Equal(t, phaseConnected, p.Phase())

	assert.Empty(t, buf.String(), "nothing is drawn when the output is not a terminal")
}

func TestProgressPrinter_StartTwicePanics(t *testing.T) {
	p := NewProgressPrinter(&bytes.Buffer{}, "x", "y")
	p.Start()
	defer p.Stop()
	assert.Panics(t, p.Start)
}

func TestProgressPrinter_StopIsIdempotent(t *testing.T) {
	p := NewProgressPrinter(&bytes.Buffer{}, "x", "y", "done")
	p.Start()
	p.Callback()("done")
	assert.NotPanics(t, p.Stop)
	assert.NotPanics(t, p.Stop)
}
