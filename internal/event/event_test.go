package event

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/catalog"
	"github.com/srg/crafty/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := NewRingChannel[int](3)
	overwrites := 0
	for i := 0; i < 10; i++ {
		if rc.Send(i) {
			overwrites++
		}
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "only the newest values MUST survive")
	assert.Equal(t, 7, overwrites)

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_ClosedIsSafe(t *testing.T) {
	rc := NewRingChannel[string](1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send("late") }, "send after close MUST NOT panic")
	assert.False(t, rc.SendKeep("late", func(string) bool { return true }))
	assert.Equal(t, int64(2), rc.GetMetrics().Errors)

	_, ok := <-rc.C()
	assert.False(t, ok)
	assert.Panics(t, func() { NewRingChannel[int](0) })
}

func TestRingChannel_SendKeep(t *testing.T) {
	even := func(v int) bool { return v%2 == 0 }

	tests := []struct {
		name  string
		sends []int
		want  []int
	}{
		{name: "room left", sends: []int{1, 2}, want: []int{1, 2}},
		{name: "oldest droppable goes", sends: []int{2, 1, 4, 6}, want: []int{2, 4, 6}},
		{name: "all kept drops oldest", sends: []int{2, 4, 6, 8}, want: []int{4, 6, 8}},
		{name: "droppable newcomer still lands", sends: []int{2, 4, 6, 7}, want: []int{4, 6, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRingChannel[int](3)
			for _, v := range tt.sends {
				rc.SendKeep(v, even)
			}
			assert.Equal(t, len(tt.want), rc.Len())
			assert.Equal(t, 3, rc.Cap())
			rc.Close()

			var got []int
			for v := range rc.C() {
				got = append(got, v)
			}
			assert.Equal(t, tt.want, got, "order MUST be preserved")
			assert.Equal(t, int64(len(tt.sends)), rc.GetMetrics().Written)
		})
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(quietLogger())
	a := bus.Subscribe(8)
	b := bus.Subscribe(8)
	require.Equal(t, 2, bus.Len())

	bus.Emit(Connecting{})
	bus.Emit(Connected{Address: "AA"})

	for _, s := range []*Subscriber{a, b} {
		assert.Equal(t, Connecting{}, <-s.C())
		assert.Equal(t, Connected{Address: "AA"}, <-s.C())
	}

	a.Close()
	a.Close()
	assert.Equal(t, 1, bus.Len(), "closed subscriber MUST be unregistered")

	bus.Emit(Disconnected{})
	assert.Equal(t, Disconnected{}, <-b.C())

	_, open := <-a.C()
	assert.False(t, open)

	bus.Close()
	assert.Equal(t, 0, bus.Len())
}

func TestBus_SlowSubscriberNeverBlocks(t *testing.T) {
	bus := NewBus(quietLogger())
	slow := bus.Subscribe(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Emit(BatteryPercent{Value: uint16(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit MUST NOT block on a full subscriber")
	}

	assert.Equal(t, BatteryPercent{Value: 98}, <-slow.C())
	assert.Equal(t, BatteryPercent{Value: 99}, <-slow.C())
	assert.Equal(t, int64(98), slow.Metrics().Overwritten)
}

func TestBus_SlowSubscriberKeepsCommandBracket(t *testing.T) {
	// GOAL: Verify a lagging consumer never loses the end of a command bracket
	//
	// TEST SCENARIO: bracket opens → readings flood a tiny buffer → bracket closes → both ends survive

	bus := NewBus(quietLogger())
	slow := bus.Subscribe(3)

	bus.Emit(UpdatingStarted{Command: "led"})
	for i := 0; i < 50; i++ {
		bus.Emit(CurrentTemperature{Value: float64(i), Unit: units.Celsius})
	}
	bus.Emit(UpdatingFinished{Command: "led"})
	bus.Emit(Disconnected{})
	slow.Close()

	var got []Event
	for e := range slow.C() {
		got = append(got, e)
	}
	assert.Equal(t, []Event{
		UpdatingStarted{Command: "led"},
		UpdatingFinished{Command: "led"},
		Disconnected{},
	}, got)

	var st State
	for _, e := range got {
		st = Reduce(st, e)
	}
	assert.False(t, st.Updating(), "the updating flag MUST NOT stay set")
}

func TestBus_ConcurrentCloseAndEmit(t *testing.T) {
	bus := NewBus(quietLogger())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := bus.Subscribe(1)
		wg.Add(2)
		go func() { defer wg.Done(); s.Close() }()
		go func() { defer wg.Done(); bus.Emit(LED{Value: 5}) }()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Len())
}

func TestMulti(t *testing.T) {
	var got []Kind
	rec := SinkFunc(func(e Event) { got = append(got, e.Kind()) })

	Multi(rec, nil, Discard, rec).Emit(Serial{Value: "x"})
	assert.Equal(t, []Kind{KindSerial, KindSerial}, got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "current-temperature", KindCurrentTemperature.String())
	assert.Equal(t, "unit-changed", UnitChanged{}.Kind().String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestSettingsPolarity(t *testing.T) {
	tests := []struct {
		bitmask   uint16
		vibration bool
		indicator bool
	}{
		{bitmask: 0, vibration: true, indicator: true},
		{bitmask: 1, vibration: false, indicator: true},
		{bitmask: 2, vibration: true, indicator: false},
		{bitmask: 3, vibration: false, indicator: false},
		{bitmask: 0xfffc, vibration: true, indicator: true},
	}
	for _, tt := range tests {
		s := Settings{Bitmask: tt.bitmask}
		assert.Equal(t, tt.vibration, s.VibrationEnabled(), "bitmask %#x", tt.bitmask)
		assert.Equal(t, tt.indicator, s.ChargeIndicatorEnabled(), "bitmask %#x", tt.bitmask)
	}
}

func TestFieldUpdatedFormatted(t *testing.T) {
	f := FieldUpdated{
		Descriptor: catalog.MustLookup(catalog.BatteryVoltage),
		Reading:    NumericReading(4012),
	}
	assert.Equal(t, "4.012 V", f.Formatted())

	txt := FieldUpdated{Descriptor: catalog.MustLookup(catalog.Bootloader), Reading: TextReading("1.0.3")}
	assert.Equal(t, "1.0.3", txt.Formatted())
	assert.Equal(t, "1.0.3", txt.Reading.Value())
}

func TestReduce(t *testing.T) {
	// GOAL: Verify the reference reducer reproduces a full session lifecycle
	//
	// TEST SCENARIO: connecting → fields → connected → command bracket → unit switch → disconnect
	events := []Event{
		Connecting{},
		CurrentTemperature{Value: 20, Unit: units.Celsius},
		SetPoint{Value: 180, Unit: units.Celsius},
		Boost{Value: 15, Unit: units.Celsius},
		BatteryPercent{Value: 77},
		LED{Value: 40},
		Serial{Value: "CY0123456789"},
		Model{Value: "Crafty+"},
		FirmwareVersion{Value: "02.51"},
		Settings{Bitmask: 1},
		HoursOfOperation{Hours: 12},
		PowerState{Power: 1, BoostHeat: 0, Charge: 1},
		FieldUpdated{Descriptor: catalog.MustLookup(catalog.BatteryCapacity), Reading: NumericReading(2600)},
		Connected{Address: "AA:BB"},
	}

	var s State
	for _, e := range events {
		s = Reduce(s, e)
	}

	assert.True(t, s.Connected)
	assert.False(t, s.Connecting)
	assert.Equal(t, "AA:BB", s.Address)
	assert.Equal(t, 180.0, s.SetPoint)
	assert.True(t, s.HasLED)
	assert.False(t, s.VibrationEnabled())
	assert.True(t, s.ChargeIndicatorEnabled())
	assert.Equal(t, uint16(1), s.Charge)
	require.NotNil(t, s.Info)
	info, ok := s.Info.Get(catalog.BatteryCapacity)
	require.True(t, ok)
	assert.Equal(t, "2600 mAh", info.Formatted())

	before := s
	s = Reduce(s, FieldUpdated{Descriptor: catalog.MustLookup(catalog.ChargeCurrent), Reading: NumericReading(500)})
	assert.Equal(t, 1, before.Info.Len(), "Reduce MUST NOT mutate the previous state's map")
	assert.Equal(t, 2, s.Info.Len())

	s = Reduce(s, UpdatingStarted{Command: "set-point"})
	s = Reduce(s, UpdatingStarted{Command: "boost"})
	assert.True(t, s.Updating())
	s = Reduce(s, UpdatingFinished{Command: "set-point"})
	assert.True(t, s.Updating(), "overlapping brackets MUST keep updating set")
	s = Reduce(s, UpdatingFinished{Command: "boost", Err: errors.New("write failed")})
	assert.False(t, s.Updating())
	assert.ErrorContains(t, s.LastError, "boost: write failed")

	s = Reduce(s, UnitChanged{Unit: units.Fahrenheit})
	assert.Equal(t, units.Fahrenheit, s.Unit)

	cause := errors.New("link lost")
	s = Reduce(s, Disconnected{Cause: cause, Unsolicited: true})
	assert.False(t, s.Connected)
	assert.Empty(t, s.Serial, "device data MUST NOT survive a disconnect")
	assert.Equal(t, units.Fahrenheit, s.Unit, "unit preference MUST survive a disconnect")
	assert.Equal(t, cause, s.LastError)
}
