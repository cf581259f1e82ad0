package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/event"
	"github.com/stretchr/testify/suite"
)

// PeripheralSuite provides a reusable test suite backed by an in-memory heater.
//
// Basic usage (default heater profile):
//
//	type SessionSuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom profile usage:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().WithoutCharacteristic(catalog.LED)
//	    s.PeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
//
// Inside a test, UsePeripheral replaces the peripheral built by SetupTest.
type PeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration

	PeripheralBuilder *PeripheralBuilder
	Peripheral        *Peripheral
	Sink              *RecordingSink
}

// SetupSuite initializes the test helper and logger.
func (s *PeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
}

// SetupTest builds the peripheral and a fresh recording sink.
func (s *PeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewCraftyBuilder()
	}
	s.Peripheral = s.PeripheralBuilder.Build()
	s.Sink = NewRecordingSink()
}

// TearDownTest drops the peripheral so the next test starts from the default profile.
func (s *PeripheralSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.Peripheral.Drop()
	}
	s.PeripheralBuilder = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for configuration in SetupTest.
func (s *PeripheralSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewCraftyBuilder()
	}
	return s.PeripheralBuilder
}

// UsePeripheral builds b and makes it the suite's peripheral.
func (s *PeripheralSuite) UsePeripheral(b *PeripheralBuilder) *Peripheral {
	s.PeripheralBuilder = b
	s.Peripheral = b.Build()
	return s.Peripheral
}

// Context returns a context bounded by TestTimeout and cancelled when the test ends.
func (s *PeripheralSuite) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}

// AwaitEvents waits until n events of kind were recorded, failing the test otherwise.
func (s *PeripheralSuite) AwaitEvents(kind event.Kind, n int) {
	s.Require().True(s.Sink.WaitFor(kind, n, s.TestTimeout),
		"expected %d %s event(s), got %v", n, kind, s.Sink.Kinds())
}
