package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/testutils"
)

// testConfig keeps connect attempts short.
const testConfig = `
scan_timeout: 1s
connect_timeout: 2s
command_timeout: 2s
set_point_step: 1
`

// syncBuffer is a bytes.Buffer safe for the printer and command goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs craftyctl commands against the in-memory heater.
// All cmd/craftyctl test suites embed it.
type CommandTestSuite struct {
	testutils.PeripheralSuite

	ConfigPath string

	origCentral func(*logrus.Logger) (device.Central, func(), error)
}

func (s *CommandTestSuite) SetupTest() {
	s.PeripheralSuite.SetupTest()

	s.ConfigPath = filepath.Join(s.T().TempDir(), "config.yaml")
	s.WriteConfig(testConfig)

	s.origCentral = newCentral
	newCentral = func(*logrus.Logger) (device.Central, func(), error) {
		return s.Peripheral, nil, nil
	}

	// cobra keeps flag values between executions
	monitorDetailed, monitorNoColor, monitorDuration = false, false, 0
	infoBrief = false
	scanDuration, scanAll, scanBlock = 100*time.Millisecond, false, nil
	bridgeBroker, bridgeReconnect = "", false
	_ = rootCmd.PersistentFlags().Set("log-level", "")
	_ = rootCmd.PersistentFlags().Set("verbose", "false")
}

func (s *CommandTestSuite) TearDownTest() {
	newCentral = s.origCentral
	s.PeripheralSuite.TearDownTest()
}

// WriteConfig replaces the config file used by ExecuteCommand.
func (s *CommandTestSuite) WriteConfig(content string) {
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(content), 0o644))
}

// ExecuteCommand runs craftyctl with args and the suite's config file.
// Returns stdout, stderr and the command error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(syncBuffer), new(syncBuffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(append(args, "--config", s.ConfigPath))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}
