package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.PanicLevel, cfg.LogLevel)
	assert.Equal(t, units.Celsius, cfg.Unit)
	assert.Equal(t, 5.0, cfg.SetPointStep)
	assert.Equal(t, 1.0, cfg.BoostStep)
	assert.Equal(t, "STORZ&BICKEL", cfg.DeviceName)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.CommandTimeout)
	assert.False(t, cfg.Detailed)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "crafty", cfg.MQTT.TopicPrefix)
	assert.True(t, cfg.MQTT.Retain)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
unit: F
set_point_step: 2
scan_timeout: 3s
mqtt:
  broker: tcp://broker:1883
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, units.Fahrenheit, cfg.Unit)
	assert.Equal(t, 2.0, cfg.SetPointStep)
	assert.Equal(t, 1.0, cfg.BoostStep, "unset keys MUST keep their defaults")
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "craftyctl", cfg.MQTT.ClientID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "unit: [c"},
		{name: "unknown unit", content: "unit: kelvin"},
		{name: "zero step", content: "boost_step: 0"},
		{name: "bad qos", content: "mqtt:\n  qos: 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Unit = units.Fahrenheit
	cfg.BoostStep = 2
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unit: F")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	cfg.SetPointStep = -1
	assert.Error(t, cfg.Save(path), "an invalid config MUST NOT be written")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "zero value is silent",
			logLevel: logrus.PanicLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
