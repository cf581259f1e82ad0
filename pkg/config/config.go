package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/units"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration and the persisted UI preferences
type Config struct {
	LogLevel logrus.Level `yaml:"log_level"`

	// Preferences owned by the UI and passed into the engine
	Unit         units.Unit `yaml:"unit"`
	SetPointStep float64    `yaml:"set_point_step" default:"5"`
	BoostStep    float64    `yaml:"boost_step" default:"1"`

	DeviceName     string        `yaml:"device_name" default:"STORZ&BICKEL"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"10s"`
	Detailed       bool          `yaml:"detailed" default:"false"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the event bridge
type MQTTConfig struct {
	Broker      string `yaml:"broker" default:"tcp://localhost:1883"`
	ClientID    string `yaml:"client_id" default:"craftyctl"`
	TopicPrefix string `yaml:"topic_prefix" default:"crafty"`
	QoS         byte   `yaml:"qos" default:"0"`
	Retain      bool   `yaml:"retain" default:"true"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "craftyctl", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Validate checks the preference values.
func (c *Config) Validate() error {
	if !c.Unit.Valid() {
		return fmt.Errorf("unknown unit %d", int(c.Unit))
	}
	if c.SetPointStep <= 0 {
		return fmt.Errorf("set_point_step must be positive, got %v", c.SetPointStep)
	}
	if c.BoostStep <= 0 {
		return fmt.Errorf("boost_step must be positive, got %v", c.BoostStep)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
