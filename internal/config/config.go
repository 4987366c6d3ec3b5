// SPDX-License-Identifier: GPL-3.0-only

// Package config loads daemon settings from a YAML file, ALS_* environment
// variables and defaults, and reloads them when the file changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides, e.g. ALS_SENSOR_INTERVAL.
const EnvPrefix = "ALS"

// hidClass matches hid.Class.
const hidClass = "hid"

// Config holds the daemon settings.
type Config struct {
	Sensor   SensorConfig `mapstructure:"sensor" yaml:"sensor"`
	Screen   DeviceConfig `mapstructure:"screen" yaml:"screen"`
	Keyboard DeviceConfig `mapstructure:"keyboard" yaml:"keyboard"`
	Offset   OffsetConfig `mapstructure:"offset" yaml:"offset"`
	DBus     Toggle       `mapstructure:"dbus" yaml:"dbus"`
	Udev     Toggle       `mapstructure:"udev" yaml:"udev"`
}

// SensorConfig selects the ambient light sensor and polling rate.
type SensorConfig struct {
	// Path of the illuminance attribute; empty means auto-discovery.
	Path     string        `mapstructure:"path" yaml:"path"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DeviceConfig names a backlight as /sys/class/{class}/{name}.
// An empty name means auto-discovery.
type DeviceConfig struct {
	Class   string `mapstructure:"class" yaml:"class"`
	Name    string `mapstructure:"name" yaml:"name"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// OffsetConfig controls hotkey offset changes.
type OffsetConfig struct {
	// Step is the default offset change in percentage points.
	Step uint32 `mapstructure:"step" yaml:"step"`
}

// Toggle enables or disables an optional component.
type Toggle struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultPath returns $XDG_CONFIG_HOME/als-brightness/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("/etc", "als-brightness", "config.yaml")
	}
	return filepath.Join(dir, "als-brightness", "config.yaml")
}

// New returns a viper instance with defaults, environment bindings and the
// given config file. An empty path selects DefaultPath.
func New(path string) *viper.Viper {
	v := viper.New()

	v.SetDefault("sensor.path", "")
	v.SetDefault("sensor.interval", 2*time.Second)
	v.SetDefault("screen.class", "backlight")
	v.SetDefault("screen.name", "")
	v.SetDefault("screen.enabled", true)
	v.SetDefault("keyboard.class", "leds")
	v.SetDefault("keyboard.name", "")
	v.SetDefault("keyboard.enabled", true)
	v.SetDefault("offset.step", 5)
	v.SetDefault("dbus.enabled", true)
	v.SetDefault("udev.enabled", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

// Load reads the config file, if present, and returns validated settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("No config file, using defaults")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Sensor.Interval <= 0 {
		return fmt.Errorf("%w: sensor.interval must be positive, got %s", ErrInvalidConfig, c.Sensor.Interval)
	}
	if c.Offset.Step < 1 || c.Offset.Step > 100 {
		return fmt.Errorf("%w: offset.step must be between 1 and 100, got %d", ErrInvalidConfig, c.Offset.Step)
	}
	if err := c.Screen.validate("screen"); err != nil {
		return err
	}
	return c.Keyboard.validate("keyboard")
}

func (d DeviceConfig) validate(key string) error {
	if !d.Enabled {
		return nil
	}
	if d.Class == "" {
		return fmt.Errorf("%w: %s.class must not be empty", ErrInvalidConfig, key)
	}
	// Displays cannot be discovered, they are addressed by serial number.
	if d.Class == hidClass && d.Name == "" {
		return fmt.Errorf("%w: %s.name must be set to the display serial for class %q", ErrInvalidConfig, key, hidClass)
	}
	return nil
}

// Watch calls onChange with the reloaded settings whenever the config file
// changes. Invalid files are logged and skipped.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		log.Info().Str("file", e.Name).Msg("Config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}
