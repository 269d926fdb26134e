package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/connection"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/internal/readiness"
	"github.com/srg/sixmwt/pkg/hub"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Radio backends.
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Config holds application configuration
type Config struct {
	LogLevel    string            `yaml:"log_level" default:"info"`
	Radio       RadioConfig       `yaml:"radio"`
	Scan        ScanConfig        `yaml:"scan"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Readiness   ReadinessConfig   `yaml:"readiness"`
	Oximeter    OximeterConfig    `yaml:"oximeter"`
	Wearable    PeripheralConfig  `yaml:"wearable"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

type RadioConfig struct {
	Backend        string        `yaml:"backend" default:"goble"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	// Adapter is the BlueZ adapter object path watched for power changes; empty picks the first one.
	Adapter string `yaml:"adapter"`
}

type ScanConfig struct {
	Window time.Duration `yaml:"window" default:"20s"`
}

type ConnectionConfig struct {
	SettleDelay                    time.Duration   `yaml:"settle_delay" default:"600ms"`
	Reconnect                      ReconnectConfig `yaml:"reconnect"`
	ClearLastKnownOnUserDisconnect bool            `yaml:"clear_last_known_on_user_disconnect"`
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"1"`
	Delay       time.Duration `yaml:"delay" default:"3s"`
}

// ReadinessConfig seeds the precondition inputs that are not observed directly.
type ReadinessConfig struct {
	PermissionsGranted bool `yaml:"permissions_granted" default:"true"`
	LocationEnabled    bool `yaml:"location_enabled" default:"true"`
	// BlueZ follows the adapter power state over D-Bus on Linux.
	BlueZ bool `yaml:"bluez" default:"true"`
}

type PeripheralConfig struct {
	ServiceUUID        string   `yaml:"service_uuid"`
	CharacteristicUUID string   `yaml:"characteristic_uuid"`
	NameFragments      []string `yaml:"name_fragments"`
}

type OximeterConfig struct {
	PeripheralConfig `yaml:",inline"`
	// Reassemble buffers split notifications and resynchronizes on the frame sync bit.
	Reassemble      bool `yaml:"reassemble"`
	AssemblerBuffer int  `yaml:"assembler_buffer" default:"4096"`
}

type DiagnosticsConfig struct {
	History int `yaml:"history" default:"64"`
	// DesyncInterval and Burst bound repeated decode warnings per category.
	DesyncInterval time.Duration `yaml:"desync_interval" default:"1s"`
	Burst          int           `yaml:"burst" default:"1"`
}

// Default returns default configuration values
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	for _, sig := range device.DefaultSignatures() {
		pc := PeripheralConfig{
			ServiceUUID:        sig.ServiceUUID,
			CharacteristicUUID: sig.CharacteristicUUID,
			NameFragments:      append([]string(nil), sig.NameFragments...),
		}
		switch sig.Category {
		case device.CategoryOximeter:
			cfg.Oximeter.PeripheralConfig = pc
		case device.CategoryWearable:
			cfg.Wearable = pc
		}
	}
	return cfg
}

// Load reads a YAML file over the defaults. Keys absent from the file keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Radio.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		errs = append(errs, fmt.Errorf("radio.backend: unsupported backend %q (want %s or %s)", c.Radio.Backend, BackendGoBLE, BackendTinyGo))
	}

	durations := map[string]time.Duration{
		"radio.connect_timeout":       c.Radio.ConnectTimeout,
		"scan.window":                 c.Scan.Window,
		"connection.settle_delay":     c.Connection.SettleDelay,
		"connection.reconnect.delay":  c.Connection.Reconnect.Delay,
		"diagnostics.desync_interval": c.Diagnostics.DesyncInterval,
	}
	for name, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", name))
		}
	}
	if c.Connection.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("connection.reconnect.max_attempts: must not be negative"))
	}
	if c.Oximeter.AssemblerBuffer < 0 {
		errs = append(errs, errors.New("oximeter.assembler_buffer: must not be negative"))
	}
	if c.Diagnostics.History <= 0 {
		errs = append(errs, errors.New("diagnostics.history: must be positive"))
	}

	for name, pc := range map[string]PeripheralConfig{"oximeter": c.Oximeter.PeripheralConfig, "wearable": c.Wearable} {
		if _, err := device.ValidateUUID(pc.ServiceUUID, pc.CharacteristicUUID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if device.NormalizeUUID(c.Oximeter.ServiceUUID) == device.NormalizeUUID(c.Wearable.ServiceUUID) {
		errs = append(errs, errors.New("oximeter and wearable must advertise different services"))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, info when unparsable.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Signatures returns the category signatures with normalized UUIDs.
func (c *Config) Signatures() []device.Signature {
	return []device.Signature{
		c.Oximeter.signature(device.CategoryOximeter),
		c.Wearable.signature(device.CategoryWearable),
	}
}

func (p PeripheralConfig) signature(cat device.Category) device.Signature {
	return device.Signature{
		Category:           cat,
		ServiceUUID:        device.NormalizeUUID(p.ServiceUUID),
		CharacteristicUUID: device.NormalizeUUID(p.CharacteristicUUID),
		NameFragments:      append([]string(nil), p.NameFragments...),
	}
}

// ServiceUUIDs returns the service UUIDs a scan should watch for.
func (c *Config) ServiceUUIDs() []string {
	sigs := c.Signatures()
	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.ServiceUUID)
	}
	return out
}

// HubOptions translates the configuration into hub wiring options.
func (c *Config) HubOptions() hub.Options {
	limit := rate.Inf
	if c.Diagnostics.DesyncInterval > 0 {
		limit = rate.Every(c.Diagnostics.DesyncInterval)
	}

	return hub.Options{
		ScanWindow: c.Scan.Window,
		Connection: connection.Options{
			SettleDelay:                    c.Connection.SettleDelay,
			ConnectTimeout:                 c.Radio.ConnectTimeout,
			MaxAttempts:                    c.Connection.Reconnect.MaxAttempts,
			ReconnectDelay:                 c.Connection.Reconnect.Delay,
			ClearLastKnownOnUserDisconnect: c.Connection.ClearLastKnownOnUserDisconnect,
		},
		Profiles: connection.ProfileOptions{
			Signatures:         c.Signatures(),
			ReassembleOximeter: c.Oximeter.Reassemble,
			AssemblerBuffer:    c.Oximeter.AssemblerBuffer,
		},
		Diagnostics: observe.DiagnosticsConfig{
			History: c.Diagnostics.History,
			Rate:    limit,
			Burst:   c.Diagnostics.Burst,
		},
		Readiness: readiness.State{
			AdapterPowered:     true,
			PermissionsGranted: c.Readiness.PermissionsGranted,
			LocationEnabled:    c.Readiness.LocationEnabled,
		},
	}
}
