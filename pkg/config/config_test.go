package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendGoBLE, cfg.Radio.Backend)
	assert.Equal(t, 30*time.Second, cfg.Radio.ConnectTimeout)
	assert.Equal(t, 20*time.Second, cfg.Scan.Window)
	assert.Equal(t, 600*time.Millisecond, cfg.Connection.SettleDelay)
	assert.Equal(t, 1, cfg.Connection.Reconnect.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Connection.Reconnect.Delay)
	assert.False(t, cfg.Connection.ClearLastKnownOnUserDisconnect)
	assert.True(t, cfg.Readiness.PermissionsGranted)
	assert.True(t, cfg.Readiness.LocationEnabled)
	assert.True(t, cfg.Readiness.BlueZ)
	assert.Equal(t, 4096, cfg.Oximeter.AssemblerBuffer)
	assert.Equal(t, 64, cfg.Diagnostics.History)
	assert.Equal(t, time.Second, cfg.Diagnostics.DesyncInterval)
	assert.Equal(t, 1, cfg.Diagnostics.Burst)

	assert.Equal(t, bledb.OximeterService, cfg.Oximeter.ServiceUUID)
	assert.Equal(t, bledb.WearableCharacteristic, cfg.Wearable.CharacteristicUUID)
	assert.NoError(t, cfg.Validate(), "defaults MUST validate")
}

func TestParse(t *testing.T) {
	t.Run("overrides keep unrelated defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
log_level: debug
radio:
  backend: tinygo
connection:
  reconnect:
    max_attempts: 3
readiness:
  location_enabled: false
oximeter:
  reassemble: true
  name_fragments: [PulseOx]
`))
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, BackendTinyGo, cfg.Radio.Backend)
		assert.Equal(t, 30*time.Second, cfg.Radio.ConnectTimeout, "absent keys MUST keep defaults")
		assert.Equal(t, 3, cfg.Connection.Reconnect.MaxAttempts)
		assert.Equal(t, 3*time.Second, cfg.Connection.Reconnect.Delay)
		assert.False(t, cfg.Readiness.LocationEnabled, "explicit false MUST override a true default")
		assert.True(t, cfg.Readiness.PermissionsGranted)
		assert.True(t, cfg.Oximeter.Reassemble)
		assert.Equal(t, []string{"PulseOx"}, cfg.Oximeter.NameFragments)
		assert.Equal(t, bledb.OximeterService, cfg.Oximeter.ServiceUUID, "inline fields MUST keep defaults")
	})

	t.Run("durations", func(t *testing.T) {
		cfg, err := Parse([]byte("scan:\n  window: 45s\nconnection:\n  settle_delay: 250ms\n"))
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.Scan.Window)
		assert.Equal(t, 250*time.Millisecond, cfg.Connection.SettleDelay)
	})

	t.Run("dashed uuids are accepted", func(t *testing.T) {
		cfg, err := Parse([]byte(`
wearable:
  service_uuid: 4FAFC201-1FB5-459E-8FCC-C5C9C331914B
  characteristic_uuid: BEB5483E-36E1-4688-B7F5-EA07361B26A8
`))
		require.NoError(t, err)
		sig := cfg.Signatures()[1]
		assert.Equal(t, device.CategoryWearable, sig.Category)
		assert.Equal(t, bledb.WearableService, sig.ServiceUUID, "signature UUIDs MUST be normalized")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("radio: [oops"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			errMsg: "log_level",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Radio.Backend = "serial" },
			errMsg: "radio.backend",
		},
		{
			name:   "negative reconnect attempts",
			mutate: func(c *Config) { c.Connection.Reconnect.MaxAttempts = -1 },
			errMsg: "max_attempts",
		},
		{
			name:   "negative settle delay",
			mutate: func(c *Config) { c.Connection.SettleDelay = -time.Second },
			errMsg: "connection.settle_delay",
		},
		{
			name:   "zero history",
			mutate: func(c *Config) { c.Diagnostics.History = 0 },
			errMsg: "diagnostics.history",
		},
		{
			name:   "malformed uuid",
			mutate: func(c *Config) { c.Oximeter.CharacteristicUUID = "not-a-uuid" },
			errMsg: "oximeter",
		},
		{
			name:   "missing characteristic",
			mutate: func(c *Config) { c.Wearable.CharacteristicUUID = "" },
			errMsg: "wearable",
		},
		{
			name:   "shared service",
			mutate: func(c *Config) { c.Wearable.ServiceUUID = c.Oximeter.ServiceUUID },
			errMsg: "different services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sixmwt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, cfg.Level())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "falls back to info on garbage", logLevel: "???", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestHubOptions(t *testing.T) {
	cfg := Default()
	cfg.Connection.ClearLastKnownOnUserDisconnect = true
	cfg.Readiness.LocationEnabled = false

	opts := cfg.HubOptions()

	assert.Equal(t, 20*time.Second, opts.ScanWindow)
	assert.Equal(t, 600*time.Millisecond, opts.Connection.SettleDelay)
	assert.Equal(t, 30*time.Second, opts.Connection.ConnectTimeout)
	assert.Equal(t, 1, opts.Connection.MaxAttempts)
	assert.True(t, opts.Connection.ClearLastKnownOnUserDisconnect)
	assert.Len(t, opts.Profiles.Signatures, 2)
	assert.Equal(t, rate.Every(time.Second), opts.Diagnostics.Rate)
	assert.True(t, opts.Readiness.AdapterPowered)
	assert.False(t, opts.Readiness.LocationEnabled)

	cfg.Diagnostics.DesyncInterval = 0
	assert.Equal(t, rate.Inf, cfg.HubOptions().Diagnostics.Rate, "zero interval MUST disable limiting")
}
