package tinyble

import (
	"errors"
	"testing"

	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUID(t *testing.T) {
	for _, in := range []string{bledb.OximeterService, "49535343-FE7D-4AE5-8FA9-9FAFD205E455", bledb.WearableCharacteristic} {
		u, err := parseUUID(in)
		require.NoError(t, err, in)
		assert.Equal(t, device.NormalizeUUID(in), device.NormalizeUUID(u.String()))
	}

	u, err := parseUUID("0x180F")
	require.NoError(t, err)
	assert.Equal(t, "180f", device.NormalizeUUID(u.String()))

	_, err = parseUUID("123")
	assert.Error(t, err)
}

func TestNormalizeError(t *testing.T) {
	assert.NoError(t, normalizeError(nil))
	assert.ErrorIs(t, normalizeError(errors.New("org.bluez.Error.NotReady: Resource Not Ready")), device.ErrBluetoothOff)
	assert.ErrorIs(t, normalizeError(errors.New("org.freedesktop.DBus.Error.AccessDenied")), device.ErrPermissionDenied)
	assert.ErrorIs(t, normalizeError(errors.New("device not connected")), device.ErrNotConnected)

	other := errors.New("le-connection-abort-by-local")
	assert.Same(t, other, normalizeError(other))
}

func TestCharacteristicIsAssumedNotifiable(t *testing.T) {
	c := &Characteristic{uuid: bledb.WearableCharacteristic}
	assert.True(t, c.Properties().CanNotify())
	assert.True(t, device.HasDescriptor(c, bledb.ClientCharacteristicConfiguration))
}
