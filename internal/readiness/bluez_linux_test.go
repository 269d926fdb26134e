package readiness

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestPoweredChange(t *testing.T) {
	signal := func(iface string, props map[string]dbus.Variant) *dbus.Signal {
		return &dbus.Signal{Body: []interface{}{iface, props, []string{}}}
	}

	on, changed := poweredChange(signal(adapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(false)}))
	assert.True(t, changed)
	assert.False(t, on)

	on, changed = poweredChange(signal(adapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}))
	assert.True(t, changed)
	assert.True(t, on)

	_, changed = poweredChange(signal(adapterIface, map[string]dbus.Variant{"Discovering": dbus.MakeVariant(true)}))
	assert.False(t, changed, "unrelated properties MUST be ignored")

	_, changed = poweredChange(signal("org.bluez.Device1", map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}))
	assert.False(t, changed, "other interfaces MUST be ignored")

	_, changed = poweredChange(nil)
	assert.False(t, changed)
}
