package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// hiddenCCCD is set where the OS manages the client characteristic configuration
// descriptor itself and does not report it during discovery.
const hiddenCCCD = true

func newDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
