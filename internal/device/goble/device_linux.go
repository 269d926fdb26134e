package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

const hiddenCCCD = false

func newDevice() (ble.Device, error) {
	return linux.NewDevice()
}
