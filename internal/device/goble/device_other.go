//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

const hiddenCCCD = false

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("go-ble backend is not supported on %s", runtime.GOOS)
}
