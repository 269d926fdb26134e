package goble

import (
	"fmt"

	"github.com/srg/sixmwt/internal/device"
)

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsFold(msg, "bluetooth is turned off"),
		device.ContainsFold(msg, "can't init hci"),
		device.ContainsFold(msg, "hci0: network is down"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsFold(msg, "operation not permitted"),
		device.ContainsFold(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	case device.ContainsFold(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case device.ContainsFold(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case device.ContainsFold(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return err
	}
}
