package tinyble

import (
	"fmt"

	"github.com/srg/sixmwt/internal/device"
)

// normalizeError maps tinygo adapter errors onto the device sentinels.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case device.ContainsFold(msg, "powered off"),
		device.ContainsFold(msg, "not powered"),
		device.ContainsFold(msg, "adapter not enabled"),
		device.ContainsFold(msg, "org.bluez.Error.NotReady"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsFold(msg, "not authorized"),
		device.ContainsFold(msg, "unauthorized"),
		device.ContainsFold(msg, "org.freedesktop.DBus.Error.AccessDenied"):
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	case device.ContainsFold(msg, "not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return err
	}
}
