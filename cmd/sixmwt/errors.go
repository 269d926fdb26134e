package main

import (
	"errors"
	"fmt"

	"github.com/srg/sixmwt/internal/device"
)

// Command-level errors
var (
	// ErrNothingToMonitor is returned when monitor gets neither addresses nor --auto.
	ErrNothingToMonitor = errors.New("nothing to monitor: pass --oximeter, --wearable or --auto")
	// ErrNoSensors means an automatic scan found no classified sensor.
	ErrNoSensors = errors.New("no oximeter or wearable found")
)

// FormatUserError turns precondition and lookup failures into actionable messages.
func FormatUserError(err error) string {
	var nf *device.NotFoundError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Power on the adapter and try again."
	case errors.Is(err, device.ErrPermissionDenied):
		return "Bluetooth permission denied. Grant access to the Bluetooth adapter and try again."
	case errors.Is(err, device.ErrLocationDisabled):
		return "Location services are disabled. Scanning requires them on this platform."
	case errors.Is(err, device.ErrUnknownCategory):
		return fmt.Sprintf("%v. Scan first or pass the device category explicitly.", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("%v. Is this the right device?", err)
	default:
		return err.Error()
	}
}
