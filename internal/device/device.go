package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found on a peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth is turned off"
	PermissionDenied ConnectionState = "bluetooth permission denied"
	LocationDisabled ConnectionState = "location service disabled"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
	ErrPermissionDenied = &ConnectionError{State: PermissionDenied}
	ErrLocationDisabled = &ConnectionError{State: LocationDisabled}
)

// Request errors
var (
	ErrTimeout          = errors.New("timeout")
	ErrUnknownCategory  = errors.New("device category is unknown")
	ErrCategoryMismatch = errors.New("device is in use under a different category")
	ErrEmptyAddress     = errors.New("device address is empty")
	ErrClosed           = errors.New("manager is closed")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// StatusFor maps an error to the connection status it should surface as.
func StatusFor(err error) ConnectionStatus {
	if err == nil {
		return StatusIdle
	}

	var nf *NotFoundError
	switch {
	case errors.Is(err, ErrBluetoothOff):
		return StatusErrorBluetoothDisabled
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrLocationDisabled):
		return StatusErrorPermissions
	case errors.As(err, &nf):
		switch nf.Resource {
		case "service":
			return StatusErrorServiceNotFound
		case "characteristic":
			return StatusErrorCharacteristicNotFound
		case "descriptor":
			return StatusErrorSubscribeFailed
		default:
			return StatusErrorDeviceNotFound
		}
	default:
		return StatusErrorGeneric
	}
}

// ContainsFold checks substring case-insensitively
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
