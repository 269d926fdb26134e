package device

// ConnectionStatus is the lifecycle state of one category's connection.
type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusScanning
	StatusConnecting
	StatusConnected
	StatusSubscribed
	StatusReconnecting
	StatusDisconnectedByUser
	StatusDisconnectedError
	StatusErrorPermissions
	StatusErrorBluetoothDisabled
	StatusErrorDeviceNotFound
	StatusErrorServiceNotFound
	StatusErrorCharacteristicNotFound
	StatusErrorSubscribeFailed
	StatusErrorGeneric
)

var statusNames = []string{
	"idle",
	"scanning",
	"connecting",
	"connected",
	"subscribed",
	"reconnecting",
	"disconnected_by_user",
	"disconnected_error",
	"error_permissions",
	"error_bluetooth_disabled",
	"error_device_not_found",
	"error_service_not_found",
	"error_characteristic_not_found",
	"error_subscribe_failed",
	"error_generic",
}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "invalid"
	}
	return statusNames[s]
}

func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsError reports whether s is one of the Error* states.
func (s ConnectionStatus) IsError() bool {
	return s >= StatusErrorPermissions
}

// IsActive reports whether a connection attempt or live link exists in s.
func (s ConnectionStatus) IsActive() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusSubscribed:
		return true
	default:
		return false
	}
}

// CanStartScanning reports whether a scan session may move this category to Scanning.
func (s ConnectionStatus) CanStartScanning() bool {
	return s == StatusIdle || s == StatusDisconnectedError
}
