package device

import (
	"context"
)

// Advertisement is a single discovery sighting reported by a Radio.
type Advertisement interface {
	LocalName() string
	Services() []string
	RSSI() int
	Addr() string
	Connectable() bool
}

// Radio is the platform BLE central consumed by the scanner and the connection machines.
type Radio interface {
	// Scan blocks and delivers advertisements to handler until ctx is done.
	// Returning because ctx was cancelled is not an error.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Connect dials the peripheral and returns the live link.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is a live low-level connection handle to one peripheral.
// A Link is exclusively owned by the connection machine that dialed it.
type Link interface {
	Address() string

	// DiscoverServices resolves the GATT profile of the peripheral.
	DiscoverServices(ctx context.Context) ([]Service, error)

	// EnableNotifications sets the notification flag on char and writes the
	// enable value to its client characteristic configuration descriptor.
	// handler receives raw notification payloads until the link closes.
	EnableNotifications(ctx context.Context, char Characteristic, handler func([]byte)) error

	// Disconnected is closed when the peripheral drops the link.
	Disconnected() <-chan struct{}

	// Close releases the link. Calling it more than once is allowed.
	Close() error
}

// Service represents a discovered GATT service
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Characteristic represents a discovered GATT characteristic
type Characteristic interface {
	UUID() string
	Properties() Property
	// Descriptors returns the normalized UUIDs of the descriptors attached to the characteristic.
	Descriptors() []string
}

// Property is a bit set of GATT characteristic properties.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

// CanNotify reports whether the characteristic supports notify or indicate.
func (p Property) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// FindService returns the service with the given UUID.
func FindService(services []Service, uuid string) (Service, error) {
	want := NormalizeUUID(uuid)
	for _, svc := range services {
		if NormalizeUUID(svc.UUID()) == want {
			return svc, nil
		}
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// FindCharacteristic returns the characteristic with the given UUID inside svc.
func FindCharacteristic(svc Service, uuid string) (Characteristic, error) {
	want := NormalizeUUID(uuid)
	for _, char := range svc.Characteristics() {
		if NormalizeUUID(char.UUID()) == want {
			return char, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{svc.UUID(), uuid}}
}

// HasDescriptor reports whether char carries the descriptor with the given UUID.
func HasDescriptor(char Characteristic, uuid string) bool {
	want := NormalizeUUID(uuid)
	for _, d := range char.Descriptors() {
		if NormalizeUUID(d) == want {
			return true
		}
	}
	return false
}
