package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/sixmwt/internal/device"
)

// Full-form UUIDs of the supported peripherals, as a radio reports them.
const (
	OximeterServiceUUID        = "49535343-fe7d-4ae5-8fa9-9fafd205e455"
	OximeterCharacteristicUUID = "49535343-1e4d-4bd9-ba61-23c647249616"
	WearableServiceUUID        = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	WearableCharacteristicUUID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
	CCCDUUID                   = "00002902-0000-1000-8000-00805f9b34fb"
)

// CharacteristicConfig represents a GATT characteristic configuration for faking
type CharacteristicConfig struct {
	UUID        string   `json:"uuid"`
	Properties  string   `json:"properties,omitempty"` // e.g., "read,write,notify"
	Descriptors []string `json:"descriptors,omitempty"`
}

// ServiceConfig represents a GATT service configuration for faking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfile is the complete GATT profile of a fake peripheral
type PeripheralProfile struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds the GATT profile a FakeLink discovers.
type PeripheralBuilder struct {
	profile PeripheralProfile
}

// NewPeripheralBuilder creates an empty peripheral profile builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{profile: PeripheralProfile{Services: []ServiceConfig{}}}
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, descriptors ...string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties, Descriptors: descriptors})
	return b
}

// FromJSON fills the profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.profile); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal peripheral profile: %v", err))
	}
	return b
}

// Build returns the discovered services of the profile.
func (b *PeripheralBuilder) Build() []device.Service {
	services := make([]device.Service, 0, len(b.profile.Services))
	for _, sc := range b.profile.Services {
		svc := &fakeService{uuid: sc.UUID}
		for _, cc := range sc.Characteristics {
			svc.chars = append(svc.chars, &FakeCharacteristic{
				ID:    cc.UUID,
				Props: ParseProperties(cc.Properties),
				Descs: device.NormalizeUUIDs(cc.Descriptors),
			})
		}
		services = append(services, svc)
	}
	return services
}

// OximeterPeripheral is a BM1000 GATT profile.
func OximeterPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().
		WithService(OximeterServiceUUID).
		WithCharacteristic(OximeterCharacteristicUUID, "notify,write", CCCDUUID)
}

// WearablePeripheral is the step counter GATT profile.
func WearablePeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().
		WithService(WearableServiceUUID).
		WithCharacteristic(WearableCharacteristicUUID, "read,notify", CCCDUUID)
}

// ParseProperties converts "read,notify" style strings to a property set.
func ParseProperties(s string) device.Property {
	var p device.Property
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "broadcast":
			p |= device.PropBroadcast
		case "read":
			p |= device.PropRead
		case "write-without-response", "writewithoutresponse":
			p |= device.PropWriteWithoutResponse
		case "write":
			p |= device.PropWrite
		case "notify":
			p |= device.PropNotify
		case "indicate":
			p |= device.PropIndicate
		}
	}
	return p
}

type fakeService struct {
	uuid  string
	chars []device.Characteristic
}

func (s *fakeService) UUID() string                             { return s.uuid }
func (s *fakeService) Characteristics() []device.Characteristic { return s.chars }

// FakeCharacteristic is a static device.Characteristic.
type FakeCharacteristic struct {
	ID    string
	Props device.Property
	Descs []string
}

func (c *FakeCharacteristic) UUID() string                { return c.ID }
func (c *FakeCharacteristic) Properties() device.Property { return c.Props }
func (c *FakeCharacteristic) Descriptors() []string       { return c.Descs }
