package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/sixmwt/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *BLEAdvertisement) Connectable() bool { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string      { return a.adv.Addr().String() }

// Services returns the advertised service UUIDs, including overflow ones, normalized.
func (a *BLEAdvertisement) Services() []string {
	svcs := append(append([]ble.UUID(nil), a.adv.Services()...), a.adv.OverflowService()...)
	result := make([]string, len(svcs))
	for i, svc := range svcs {
		result[i] = device.NormalizeUUID(svc.String())
	}
	return result
}
