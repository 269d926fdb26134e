// Package goble implements device.Radio on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

// Radio is the go-ble central. The HCI/CoreBluetooth device is opened on first use
// and shared by scans and connections.
type Radio struct {
	mu     sync.Mutex
	dev    ble.Device
	logger *logrus.Logger
}

func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		r.logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return NormalizeError(err)
}

// Connect dials address and starts watching the link for drops.
func (r *Radio) Connect(ctx context.Context, address string) (device.Link, error) {
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	log := r.logger.WithField("address", address)
	log.Debug("Dialing BLE device...")

	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		log.WithError(err).Debug("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}
	return newLink(address, client, log), nil
}

// Close releases the underlying device.
func (r *Radio) Close() error {
	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()

	if dev == nil {
		return nil
	}
	return NormalizeError(dev.Stop())
}
