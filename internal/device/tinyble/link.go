package tinyble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/device"
	"tinygo.org/x/bluetooth"
)

// Link is a tinygo peripheral connection.
type Link struct {
	address string
	dev     bluetooth.Device
	logger  *logrus.Entry
	forget  func(string, *Link)

	down      chan struct{}
	downOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newLink(address string, dev bluetooth.Device, logger *logrus.Entry, forget func(string, *Link)) *Link {
	return &Link{
		address: address,
		dev:     dev,
		logger:  logger,
		forget:  forget,
		down:    make(chan struct{}),
	}
}

func (l *Link) Address() string { return l.address }

func (l *Link) Disconnected() <-chan struct{} { return l.down }

func (l *Link) markDown() {
	l.downOnce.Do(func() { close(l.down) })
}

func (l *Link) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	type result struct {
		services []device.Service
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		svcs, err := l.discover()
		ch <- result{svcs, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.down:
		return nil, device.ErrNotConnected
	case res := <-ch:
		return res.services, res.err
	}
}

func (l *Link) discover() ([]device.Service, error) {
	svcs, err := l.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("tinyble: discover services: %w", normalizeError(err))
	}

	out := make([]device.Service, 0, len(svcs))
	for i := range svcs {
		svc := &Service{uuid: device.NormalizeUUID(svcs[i].UUID().String())}
		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("tinyble: discover characteristics of %s: %w", svc.uuid, normalizeError(err))
		}
		for j := range chars {
			svc.chars = append(svc.chars, &Characteristic{
				uuid: device.NormalizeUUID(chars[j].UUID().String()),
				raw:  chars[j],
			})
		}
		out = append(out, svc)
	}
	l.logger.WithField("services", len(out)).Debug("Profile discovered successfully")
	return out, nil
}

func (l *Link) EnableNotifications(ctx context.Context, char device.Characteristic, handler func([]byte)) error {
	c, ok := char.(*Characteristic)
	if !ok {
		return fmt.Errorf("characteristic %s was not discovered by this backend", char.UUID())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.raw.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		handler(data)
	})
	if err != nil {
		return fmt.Errorf("tinyble: enable notifications on %s: %w", device.ShortenUUID(c.uuid), normalizeError(err))
	}
	l.logger.WithField("char_uuid", c.uuid).Info("Successfully subscribed to characteristic notifications")
	return nil
}

func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.markDown()
		l.forget(l.address, l)
		l.closeErr = normalizeError(l.dev.Disconnect())
	})
	return l.closeErr
}

// Service is a discovered service.
type Service struct {
	uuid  string
	chars []device.Characteristic
}

func (s *Service) UUID() string                             { return s.uuid }
func (s *Service) Characteristics() []device.Characteristic { return s.chars }

// Characteristic is a discovered characteristic.
type Characteristic struct {
	uuid string
	raw  bluetooth.DeviceCharacteristic
}

func (c *Characteristic) UUID() string { return c.uuid }

func (c *Characteristic) Properties() device.Property {
	return device.PropRead | device.PropNotify
}

func (c *Characteristic) Descriptors() []string {
	return []string{bledb.ClientCharacteristicConfiguration}
}
