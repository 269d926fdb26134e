// Package tinyble implements device.Radio on top of tinygo.org/x/bluetooth.
//
// tinygo does not expose the raw advertised service list, characteristic
// properties or descriptors. Advertisements report only the watched services,
// and discovered characteristics are assumed notifiable with an implicit CCCD;
// EnableNotifications fails when the peripheral disagrees.
package tinyble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"tinygo.org/x/bluetooth"
)

// Radio is the tinygo central.
type Radio struct {
	adapter *bluetooth.Adapter
	watched []bluetooth.UUID
	logger  *logrus.Logger

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	links map[string]*Link
}

// NewRadio creates a radio on the default adapter. watch lists the service UUIDs
// reported in advertisements.
func NewRadio(watch []string, logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Radio{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		links:   make(map[string]*Link),
	}
	for _, w := range watch {
		u, err := parseUUID(w)
		if err != nil {
			return nil, fmt.Errorf("tinyble: watched service %q: %w", w, err)
		}
		r.watched = append(r.watched, u)
	}
	return r, nil
}

func (r *Radio) enable() error {
	r.enableOnce.Do(func() {
		if err := r.adapter.Enable(); err != nil {
			r.enableErr = normalizeError(err)
			return
		}
		// The adapter-level handler is the only disconnect signal tinygo offers.
		r.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
			if connected {
				return
			}
			r.mu.Lock()
			l := r.links[key(d.Address.String())]
			r.mu.Unlock()
			if l != nil {
				l.logger.Warn("Peripheral reported disconnection")
				l.markDown()
			}
		})
	})
	return r.enableErr
}

func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	if err := r.enable(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := r.adapter.StopScan(); err != nil {
				r.logger.WithError(err).Debug("StopScan failed")
			}
		case <-done:
		}
	}()

	err := r.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		handler(r.advertisement(res))
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("tinyble: scan: %w", normalizeError(err))
	}
	return nil
}

func (r *Radio) advertisement(res bluetooth.ScanResult) *Advertisement {
	adv := &Advertisement{
		name: res.LocalName(),
		addr: res.Address.String(),
		rssi: int(res.RSSI),
	}
	for _, u := range r.watched {
		if res.HasServiceUUID(u) {
			adv.services = append(adv.services, device.NormalizeUUID(u.String()))
		}
	}
	return adv
}

// Connect dials address. tinygo's Connect cannot be cancelled; a cancelled ctx
// abandons the attempt and a late success is disconnected.
func (r *Radio) Connect(ctx context.Context, address string) (device.Link, error) {
	if err := r.enable(); err != nil {
		return nil, err
	}

	var addr bluetooth.Address
	addr.Set(address)

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{d, err}
	}()

	log := r.logger.WithField("address", address)
	select {
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.err == nil {
				_ = res.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("tinyble: connect to %s: %w", address, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("tinyble: connect to %s: %w", address, normalizeError(res.err))
		}
		l := newLink(address, res.dev, log, r.forget)
		r.mu.Lock()
		r.links[key(address)] = l
		r.mu.Unlock()
		return l, nil
	}
}

func (r *Radio) forget(address string, l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[key(address)] == l {
		delete(r.links, key(address))
	}
}

func key(address string) string {
	return strings.ToUpper(address)
}

// Advertisement is one scan result.
type Advertisement struct {
	name     string
	addr     string
	rssi     int
	services []string
}

func (a *Advertisement) LocalName() string  { return a.name }
func (a *Advertisement) Services() []string { return a.services }
func (a *Advertisement) RSSI() int          { return a.rssi }
func (a *Advertisement) Addr() string       { return a.addr }

// Connectable is not reported by tinygo; every result is treated as connectable.
func (a *Advertisement) Connectable() bool { return true }

// parseUUID accepts the normalized 16-bit and 128-bit forms used across the module.
func parseUUID(s string) (bluetooth.UUID, error) {
	n := device.NormalizeUUID(s)
	switch len(n) {
	case 4:
		var v uint16
		if _, err := fmt.Sscanf(n, "%04x", &v); err != nil {
			return bluetooth.UUID{}, err
		}
		return bluetooth.New16BitUUID(v), nil
	case 32:
		return bluetooth.ParseUUID(fmt.Sprintf("%s-%s-%s-%s-%s", n[0:8], n[8:12], n[12:16], n[16:20], n[20:32]))
	default:
		return bluetooth.UUID{}, fmt.Errorf("unsupported UUID length %d", len(n))
	}
}

