package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/srg/sixmwt/internal/device"
)

// FakeRadio is a scripted device.Radio. Advertisements are replayed on every
// scan; peripherals registered with WithPeripheral answer Connect.
type FakeRadio struct {
	mu          sync.Mutex
	adverts     []device.Advertisement
	peripherals map[string]*PeripheralBuilder
	connectErrs map[string][]error
	holds       map[string]chan struct{}
	links       map[string][]*FakeLink
	connects    map[string]int
	scanErr     error
	scanning    bool
	scanCount   int
	handler     func(device.Advertisement)
}

func NewFakeRadio() *FakeRadio {
	return &FakeRadio{
		peripherals: make(map[string]*PeripheralBuilder),
		connectErrs: make(map[string][]error),
		holds:       make(map[string]chan struct{}),
		links:       make(map[string][]*FakeLink),
		connects:    make(map[string]int),
	}
}

func radioKey(address string) string {
	return strings.ToUpper(address)
}

// WithAdvertisements sets the advertisements replayed when a scan starts.
func (r *FakeRadio) WithAdvertisements(adverts ...device.Advertisement) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = append(r.adverts, adverts...)
	return r
}

// WithPeripheral makes address connectable with the given GATT profile.
func (r *FakeRadio) WithPeripheral(address string, profile *PeripheralBuilder) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals[radioKey(address)] = profile
	return r
}

// FailScan makes every Scan return err immediately.
func (r *FakeRadio) FailScan(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
}

// FailConnect queues errors returned by the next Connect calls to address, in order.
func (r *FakeRadio) FailConnect(address string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := radioKey(address)
	r.connectErrs[k] = append(r.connectErrs[k], errs...)
}

// HoldConnect blocks Connect calls to address until the returned release is called
// or the dial context ends.
func (r *FakeRadio) HoldConnect(address string) (release func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.holds[radioKey(address)] = ch
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.holds, radioKey(address))
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Scan replays the configured advertisements, then blocks until ctx ends.
func (r *FakeRadio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	r.mu.Lock()
	if r.scanErr != nil {
		err := r.scanErr
		r.mu.Unlock()
		return err
	}
	r.scanning = true
	r.scanCount++
	r.handler = handler
	adverts := append([]device.Advertisement(nil), r.adverts...)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.scanning = false
		r.handler = nil
		r.mu.Unlock()
	}()

	for _, adv := range adverts {
		if ctx.Err() != nil {
			return nil
		}
		handler(adv)
	}
	<-ctx.Done()
	return nil
}

// Advertise delivers adv to the running scan, if any. It reports whether a scan received it.
func (r *FakeRadio) Advertise(adv device.Advertisement) bool {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

// Scanning reports whether a Scan call is in progress.
func (r *FakeRadio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

// ScanCount returns how many scans were started.
func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanCount
}

// Connect returns a FakeLink for a registered peripheral.
func (r *FakeRadio) Connect(ctx context.Context, address string) (device.Link, error) {
	k := radioKey(address)

	r.mu.Lock()
	r.connects[k]++
	hold := r.holds[k]
	r.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if errs := r.connectErrs[k]; len(errs) > 0 {
		r.connectErrs[k] = errs[1:]
		return nil, errs[0]
	}
	profile, ok := r.peripherals[k]
	if !ok {
		return nil, errors.New("fake radio: peripheral not found")
	}

	link := NewFakeLink(address, profile.Build())
	r.links[k] = append(r.links[k], link)
	return link, nil
}

// ConnectCount returns how many times Connect was called for address.
func (r *FakeRadio) ConnectCount(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects[radioKey(address)]
}

// Links returns every link handed out for address, oldest first.
func (r *FakeRadio) Links(address string) []*FakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeLink(nil), r.links[radioKey(address)]...)
}

// LastLink returns the newest link handed out for address, or nil.
func (r *FakeRadio) LastLink(address string) *FakeLink {
	links := r.Links(address)
	if len(links) == 0 {
		return nil
	}
	return links[len(links)-1]
}

// OpenLinks counts links that have not been closed or dropped, across all addresses.
func (r *FakeRadio) OpenLinks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, links := range r.links {
		for _, l := range links {
			if !l.IsClosed() {
				n++
			}
		}
	}
	return n
}

// FakeLink is a scripted device.Link.
type FakeLink struct {
	mu           sync.Mutex
	address      string
	services     []device.Service
	discoverErr  error
	subscribeErr error
	handler      func([]byte)
	subscribed   device.Characteristic
	disconnected chan struct{}
	closeOnce    sync.Once
	closed       bool
	closeCalls   int
}

func NewFakeLink(address string, services []device.Service) *FakeLink {
	return &FakeLink{
		address:      address,
		services:     services,
		disconnected: make(chan struct{}),
	}
}

// FailDiscovery makes DiscoverServices return err.
func (l *FakeLink) FailDiscovery(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverErr = err
}

// FailSubscribe makes EnableNotifications return err.
func (l *FakeLink) FailSubscribe(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeErr = err
}

func (l *FakeLink) Address() string {
	return l.address
}

func (l *FakeLink) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.closed {
		return nil, device.ErrNotConnected
	}
	if l.discoverErr != nil {
		return nil, l.discoverErr
	}
	return l.services, nil
}

func (l *FakeLink) EnableNotifications(ctx context.Context, char device.Characteristic, handler func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed {
		return device.ErrNotConnected
	}
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.subscribed = char
	l.handler = handler
	return nil
}

// Notify delivers a notification payload to the subscriber, if any.
func (l *FakeLink) Notify(data []byte) bool {
	l.mu.Lock()
	handler := l.handler
	closed := l.closed
	l.mu.Unlock()
	if handler == nil || closed {
		return false
	}
	handler(data)
	return true
}

// Subscribed reports whether notifications were enabled on the link.
func (l *FakeLink) Subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscribed != nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Drop simulates the peripheral going away.
func (l *FakeLink) Drop() {
	l.markClosed()
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closeCalls++
	l.mu.Unlock()
	l.markClosed()
	return nil
}

func (l *FakeLink) markClosed() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.handler = nil
		l.mu.Unlock()
		close(l.disconnected)
	})
}

// IsClosed reports whether the link was closed or dropped.
func (l *FakeLink) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// CloseCalls returns how many times Close was called.
func (l *FakeLink) CloseCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCalls
}
