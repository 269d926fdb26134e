package goble

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/groutine"
)

// BLELink is a live go-ble client connection.
type BLELink struct {
	address string
	client  ble.Client
	logger  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	down   chan struct{}

	downOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newLink(address string, client ble.Client, logger *logrus.Entry) *BLELink {
	ctx, cancel := context.WithCancel(context.Background())
	l := &BLELink{
		address: address,
		client:  client,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		down:    make(chan struct{}),
	}

	groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			l.logger.Warn("Peripheral reported disconnection")
			l.markDown()
		case <-ctx.Done():
		}
	})
	return l
}

func (l *BLELink) Address() string { return l.address }

func (l *BLELink) Disconnected() <-chan struct{} { return l.down }

func (l *BLELink) markDown() {
	l.downOnce.Do(func() { close(l.down) })
}

// DiscoverServices discovers the full profile. go-ble discovery is not cancellable,
// so a cancelled ctx abandons the result.
func (l *BLELink) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	ch := make(chan result, 1)
	groutine.Go(l.ctx, "ble-discover-profile", func(context.Context) {
		p, err := l.client.DiscoverProfile(true)
		ch <- result{p, err}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.down:
		return nil, device.ErrNotConnected
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(res.err))
		}
		services := convertProfile(res.profile)
		l.logger.WithField("services", len(services)).Debug("Profile discovered successfully")
		return services, nil
	}
}

// EnableNotifications subscribes with notify, or indicate when that is all the
// characteristic offers. go-ble writes the CCCD as part of the subscription.
func (l *BLELink) EnableNotifications(ctx context.Context, char device.Characteristic, handler func([]byte)) error {
	bc, ok := char.(*BLECharacteristic)
	if !ok {
		return fmt.Errorf("characteristic %s was not discovered by this backend", char.UUID())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	indicate := bc.props&device.PropNotify == 0 && bc.props&device.PropIndicate != 0
	err := l.client.Subscribe(bc.raw, indicate, func(data []byte) {
		// go-ble reuses the buffer
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(buf)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", device.ShortenUUID(bc.uuid), NormalizeError(err))
	}
	l.logger.WithField("char_uuid", bc.uuid).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// Close cancels the connection. Safe to call more than once.
func (l *BLELink) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.markDown()
		l.closeErr = NormalizeError(l.client.CancelConnection())
	})
	return l.closeErr
}

// BLEService is a discovered service.
type BLEService struct {
	uuid      string
	knownName string
	chars     []device.Characteristic
}

func (s *BLEService) UUID() string                             { return s.uuid }
func (s *BLEService) KnownName() string                        { return s.knownName }
func (s *BLEService) Characteristics() []device.Characteristic { return s.chars }

// BLECharacteristic is a discovered characteristic bound to its go-ble handle.
type BLECharacteristic struct {
	uuid        string
	knownName   string
	props       device.Property
	descriptors []string
	raw         *ble.Characteristic
}

func (c *BLECharacteristic) UUID() string                { return c.uuid }
func (c *BLECharacteristic) KnownName() string           { return c.knownName }
func (c *BLECharacteristic) Properties() device.Property { return c.props }
func (c *BLECharacteristic) Descriptors() []string       { return c.descriptors }

func convertProfile(p *ble.Profile) []device.Service {
	if p == nil {
		return nil
	}
	services := make([]device.Service, 0, len(p.Services))
	for _, bs := range p.Services {
		raw := bs.UUID.String()
		svc := &BLEService{
			uuid:      device.NormalizeUUID(raw),
			knownName: bledb.LookupService(raw),
		}
		for _, bc := range bs.Characteristics {
			svc.chars = append(svc.chars, newCharacteristic(bc))
		}
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].UUID() < services[j].UUID()
	})
	return services
}

func newCharacteristic(bc *ble.Characteristic) *BLECharacteristic {
	raw := bc.UUID.String()
	props := convertProperties(bc.Property)
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(raw),
		knownName:   bledb.LookupCharacteristic(raw),
		props:       props,
		descriptors: descriptorUUIDs(bc, props, hiddenCCCD),
		raw:         bc,
	}
}

func descriptorUUIDs(bc *ble.Characteristic, props device.Property, cccdHidden bool) []string {
	seen := make(map[string]bool, len(bc.Descriptors)+1)
	out := make([]string, 0, len(bc.Descriptors)+1)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, d := range bc.Descriptors {
		add(device.NormalizeUUID(d.UUID.String()))
	}
	if bc.CCCD != nil || (cccdHidden && props.CanNotify()) {
		add(bledb.ClientCharacteristicConfiguration)
	}
	sort.Strings(out)
	return out
}

func convertProperties(p ble.Property) device.Property {
	var out device.Property
	mapping := []struct {
		from ble.Property
		to   device.Property
	}{
		{ble.CharBroadcast, device.PropBroadcast},
		{ble.CharRead, device.PropRead},
		{ble.CharWriteNR, device.PropWriteWithoutResponse},
		{ble.CharWrite, device.PropWrite},
		{ble.CharNotify, device.PropNotify},
		{ble.CharIndicate, device.PropIndicate},
	}
	for _, m := range mapping {
		if p&m.from != 0 {
			out |= m.to
		}
	}
	return out
}
