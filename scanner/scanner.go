package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/groutine"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/internal/registry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultWindow is how long a scan session runs unless stopped earlier.
const DefaultWindow = 20 * time.Second

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device device.ScannedDevice
}

// Options configures a Scanner. Zero values select defaults.
type Options struct {
	Window     time.Duration
	Classifier *Classifier

	// Preconditions is consulted by Start; a non-nil error rejects the scan.
	Preconditions func() error
	// OnStart runs after a scan session begins.
	OnStart func()
	// OnStop runs after a scan session ends, whatever the reason.
	OnStop func()
	// OnError receives radio failures that ended a session early.
	OnError func(error)
}

// Scanner handles BLE device discovery and classification
type Scanner struct {
	radio    device.Radio
	registry *registry.Registry
	opts     Options
	logger   *logrus.Logger

	// lifecycle serializes session start and stop, hooks included.
	lifecycle sync.Mutex

	mu      sync.Mutex
	found   *orderedmap.OrderedMap[string, device.ScannedDevice]
	cancel  context.CancelFunc
	timer   *time.Timer
	session uint64

	devices  *observe.Cell[[]device.ScannedDevice]
	scanning *observe.Cell[bool]
	events   *observe.RingChannel[DeviceEvent]
}

// NewScanner creates a new BLE scanner
func NewScanner(radio device.Radio, reg *registry.Registry, opts Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier()
	}
	if reg == nil {
		reg = registry.New()
	}

	return &Scanner{
		radio:    radio,
		registry: reg,
		opts:     opts,
		logger:   logger,
		found:    orderedmap.New[string, device.ScannedDevice](),
		devices:  observe.NewCell[[]device.ScannedDevice](nil, nil),
		scanning: observe.NewCell(false, observe.Equal[bool]),
		events:   observe.NewRingChannel[DeviceEvent](100),
	}
}

// Devices is the observable list of discovered devices, in discovery order.
func (s *Scanner) Devices() *observe.Cell[[]device.ScannedDevice] {
	return s.devices
}

// Scanning is the observable "is scanning" flag.
func (s *Scanner) Scanning() *observe.Cell[bool] {
	return s.scanning
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Start begins a scan session. It is a no-op while a session is running.
// Prior results are cleared and the session stops on its own after the window.
func (s *Scanner) Start() error {
	if s.opts.Preconditions != nil {
		if err := s.opts.Preconditions(); err != nil {
			s.logger.WithError(err).Warn("Scan rejected")
			return err
		}
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		s.logger.Debug("Scan already running")
		return nil
	}
	s.session++
	session := s.session
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.found = orderedmap.New[string, device.ScannedDevice]()
	s.timer = time.AfterFunc(s.opts.Window, func() {
		if s.stopSession(session) {
			s.logger.WithField("window", s.opts.Window).Info("Scan window elapsed")
		}
	})
	s.mu.Unlock()

	s.devices.Set(nil)
	s.scanning.Set(true)
	if s.opts.OnStart != nil {
		s.opts.OnStart()
	}

	s.logger.WithField("window", s.opts.Window).Info("Starting BLE scan...")

	groutine.Go(ctx, "scanner", func(ctx context.Context) {
		err := s.radio.Scan(ctx, func(adv device.Advertisement) {
			s.handleAdvertisement(session, adv)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithError(err).Error("Scan failed")
			if s.stopSession(session) && s.opts.OnError != nil {
				s.opts.OnError(err)
			}
		}
	})
	return nil
}

// Stop ends the running scan session. It is idempotent.
func (s *Scanner) Stop() {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if s.stopSession(session) {
		s.logger.Info("Scan stopped")
	}
}

// stopSession ends the given session if it is still the running one.
func (s *Scanner) stopSession(session uint64) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if session != s.session || s.cancel == nil {
		s.mu.Unlock()
		return false
	}
	s.cancel()
	s.cancel = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	count := s.found.Len()
	s.mu.Unlock()

	s.scanning.Set(false)
	s.logger.WithField("device_count", count).Debug("BLE scan completed")
	if s.opts.OnStop != nil {
		s.opts.OnStop()
	}
	return true
}

// Clear empties the discovered list.
func (s *Scanner) Clear() {
	s.mu.Lock()
	s.found = orderedmap.New[string, device.ScannedDevice]()
	s.mu.Unlock()
	s.devices.Set(nil)
}

// Snapshot returns the discovered devices, in discovery order.
func (s *Scanner) Snapshot() []device.ScannedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scanner) snapshotLocked() []device.ScannedDevice {
	out := make([]device.ScannedDevice, 0, s.found.Len())
	for pair := s.found.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(session uint64, adv device.Advertisement) {
	addr := adv.Addr()
	if addr == "" {
		return
	}
	category := s.opts.Classifier.ClassifyAdvertisement(adv)
	rssi := adv.RSSI()

	s.mu.Lock()
	if session != s.session || s.cancel == nil {
		s.mu.Unlock()
		return
	}

	key := strings.ToUpper(addr)
	dev, existing := s.found.Get(key)
	if existing {
		dev.RSSI = &rssi
		if name := adv.LocalName(); name != "" {
			dev.Name = name
		}
		if dev.Category == device.CategoryUnknown && category != device.CategoryUnknown {
			dev.Category = category
		}
	} else {
		dev = device.ScannedDevice{
			Name:     adv.LocalName(),
			Address:  addr,
			RSSI:     &rssi,
			Category: category,
		}
	}
	s.found.Set(key, dev)
	s.devices.Set(s.snapshotLocked())

	event := DeviceEvent{Device: dev, Type: EventUpdated}
	if !existing {
		event.Type = EventNew
	}
	s.events.Send(event)
	s.mu.Unlock()

	if dev.Category != device.CategoryUnknown {
		s.registry.RegisterCategory(addr, dev.Category)
	}
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":   dev.DisplayName(),
			"address":  dev.Address,
			"rssi":     rssi,
			"category": dev.Category,
		}).Info("Discovered new device")
	}
}
