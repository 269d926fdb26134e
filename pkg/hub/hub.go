// Package hub is the application-facing facade. It owns one connection machine
// per category, the scanner, the readiness aggregator and the diagnostic stream,
// and wires them together over a single radio.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/connection"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/groutine"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/internal/readiness"
	"github.com/srg/sixmwt/internal/registry"
	"github.com/srg/sixmwt/scanner"
)

// Options configures a Hub.
type Options struct {
	ScanWindow  time.Duration
	Connection  connection.Options
	Profiles    connection.ProfileOptions
	Diagnostics observe.DiagnosticsConfig
	// Readiness is the initial precondition state.
	Readiness readiness.State
}

// DefaultOptions returns production defaults with every precondition assumed met.
func DefaultOptions() Options {
	return Options{
		ScanWindow: scanner.DefaultWindow,
		Connection: connection.DefaultOptions(),
		Readiness: readiness.State{
			AdapterPowered:     true,
			PermissionsGranted: true,
			LocationEnabled:    true,
		},
	}
}

// Hub manages the oximeter and wearable connections.
type Hub struct {
	radio       device.Radio
	registry    *registry.Registry
	diagnostics *observe.Diagnostics
	readiness   *readiness.Aggregator
	scanner     *scanner.Scanner
	machines    map[device.Category]*connection.Machine
	logger      *logrus.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wires a hub over radio.
func New(radio device.Radio, opts Options, logger *logrus.Logger) (*Hub, error) {
	if radio == nil {
		return nil, errors.New("hub: radio is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		radio:       radio,
		registry:    registry.New(),
		diagnostics: observe.NewDiagnostics(opts.Diagnostics, logger),
		readiness:   readiness.New(opts.Readiness, logger),
		machines:    make(map[device.Category]*connection.Machine, len(device.Categories)),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	classifier := scanner.NewClassifier(opts.Profiles.Signatures...)
	h.scanner = scanner.NewScanner(radio, h.registry, scanner.Options{
		Window:        opts.ScanWindow,
		Classifier:    classifier,
		Preconditions: h.readiness.ScanError,
		OnStart:       h.onScanStart,
		OnStop:        h.onScanStop,
		OnError:       h.onScanError,
	}, logger)

	for _, cat := range device.Categories {
		profile, err := connection.ProfileFor(cat, opts.Profiles)
		if err != nil {
			cancel()
			return nil, err
		}
		m, err := connection.NewMachine(profile, connection.Deps{
			Radio:         radio,
			Registry:      h.registry,
			Diagnostics:   h.diagnostics,
			Preconditions: h.readiness.ConnectError,
			StopScan:      h.scanner.Stop,
			Logger:        logger,
		}, opts.Connection)
		if err != nil {
			cancel()
			return nil, err
		}
		h.machines[cat] = m
	}

	h.watchAdapter()
	return h, nil
}

func (h *Hub) onScanStart() {
	for _, m := range h.machines {
		m.EnterScanning()
	}
	h.diagnostics.Infof(device.CategoryUnknown, "", "scanning")
}

func (h *Hub) onScanStop() {
	for _, m := range h.machines {
		m.LeaveScanning()
	}
}

func (h *Hub) onScanError(err error) {
	h.diagnostics.Errorf(device.CategoryUnknown, "", "scan failed: %v", err)
	if errors.Is(err, device.ErrBluetoothOff) {
		h.readiness.SetAdapterPowered(false)
	}
}

// watchAdapter tears every connection down when the adapter powers off.
func (h *Hub) watchAdapter() {
	updates, stop := h.readiness.State().Watch(observe.DefaultWatchBuffer)
	powered := h.readiness.State().Get().AdapterPowered

	h.wg.Add(1)
	groutine.Go(h.ctx, "hub-adapter-watch", func(ctx context.Context) {
		defer h.wg.Done()
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				if powered && !st.AdapterPowered {
					h.logger.Warn("Bluetooth adapter powered off, dropping all connections")
					h.scanner.Stop()
					h.disconnectAll(device.StatusErrorBluetoothDisabled)
				}
				powered = st.AdapterPowered
			}
		}
	})
}

// RunReadiness starts readiness sources. Each runs until the hub is closed.
func (h *Hub) RunReadiness(sources ...readiness.Source) {
	for i, src := range sources {
		src := src
		h.wg.Add(1)
		groutine.Go(h.ctx, fmt.Sprintf("readiness-%d", i), func(ctx context.Context) {
			defer h.wg.Done()
			if err := src.Run(ctx, h.readiness); err != nil && ctx.Err() == nil {
				h.logger.WithError(err).Warn("Readiness source stopped")
				h.diagnostics.Warnf(device.CategoryUnknown, "", "readiness source stopped: %v", err)
			}
		})
	}
}

func (h *Hub) machine(cat device.Category) (*connection.Machine, error) {
	m, ok := h.machines[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownCategory, cat)
	}
	return m, nil
}

// StartScan begins a discovery session. Unmet preconditions are surfaced on
// every idle category and returned.
func (h *Hub) StartScan() error {
	err := h.scanner.Start()
	if err != nil {
		for _, m := range h.machines {
			m.RejectScan(err)
		}
	}
	return err
}

func (h *Hub) StopScan() { h.scanner.Stop() }

func (h *Hub) ClearDevices() { h.scanner.Clear() }

// Connect starts a connection to address as cat. CategoryUnknown uses the
// category learned during scanning.
func (h *Hub) Connect(address string, cat device.Category) error {
	if address == "" {
		h.diagnostics.Errorf(cat, "", "cannot connect: %v", device.ErrEmptyAddress)
		return device.ErrEmptyAddress
	}
	if cat == device.CategoryUnknown {
		cat = h.registry.LookupCategory(address)
	}
	m, err := h.machine(cat)
	if err != nil {
		h.diagnostics.Errorf(cat, address, "cannot connect: no category known for %s, scan first or choose one", address)
		return err
	}
	return m.Connect(address)
}

// Disconnect is a user-initiated disconnect of address.
func (h *Hub) Disconnect(address string) error {
	for _, m := range h.machines {
		if active := m.ActiveAddress(); active != "" && sameAddress(active, address) {
			m.Disconnect(address)
			return nil
		}
	}
	m, err := h.machine(h.registry.LookupCategory(address))
	if err != nil {
		return err
	}
	m.Disconnect(address)
	return nil
}

// DisconnectAll disconnects both categories on user request.
func (h *Hub) DisconnectAll() {
	for _, m := range h.machines {
		if active := m.ActiveAddress(); active != "" {
			h.registry.MarkUserDisconnect(active)
		}
	}
	h.disconnectAll(device.StatusDisconnectedByUser)
}

func (h *Hub) disconnectAll(final device.ConnectionStatus) {
	for _, cat := range device.Categories {
		h.machines[cat].DisconnectAll(final)
	}
}

// Devices is the observable scan result list.
func (h *Hub) Devices() *observe.Cell[[]device.ScannedDevice] { return h.scanner.Devices() }

// Scanning is the observable scan flag.
func (h *Hub) Scanning() *observe.Cell[bool] { return h.scanner.Scanning() }

// Ready is the observable readiness flag.
func (h *Hub) Ready() *observe.Cell[bool] { return h.readiness.Ready() }

// Readiness exposes the aggregator so platform code can feed it.
func (h *Hub) Readiness() *readiness.Aggregator { return h.readiness }

func (h *Hub) Diagnostics() *observe.Diagnostics { return h.diagnostics }

func (h *Hub) Registry() *registry.Registry { return h.registry }

// Machine returns the connection machine of cat.
func (h *Hub) Machine(cat device.Category) (*connection.Machine, error) { return h.machine(cat) }

func (h *Hub) Status(cat device.Category) (*observe.Cell[device.ConnectionStatus], error) {
	m, err := h.machine(cat)
	if err != nil {
		return nil, err
	}
	return m.Status(), nil
}

func (h *Hub) ConnectedDevice(cat device.Category) (*observe.Cell[string], error) {
	m, err := h.machine(cat)
	if err != nil {
		return nil, err
	}
	return m.ConnectedDevice(), nil
}

func (h *Hub) Reading(cat device.Category) (*observe.Cell[device.Reading], error) {
	m, err := h.machine(cat)
	if err != nil {
		return nil, err
	}
	return m.Reading(), nil
}

func (h *Hub) LastKnownAddress(cat device.Category) (*observe.Cell[string], error) {
	m, err := h.machine(cat)
	if err != nil {
		return nil, err
	}
	return m.LastKnownAddress(), nil
}

// Close stops scanning, disconnects everything and releases all observables.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.scanner.Stop()
		h.cancel()
		for _, m := range h.machines {
			m.Close()
		}
		h.wg.Wait()
		h.readiness.Close()
		h.diagnostics.Close()
		h.logger.Debug("Hub closed")
	})
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
