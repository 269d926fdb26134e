// Package connection runs one connection state machine per device category and
// recovers unexpected drops through a bounded reconnection supervisor.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/groutine"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/internal/registry"
)

// errNotNotifiable marks a characteristic that lacks notify and indicate.
var errNotNotifiable = errors.New("characteristic does not support notifications")

type origin int

const (
	originUser origin = iota
	originReconnect
)

func (o origin) String() string {
	if o == originReconnect {
		return "reconnect"
	}
	return "user"
}

// session is one connection attempt. Callbacks carrying a session that is no
// longer current are stale and dropped.
type session struct {
	id      ulid.ULID
	address string
	origin  origin
	ctx     context.Context
	cancel  context.CancelFunc
	link    device.Link
}

// Machine is the connection state machine of one category.
type Machine struct {
	category device.Category
	profile  Profile
	opts     Options
	deps     Deps
	logger   *logrus.Entry
	now      func() time.Time

	supervisor *Supervisor

	mu      sync.Mutex
	current *session
	pending string
	closed  bool

	status    *observe.Cell[device.ConnectionStatus]
	connected *observe.Cell[string]
	reading   *observe.Cell[device.Reading]
	lastKnown *observe.Cell[string]
}

// NewMachine creates the machine for profile's category.
func NewMachine(profile Profile, deps Deps, opts Options) (*Machine, error) {
	if profile == nil {
		return nil, device.ErrUnknownCategory
	}
	if deps.Radio == nil {
		return nil, errors.New("connection: radio is required")
	}
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = observe.NewDiagnostics(observe.DiagnosticsConfig{}, deps.Logger)
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}

	cat := profile.Category()
	m := &Machine{
		category:  cat,
		profile:   profile,
		opts:      opts,
		deps:      deps,
		logger:    deps.Logger.WithField("category", cat),
		now:       time.Now,
		status:    observe.NewCell(device.StatusIdle, observe.Equal[device.ConnectionStatus]),
		connected: observe.NewCell("", observe.Equal[string]),
		reading:   observe.NewCell[device.Reading](device.EmptyReading(cat), nil),
		lastKnown: observe.NewCell("", observe.Equal[string]),
	}

	m.supervisor = newSupervisor(opts.MaxAttempts, opts.ReconnectDelay, m.logger)
	m.supervisor.reconnect = func(address string) error { return m.connect(address, originReconnect) }
	m.supervisor.preconditions = deps.Preconditions
	m.supervisor.report = m.reportIdle
	return m, nil
}

func (m *Machine) Category() device.Category { return m.category }

// Status is the observable connection status.
func (m *Machine) Status() *observe.Cell[device.ConnectionStatus] { return m.status }

// ConnectedDevice is the observable address of the live link, "" when none.
func (m *Machine) ConnectedDevice() *observe.Cell[string] { return m.connected }

// Reading is the observable latest decoded reading.
func (m *Machine) Reading() *observe.Cell[device.Reading] { return m.reading }

// LastKnownAddress is the observable last address that reached Subscribed.
func (m *Machine) LastKnownAddress() *observe.Cell[string] { return m.lastKnown }

// Supervisor exposes the reconnection bookkeeping.
func (m *Machine) Supervisor() *Supervisor { return m.supervisor }

// Connect starts a user-initiated connection to address. It returns once the
// attempt is accepted; progress is observable through Status.
func (m *Machine) Connect(address string) error {
	return m.connect(address, originUser)
}

func (m *Machine) connect(address string, from origin) error {
	if address == "" {
		return device.ErrEmptyAddress
	}
	log := m.logger.WithFields(logrus.Fields{"address": address, "origin": from})

	if m.deps.Preconditions != nil {
		if err := m.deps.Preconditions(); err != nil {
			m.reportIdle(device.StatusFor(err), address, "cannot connect: %v", err)
			return err
		}
	}

	if holder := m.deps.Registry.ClaimedBy(address); holder != device.CategoryUnknown && holder != m.category {
		return m.rejectClaimed(address, holder)
	}

	if from == originReconnect && m.deps.Registry.IsUserDisconnect(address) {
		log.Debug("Reconnection dropped, user disconnected meanwhile")
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return device.ErrClosed
	}
	cur := m.current
	m.mu.Unlock()

	if cur != nil {
		if from == originReconnect {
			log.Debug("Reconnection superseded by a newer session")
			return nil
		}
		if sameAddress(cur.address, address) {
			m.deps.Diagnostics.Infof(m.category, address, "already connecting or connected")
			return nil
		}
		m.deps.Diagnostics.Infof(m.category, cur.address, "replaced by %s", address)
		m.Disconnect(cur.address)
	}

	if m.deps.StopScan != nil {
		m.deps.StopScan()
	}

	if from == originUser {
		m.deps.Registry.ClearUserDisconnect(address)
		m.supervisor.CancelAll()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      ulid.Make(),
		address: address,
		origin:  from,
		ctx:     ctx,
		cancel:  cancel,
	}

	m.mu.Lock()
	if m.closed || m.current != nil {
		// Lost a race with a concurrent connect.
		m.mu.Unlock()
		cancel()
		if m.closed {
			return device.ErrClosed
		}
		return device.ErrAlreadyConnected
	}
	if holder, ok := m.deps.Registry.Claim(address, m.category); !ok {
		m.mu.Unlock()
		cancel()
		return m.rejectClaimed(address, holder)
	}
	m.current = s
	m.pending = address
	m.reading.Set(device.EmptyReading(m.category))
	m.status.Set(device.StatusConnecting)
	m.mu.Unlock()

	log.WithField("session", s.id).Info("Connecting")
	m.deps.Diagnostics.Infof(m.category, address, "connecting")

	groutine.Go(ctx, fmt.Sprintf("%s-session-%s", m.category, s.id), func(ctx context.Context) {
		m.run(s)
	})
	return nil
}

func (m *Machine) rejectClaimed(address string, holder device.Category) error {
	m.deps.Diagnostics.Errorf(m.category, address, "device is in use as %s", holder)
	return fmt.Errorf("%w: %s is in use as %s", device.ErrCategoryMismatch, address, holder)
}

func (m *Machine) run(s *session) {
	log := m.logger.WithFields(logrus.Fields{"address": s.address, "session": s.id})

	dialCtx := s.ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(s.ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	link, err := m.deps.Radio.Connect(dialCtx, s.address)
	if err != nil {
		if s.ctx.Err() != nil {
			log.Debug("Dial finished after session ended")
			return
		}
		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			m.abort(s, device.StatusErrorDeviceNotFound, err)
			return
		}
		if device.IsConnectionState(err, device.BluetoothOff) {
			m.abort(s, device.StatusErrorBluetoothDisabled, err)
			return
		}
		log.WithError(err).Warn("Connect failed")
		m.lost(s, fmt.Errorf("connect failed: %w", err))
		return
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		log.Debug("Stale connect result, closing link")
		m.closeLink(link, log)
		return
	}
	s.link = link
	m.deps.Registry.BindConnection(s.address, link)
	m.connected.Set(s.address)
	m.status.Set(device.StatusConnected)
	m.mu.Unlock()

	m.supervisor.Cancel(s.address)
	log.Info("Connected")
	m.deps.Diagnostics.Infof(m.category, s.address, "connected, discovering services")

	if !m.wait(s, link, m.opts.SettleDelay) {
		return
	}
	if !m.isCurrent(s, link) {
		log.Debug("Stale session after settle delay")
		return
	}

	char, err := m.resolve(s, link)
	if err != nil {
		if m.linkDropped(link) {
			m.lost(s, err)
			return
		}
		status := device.StatusFor(err)
		if errors.Is(err, errNotNotifiable) {
			status = device.StatusErrorSubscribeFailed
		}
		m.abort(s, status, err)
		return
	}

	err = link.EnableNotifications(s.ctx, char, func(data []byte) {
		m.onNotification(s, link, data)
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if m.linkDropped(link) {
			m.lost(s, err)
			return
		}
		m.abort(s, device.StatusErrorSubscribeFailed, fmt.Errorf("enable notifications: %w", err))
		return
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		log.Debug("Stale subscribe result")
		return
	}
	m.pending = ""
	m.lastKnown.Set(s.address)
	m.status.Set(device.StatusSubscribed)
	m.mu.Unlock()

	log.Info("Subscribed")
	m.deps.Diagnostics.Infof(m.category, s.address, "streaming %s data", m.category)

	select {
	case <-s.ctx.Done():
	case <-link.Disconnected():
		m.lost(s, errors.New("link lost"))
	}
}

// resolve discovers the category's characteristic and checks it can notify.
func (m *Machine) resolve(s *session, link device.Link) (device.Characteristic, error) {
	sig := m.profile.Signature()

	services, err := link.DiscoverServices(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("service discovery: %w", err)
	}
	svc, err := device.FindService(services, sig.ServiceUUID)
	if err != nil {
		return nil, err
	}
	char, err := device.FindCharacteristic(svc, sig.CharacteristicUUID)
	if err != nil {
		return nil, err
	}
	if !char.Properties().CanNotify() {
		return nil, fmt.Errorf("%w: %s", errNotNotifiable, device.ShortenUUID(char.UUID()))
	}
	if !device.HasDescriptor(char, m.profile.DescriptorUUID()) {
		return nil, &device.NotFoundError{Resource: "descriptor", UUIDs: []string{char.UUID(), m.profile.DescriptorUUID()}}
	}
	return char, nil
}

// wait sleeps d unless the session ends or the link drops first.
func (m *Machine) wait(s *session, link device.Link, d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	case <-link.Disconnected():
		m.lost(s, errors.New("link lost while settling"))
		return false
	}
}

func (m *Machine) linkDropped(link device.Link) bool {
	select {
	case <-link.Disconnected():
		return true
	default:
		return false
	}
}

func (m *Machine) onNotification(s *session, link device.Link, data []byte) {
	if !m.isCurrent(s, link) {
		m.logger.WithFields(logrus.Fields{"address": s.address, "session": s.id}).Debug("Dropping stale notification")
		return
	}

	reading, ok, report := m.profile.Decode(data, m.now())
	if report.Err != nil {
		m.deps.Diagnostics.EmitLimited(m.category, s.address, logrus.WarnLevel, "bad payload: %v", report.Err)
	}
	if report.Desynced > 0 {
		m.deps.Diagnostics.EmitLimited(m.category, s.address, logrus.WarnLevel,
			"skipped %d desynchronized frame(s)", report.Desynced)
	}
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s && m.status.Get() == device.StatusSubscribed {
		m.reading.Set(reading)
	}
}

func (m *Machine) isCurrent(s *session, link device.Link) bool {
	m.mu.Lock()
	current := m.current == s
	m.mu.Unlock()
	return current && m.deps.Registry.IsCurrent(s.address, link)
}

// abort tears the session down to a terminal error without reconnection.
func (m *Machine) abort(s *session, status device.ConnectionStatus, err error) {
	if m.teardown(s, status) {
		m.logger.WithError(err).WithFields(logrus.Fields{"address": s.address, "status": status}).Warn("Connection failed")
		m.deps.Diagnostics.Errorf(m.category, s.address, "%s: %v", status, err)
	}
}

// lost handles dial failures and unexpected drops.
func (m *Machine) lost(s *session, cause error) {
	if m.deps.Registry.IsUserDisconnect(s.address) {
		if m.teardown(s, device.StatusDisconnectedByUser) {
			m.deps.Diagnostics.Infof(m.category, s.address, "disconnected")
		}
		return
	}

	if !m.teardown(s, device.StatusDisconnectedError) {
		return
	}
	m.logger.WithError(cause).WithField("address", s.address).Warn("Connection lost")
	m.deps.Diagnostics.Warnf(m.category, s.address, "%v", cause)
	m.supervisor.Schedule(s.address)
}

// teardown releases the session's link and publishes final. It reports
// whether s was still current; a stale session changes nothing.
func (m *Machine) teardown(s *session, final device.ConnectionStatus) bool {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return false
	}
	m.current = nil
	m.pending = ""
	s.cancel()
	m.deps.Registry.Release(s.address, m.category)

	link := s.link
	if link != nil && m.deps.Registry.IsCurrent(s.address, link) {
		m.deps.Registry.UnbindConnection(s.address)
	}
	m.reading.Set(device.EmptyReading(m.category))
	m.connected.Set("")
	m.status.Set(final)
	m.mu.Unlock()

	m.profile.Reset()
	if link != nil {
		m.closeLink(link, m.logger.WithFields(logrus.Fields{"address": s.address, "session": s.id}))
	}
	return true
}

func (m *Machine) closeLink(link device.Link, log *logrus.Entry) {
	if err := link.Close(); err != nil {
		log.WithError(err).Debug("Ignoring link close error")
	}
}

// reportIdle publishes status only while no session is active.
func (m *Machine) reportIdle(status device.ConnectionStatus, address string, format string, args ...any) {
	m.mu.Lock()
	applied := m.current == nil && !m.closed
	if applied {
		m.status.Set(status)
	}
	m.mu.Unlock()

	if !applied {
		return
	}
	level := logrus.InfoLevel
	if status.IsError() || status == device.StatusDisconnectedError {
		level = logrus.WarnLevel
	}
	m.deps.Diagnostics.Emit(m.category, address, level, format, args...)
}

// Disconnect is a user-initiated disconnect of address. It never triggers reconnection.
func (m *Machine) Disconnect(address string) {
	m.deps.Registry.MarkUserDisconnect(address)
	m.supervisor.Cancel(address)

	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	switch {
	case s != nil && sameAddress(s.address, address):
		m.teardown(s, device.StatusDisconnectedByUser)
	case s == nil:
		m.mu.Lock()
		if m.current == nil && !m.closed {
			m.reading.Set(device.EmptyReading(m.category))
			m.connected.Set("")
			m.status.Set(device.StatusDisconnectedByUser)
		}
		m.mu.Unlock()
	default:
		m.logger.WithField("address", address).Debug("Disconnect for an address this category is not using")
		return
	}

	if m.opts.ClearLastKnownOnUserDisconnect && sameAddress(m.lastKnown.Get(), address) {
		m.lastKnown.Set("")
	}
	m.logger.WithField("address", address).Info("Disconnected by user")
	m.deps.Diagnostics.Infof(m.category, address, "disconnected by user")
}

// DisconnectAll tears down whatever this category holds and forces final.
// Reconnection is cancelled and the last-known-good address is retained.
func (m *Machine) DisconnectAll(final device.ConnectionStatus) {
	m.supervisor.CancelAll()

	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s != nil && m.teardown(s, final) {
		m.deps.Diagnostics.Warnf(m.category, s.address, "connection closed: %s", final)
		return
	}

	m.mu.Lock()
	if m.current == nil && !m.closed {
		m.status.Set(final)
	}
	m.mu.Unlock()
}

// EnterScanning moves an idle category to Scanning when a scan starts.
func (m *Machine) EnterScanning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil && m.status.Get().CanStartScanning() {
		m.status.Set(device.StatusScanning)
	}
}

// RejectScan surfaces a refused scan on an idle category.
func (m *Machine) RejectScan(err error) {
	m.reportIdle(device.StatusFor(err), "", "cannot scan: %v", err)
}

// LeaveScanning reverts Scanning to Idle when a scan ends.
func (m *Machine) LeaveScanning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Get() == device.StatusScanning {
		m.status.Set(device.StatusIdle)
	}
}

// PendingAddress returns the address being connected, "" when none.
func (m *Machine) PendingAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// ActiveAddress returns the address of the current session, "" when none.
func (m *Machine) ActiveAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.address
}

// Close disconnects and stops publishing. The machine cannot be reused.
func (m *Machine) Close() {
	m.supervisor.CancelAll()

	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s != nil {
		m.deps.Registry.MarkUserDisconnect(s.address)
		m.teardown(s, device.StatusDisconnectedByUser)
	}

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.status.Close()
	m.connected.Close()
	m.reading.Close()
	m.lastKnown.Close()
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
