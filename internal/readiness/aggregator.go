// Package readiness combines adapter power, permission and location state into
// the preconditions checked before scanning and connecting.
package readiness

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/observe"
)

// State is the set of platform inputs.
type State struct {
	AdapterPowered     bool `json:"adapter_powered"`
	PermissionsGranted bool `json:"permissions_granted"`
	LocationEnabled    bool `json:"location_enabled"`
}

// Ready reports whether every input is satisfied.
func (s State) Ready() bool {
	return s.AdapterPowered && s.PermissionsGranted && s.LocationEnabled
}

// Source feeds an Aggregator until ctx ends.
type Source interface {
	Run(ctx context.Context, agg *Aggregator) error
}

// Aggregator recomputes readiness on every input change.
type Aggregator struct {
	mu     sync.Mutex
	state  *observe.Cell[State]
	ready  *observe.Cell[bool]
	logger *logrus.Logger
}

// New creates an aggregator starting from initial.
func New(initial State, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		state:  observe.NewCell(initial, observe.Equal[State]),
		ready:  observe.NewCell(initial.Ready(), observe.Equal[bool]),
		logger: logger,
	}
}

// State is the observable input set.
func (a *Aggregator) State() *observe.Cell[State] { return a.state }

// Ready is the observable conjunction of all inputs.
func (a *Aggregator) Ready() *observe.Cell[bool] { return a.ready }

func (a *Aggregator) SetAdapterPowered(on bool) {
	a.update(func(s State) State { s.AdapterPowered = on; return s })
}

func (a *Aggregator) SetPermissionsGranted(granted bool) {
	a.update(func(s State) State { s.PermissionsGranted = granted; return s })
}

func (a *Aggregator) SetLocationEnabled(enabled bool) {
	a.update(func(s State) State { s.LocationEnabled = enabled; return s })
}

// Set replaces every input at once.
func (a *Aggregator) Set(s State) {
	a.update(func(State) State { return s })
}

func (a *Aggregator) update(fn func(State) State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.state.Get()
	next := fn(prev)
	if prev == next {
		return
	}
	a.state.Set(next)
	a.ready.Set(next.Ready())

	a.logger.WithFields(logrus.Fields{
		"adapter":     next.AdapterPowered,
		"permissions": next.PermissionsGranted,
		"location":    next.LocationEnabled,
		"ready":       next.Ready(),
	}).Debug("Readiness changed")
}

// ConnectError returns the first unmet connect precondition, nil when none.
// Location is not needed once the address is known.
func (a *Aggregator) ConnectError() error {
	return a.check(false)
}

// ScanError returns the first unmet scan precondition, nil when none.
func (a *Aggregator) ScanError() error {
	return a.check(true)
}

func (a *Aggregator) check(requireLocation bool) error {
	s := a.state.Get()
	switch {
	case !s.PermissionsGranted:
		return device.ErrPermissionDenied
	case requireLocation && !s.LocationEnabled:
		return device.ErrLocationDisabled
	case !s.AdapterPowered:
		return device.ErrBluetoothOff
	default:
		return nil
	}
}

// Check maps unmet preconditions to the status they surface as, Idle when satisfied.
func (a *Aggregator) Check(requireLocation bool) device.ConnectionStatus {
	return device.StatusFor(a.check(requireLocation))
}

// Close stops publishing.
func (a *Aggregator) Close() {
	a.state.Close()
	a.ready.Close()
}
