package connection

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/internal/registry"
)

// Options are the timing and policy knobs of a Machine.
type Options struct {
	// SettleDelay is waited after the link comes up, before service discovery.
	SettleDelay time.Duration
	// ConnectTimeout bounds a single dial. Zero means no bound.
	ConnectTimeout time.Duration
	// MaxAttempts is the reconnection budget after an unexpected drop.
	MaxAttempts int
	// ReconnectDelay is waited before each reconnection attempt.
	ReconnectDelay time.Duration
	// ClearLastKnownOnUserDisconnect forgets the last-known-good address when
	// the user disconnects it.
	ClearLastKnownOnUserDisconnect bool
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		SettleDelay:    600 * time.Millisecond,
		ConnectTimeout: 30 * time.Second,
		MaxAttempts:    1,
		ReconnectDelay: 3 * time.Second,
	}
}

// Deps are the collaborators a Machine shares with the rest of the system.
type Deps struct {
	Radio       device.Radio
	Registry    *registry.Registry
	Diagnostics *observe.Diagnostics
	// Preconditions reports unmet connect preconditions (permissions, adapter power).
	Preconditions func() error
	// StopScan is invoked when a connection attempt starts.
	StopScan func()
	Logger   *logrus.Logger
}
