//go:build linux

package readiness

import (
	"context"
	"fmt"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"
)

// BlueZSource tracks org.bluez.Adapter1.Powered over the system bus.
type BlueZSource struct {
	// Adapter is the adapter object path; empty selects the first adapter BlueZ reports.
	Adapter string
	Logger  *logrus.Logger
}

// Supported reports whether this platform has a BlueZ source.
func (BlueZSource) Supported() bool { return true }

// Run primes the adapter state and follows PropertiesChanged signals until ctx ends.
func (b BlueZSource) Run(ctx context.Context, agg *Aggregator) error {
	logger := b.Logger
	if logger == nil {
		logger = logrus.New()
	}

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("readiness: connect system bus: %w", err)
	}
	defer bus.Close()

	path := dbus.ObjectPath(b.Adapter)
	if path == "" {
		if path, err = firstAdapter(bus); err != nil {
			return err
		}
	}
	log := logger.WithField("adapter", path)

	var powered dbus.Variant
	if err := bus.Object(bluezService, path).Call(propsIface+".Get", 0, adapterIface, "Powered").Store(&powered); err != nil {
		return fmt.Errorf("readiness: read %s Powered: %w", path, err)
	}
	if on, ok := powered.Value().(bool); ok {
		agg.SetAdapterPowered(on)
		log.WithField("powered", on).Debug("Adapter state primed")
	}

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := bus.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("readiness: AddMatchSignal: %w", err)
	}
	defer func() { _ = bus.RemoveMatchSignal(match...) }()

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				agg.SetAdapterPowered(false)
				return fmt.Errorf("readiness: system bus closed")
			}
			if on, changed := poweredChange(sig); changed {
				log.WithField("powered", on).Info("Adapter power changed")
				agg.SetAdapterPowered(on)
			}
		}
	}
}

func poweredChange(sig *dbus.Signal) (on bool, changed bool) {
	if sig == nil || len(sig.Body) < 2 {
		return false, false
	}
	if iface, _ := sig.Body[0].(string); iface != adapterIface {
		return false, false
	}
	props, _ := sig.Body[1].(map[string]dbus.Variant)
	v, ok := props["Powered"]
	if !ok {
		return false, false
	}
	on, ok = v.Value().(bool)
	return on, ok
}

func firstAdapter(bus *dbus.Conn) (dbus.ObjectPath, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezService, dbus.ObjectPath("/")).Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return "", fmt.Errorf("readiness: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return "", fmt.Errorf("readiness: decode GetManagedObjects: %w", err)
	}

	var first dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok && (first == "" || path < first) {
			first = path
		}
	}
	if first == "" {
		return "", fmt.Errorf("readiness: no bluetooth adapter found")
	}
	return first, nil
}
