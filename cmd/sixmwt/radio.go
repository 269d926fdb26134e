package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/device/goble"
	"github.com/srg/sixmwt/internal/device/tinyble"
	"github.com/srg/sixmwt/internal/readiness"
	"github.com/srg/sixmwt/pkg/config"
	"github.com/srg/sixmwt/pkg/hub"
)

// radioFactory opens the configured backend. Tests replace it with a fake radio.
var radioFactory = newRadio

func newRadio(cfg *config.Config, logger *logrus.Logger) (device.Radio, func(), error) {
	switch cfg.Radio.Backend {
	case config.BackendTinyGo:
		r, err := tinyble.NewRadio(cfg.ServiceUUIDs(), logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	case config.BackendGoBLE, "":
		r := goble.NewRadio(logger)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.WithError(err).Debug("Failed to stop BLE device")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported radio backend %q", cfg.Radio.Backend)
	}
}

// readinessSources returns the inputs feeding the precondition aggregator.
func readinessSources(cfg *config.Config, logger *logrus.Logger) []readiness.Source {
	bluez := readiness.BlueZSource{Adapter: cfg.Radio.Adapter, Logger: logger}
	live := cfg.Readiness.BlueZ && bluez.Supported()

	sources := []readiness.Source{readiness.StaticSource{
		State: readiness.State{
			AdapterPowered:     true,
			PermissionsGranted: cfg.Readiness.PermissionsGranted,
			LocationEnabled:    cfg.Readiness.LocationEnabled,
		},
		KeepAdapter: live,
	}}
	if live {
		sources = append(sources, bluez)
	}
	return sources
}

// openHub builds the hub over the configured radio. The returned cleanup closes both.
func openHub(cfg *config.Config, logger *logrus.Logger) (*hub.Hub, func(), error) {
	radio, closeRadio, err := radioFactory(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open BLE radio: %w", err)
	}

	h, err := hub.New(radio, cfg.HubOptions(), logger)
	if err != nil {
		closeRadio()
		return nil, nil, err
	}
	h.RunReadiness(readinessSources(cfg, logger)...)

	return h, func() {
		h.Close()
		closeRadio()
	}, nil
}
