package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/pkg/hub"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for oximeters and step counters",
	Long: `Scan for nearby BLE peripherals and classify them as oximeter, wearable or unknown.

The scan runs for the configured window (20s by default) or until interrupted,
then prints the discovered devices strongest signal first.`,
	RunE: runScan,
}

var (
	scanWindow time.Duration
	scanFormat string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanWindow, "window", "w", 0, "Scan window (defaults to the configured window)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if scanWindow < 0 {
		return fmt.Errorf("invalid window %s: must not be negative", scanWindow)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if scanWindow > 0 {
		cfg.Scan.Window = scanWindow
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cleanup, err := openHub(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	devices, err := scanDevices(ctx, h, cfg.Scan.Window, showProgress(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return displayDevicesJSON(out, devices)
	}
	return displayDevicesTable(out, devices)
}

// scanDevices runs one scan session to completion and returns what it found.
// Cancelling ctx stops the scan early and keeps the partial result.
func scanDevices(ctx context.Context, h *hub.Hub, window time.Duration, progress bool) ([]device.ScannedDevice, error) {
	updates, cancel := h.Scanning().Watch(observe.DefaultWatchBuffer)
	defer cancel()

	if err := h.StartScan(); err != nil {
		return nil, err
	}

	if progress {
		p := NewCountdownPrinter(os.Stderr, "Scanning for sensors", window, func() int {
			return len(h.Devices().Get())
		})
		p.Start()
		defer p.Stop()
	}

	for h.Scanning().Get() {
		select {
		case <-ctx.Done():
			h.StopScan()
			return h.Devices().Get(), nil
		case <-updates:
		}
	}
	return h.Devices().Get(), nil
}

// showProgress reports whether a countdown should be drawn on stderr.
func showProgress(cmd *cobra.Command) bool {
	if cmd.ErrOrStderr() != os.Stderr {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
