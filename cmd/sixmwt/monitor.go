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
	"github.com/srg/sixmwt/internal/groutine"
	"github.com/srg/sixmwt/internal/observe"
	"github.com/srg/sixmwt/pkg/hub"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to the sensors and stream their readings",
	Long: `Connect to an oximeter, a wearable, or both, and print status changes,
decoded readings and diagnostics until interrupted.

With --auto a scan runs first and the strongest sensor of each missing
category is picked.`,
	Example: `  sixmwt monitor --oximeter 00:A0:50:12:34:56
  sixmwt monitor --auto --format json`,
	RunE: runMonitor,
}

var (
	monitorOximeter string
	monitorWearable string
	monitorAuto     bool
	monitorDuration time.Duration
	monitorFormat   string
)

func init() {
	monitorCmd.Flags().StringVar(&monitorOximeter, "oximeter", "", "Oximeter address")
	monitorCmd.Flags().StringVar(&monitorWearable, "wearable", "", "Wearable address")
	monitorCmd.Flags().BoolVar(&monitorAuto, "auto", false, "Scan and pick sensors automatically")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", "text", "Output format (text, json)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorFormat != "text" && monitorFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", monitorFormat)
	}
	if monitorOximeter == "" && monitorWearable == "" && !monitorAuto {
		return ErrNothingToMonitor
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if monitorDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	h, cleanup, err := openHub(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	targets := map[device.Category]string{}
	if monitorOximeter != "" {
		targets[device.CategoryOximeter] = monitorOximeter
	}
	if monitorWearable != "" {
		targets[device.CategoryWearable] = monitorWearable
	}

	if monitorAuto && len(targets) < len(device.Categories) {
		found, err := scanDevices(ctx, h, cfg.Scan.Window, showProgress(cmd))
		if err != nil {
			return err
		}
		for cat, addr := range pickStrongest(found) {
			if _, ok := targets[cat]; !ok {
				targets[cat] = addr
			}
		}
		if len(targets) == 0 {
			return ErrNoSensors
		}
	}

	return monitor(ctx, h, targets, newRecordPrinter(cmd.OutOrStdout(), monitorFormat))
}

// pickStrongest returns the strongest classified device of each category.
func pickStrongest(devices []device.ScannedDevice) map[device.Category]string {
	best := map[device.Category]device.ScannedDevice{}
	for _, d := range devices {
		if !d.Category.Known() {
			continue
		}
		if cur, ok := best[d.Category]; !ok || rssiOf(d) > rssiOf(cur) {
			best[d.Category] = d
		}
	}
	out := make(map[device.Category]string, len(best))
	for cat, d := range best {
		out[cat] = d.Address
	}
	return out
}

type monitorEvent struct {
	at      time.Time
	cat     device.Category
	status  *device.ConnectionStatus
	reading *device.Reading
	diag    *observe.Diagnostic
}

// pump forwards values from in to out until ctx ends or in closes.
func pump[T any](ctx context.Context, in <-chan T, out chan<- monitorEvent, wrap func(T) monitorEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- wrap(v):
			case <-ctx.Done():
				return
			}
		}
	}
}

// monitor connects every target and prints events until ctx ends, then
// disconnects everything.
func monitor(ctx context.Context, h *hub.Hub, targets map[device.Category]string, printer *recordPrinter) error {
	pumpCtx, stopPumps := context.WithCancel(ctx)
	defer stopPumps()

	events := make(chan monitorEvent, 64)

	diags, unsubscribe := h.Diagnostics().Subscribe(64)
	defer unsubscribe()
	groutine.Go(pumpCtx, "monitor-diagnostics", func(ctx context.Context) {
		pump(ctx, diags, events, func(d observe.Diagnostic) monitorEvent {
			return monitorEvent{at: d.Time, cat: d.Category, diag: &d}
		})
	})

	for _, cat := range device.Categories {
		if _, ok := targets[cat]; !ok {
			continue
		}
		cat := cat
		status, _ := h.Status(cat)
		reading, _ := h.Reading(cat)

		statuses, cancelStatus := status.Watch(observe.DefaultWatchBuffer)
		defer cancelStatus()
		readings, cancelReading := reading.Watch(observe.DefaultWatchBuffer)
		defer cancelReading()

		groutine.Go(pumpCtx, "monitor-status-"+cat.String(), func(ctx context.Context) {
			pump(ctx, statuses, events, func(s device.ConnectionStatus) monitorEvent {
				return monitorEvent{at: time.Now(), cat: cat, status: &s}
			})
		})
		groutine.Go(pumpCtx, "monitor-reading-"+cat.String(), func(ctx context.Context) {
			pump(ctx, readings, events, func(r device.Reading) monitorEvent {
				return monitorEvent{at: time.Now(), cat: cat, reading: &r}
			})
		})
	}

	for _, cat := range device.Categories {
		addr, ok := targets[cat]
		if !ok {
			continue
		}
		if err := h.Connect(addr, cat); err != nil {
			return fmt.Errorf("failed to connect %s %s: %w", cat, addr, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.DisconnectAll()
			return nil
		case ev := <-events:
			var err error
			switch {
			case ev.status != nil:
				err = printer.status(ev.at, ev.cat, targets[ev.cat], *ev.status)
			case ev.reading != nil:
				err = printer.reading(ev.at, *ev.reading)
			case ev.diag != nil:
				err = printer.diagnostic(*ev.diag)
			}
			if err != nil {
				return err
			}
		}
	}
}
