package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/observe"
)

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
	labelColor = color.New(color.FgCyan)
)

const timeLayout = "15:04:05"

// displayDevicesTable prints scan results strongest signal first.
func displayDevicesTable(w io.Writer, devices []device.ScannedDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	sorted := append([]device.ScannedDevice(nil), devices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rssiOf(sorted[i]) > rssiOf(sorted[j])
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tCATEGORY\tRSSI")
	fmt.Fprintln(tw, "----\t-------\t--------\t----")
	for _, d := range sorted {
		name := d.DisplayName()
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		rssi := "-"
		if d.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *d.RSSI)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, d.Address, d.Category, rssi)
	}
	return tw.Flush()
}

func displayDevicesJSON(w io.Writer, devices []device.ScannedDevice) error {
	if devices == nil {
		devices = []device.ScannedDevice{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func rssiOf(d device.ScannedDevice) int {
	if d.RSSI == nil {
		return -1 << 15
	}
	return *d.RSSI
}

// statusColor picks the color a status is printed in.
func statusColor(s device.ConnectionStatus) *color.Color {
	switch {
	case s == device.StatusSubscribed:
		return okColor
	case s.IsError(), s == device.StatusDisconnectedError:
		return errColor
	case s == device.StatusReconnecting, s == device.StatusDisconnectedByUser:
		return warnColor
	default:
		return labelColor
	}
}

// describeReading renders a reading as a short human line.
func describeReading(r device.Reading) string {
	switch {
	case r.Oximeter != nil:
		o := r.Oximeter
		if o.NoFingerDetected {
			return "no finger detected"
		}
		parts := []string{
			"SpO2 " + optionalInt(o.SpO2, "%"),
			"HR " + optionalInt(o.HeartRate, " bpm"),
			fmt.Sprintf("signal %d", o.SignalStrength),
		}
		return strings.Join(parts, "  ")
	case r.Wearable != nil:
		if r.Wearable.TotalSteps == nil {
			return "steps --"
		}
		return fmt.Sprintf("steps %d", *r.Wearable.TotalSteps)
	default:
		return "no data"
	}
}

func optionalInt(v *int, unit string) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%d%s", *v, unit)
}

// monitorRecord is one line of monitor output.
type monitorRecord struct {
	Time     time.Time                `json:"time"`
	Kind     string                   `json:"kind"`
	Category device.Category          `json:"category"`
	Address  string                   `json:"address,omitempty"`
	Status   *device.ConnectionStatus `json:"status,omitempty"`
	Reading  *device.Reading          `json:"reading,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// recordPrinter writes monitor records as colored text or JSON lines.
type recordPrinter struct {
	w       io.Writer
	json    bool
	encoder *json.Encoder
}

func newRecordPrinter(w io.Writer, format string) *recordPrinter {
	return &recordPrinter{w: w, json: format == "json", encoder: json.NewEncoder(w)}
}

func (p *recordPrinter) status(at time.Time, cat device.Category, addr string, s device.ConnectionStatus) error {
	if p.json {
		return p.encoder.Encode(monitorRecord{Time: at, Kind: "status", Category: cat, Address: addr, Status: &s})
	}
	line := fmt.Sprintf("%s %s status %s", at.Format(timeLayout), labelColor.Sprintf("[%s]", cat), statusColor(s).Sprint(s))
	if addr != "" {
		line += " " + addr
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *recordPrinter) reading(at time.Time, r device.Reading) error {
	if r.IsEmpty() {
		return nil
	}
	if p.json {
		return p.encoder.Encode(monitorRecord{Time: at, Kind: "reading", Category: r.Category, Reading: &r})
	}
	_, err := fmt.Fprintf(p.w, "%s %s %s\n", at.Format(timeLayout), labelColor.Sprintf("[%s]", r.Category), describeReading(r))
	return err
}

func (p *recordPrinter) diagnostic(d observe.Diagnostic) error {
	if p.json {
		return p.encoder.Encode(monitorRecord{
			Time: d.Time, Kind: "diagnostic", Category: d.Category, Address: d.Address, Message: d.Message,
		})
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", d.Time.Format(timeLayout), warnColor.Sprint(d.String()))
	return err
}
