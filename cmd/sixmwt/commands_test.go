package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/srg/sixmwt/internal/testutils"
	"github.com/srg/sixmwt/pkg/config"
	"github.com/stretchr/testify/suite"
)

const (
	testOximeter = "AA:AA:AA:AA:AA:01"
	testWearable = "BB:BB:BB:BB:BB:01"
)

// validFrame decodes to SpO2 98, heart rate 72.
var validFrame = []byte{0x84, 0x3C, 0x03, 0x48, 0x62}

const testConfig = `
scan:
  window: 150ms
connection:
  settle_delay: 10ms
readiness:
  bluez: false
`

// CommandTestSuite runs the cobra commands against a fake radio.
type CommandTestSuite struct {
	testutils.FakeRadioSuite
	configPath string
}

func (s *CommandTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()
	s.Radio.
		WithAdvertisements(
			testutils.OximeterAdvertisement(testOximeter, -40),
			testutils.WearableAdvertisement(testWearable, -60),
		).
		WithPeripheral(testOximeter, testutils.OximeterPeripheral()).
		WithPeripheral(testWearable, testutils.WearablePeripheral())

	s.configPath = filepath.Join(s.T().TempDir(), "sixmwt.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(testConfig), 0o600))

	radio := s.Radio
	radioFactory = func(*config.Config, *logrus.Logger) (device.Radio, func(), error) {
		return radio, func() {}, nil
	}

	// Reset flags before each test for proper isolation
	scanWindow, scanFormat = 0, "table"
	monitorOximeter, monitorWearable = "", ""
	monitorAuto, monitorDuration, monitorFormat = false, 0, "text"
	for name, value := range map[string]string{"config": "", "log-level": "", "verbose": "false"} {
		s.Require().NoError(rootCmd.PersistentFlags().Set(name, value))
	}
}

func (s *CommandTestSuite) TearDownTest() {
	radioFactory = newRadio
}

// execute runs the root command with args and returns what it wrote to stdout.
func (s *CommandTestSuite) execute(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--config", s.configPath))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

// records parses JSON-lines monitor output.
func (s *CommandTestSuite) records(out string) []map[string]any {
	var recs []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		s.Require().NoError(json.Unmarshal([]byte(line), &rec), "line MUST be JSON: %s", line)
		recs = append(recs, rec)
	}
	return recs
}

func hasStatus(recs []map[string]any, cat, status string) bool {
	for _, r := range recs {
		if r["kind"] == "status" && r["category"] == cat && r["status"] == status {
			return true
		}
	}
	return false
}

func (s *CommandTestSuite) TestScanJSON() {
	// GOAL: Verify scan runs for the window and prints classified devices as JSON
	//
	// TEST SCENARIO: scan --format json → two devices with their categories → radio scan ended

	out, err := s.execute("scan", "--format", "json")
	s.Require().NoError(err)

	var devices []device.ScannedDevice
	s.Require().NoError(json.Unmarshal([]byte(out), &devices), "output MUST be a JSON array")
	s.Require().Len(devices, 2)

	cats := map[string]device.Category{}
	for _, d := range devices {
		cats[d.Address] = d.Category
	}
	s.Equal(device.CategoryOximeter, cats[testOximeter])
	s.Equal(device.CategoryWearable, cats[testWearable])
	s.WaitFor(func() bool { return !s.Radio.Scanning() }, "radio scan MUST stop after the window")
}

func (s *CommandTestSuite) TestScanTable() {
	// GOAL: Verify the default table output lists the strongest device first

	out, err := s.execute("scan", "--window", "100ms")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 4, "header, separator and two devices MUST be printed")
	s.Contains(lines[2], testOximeter)
	s.Contains(lines[3], testWearable)
}

func (s *CommandTestSuite) TestScanRejectsBadFormat() {
	_, err := s.execute("scan", "--format", "xml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format")
	s.Zero(s.Radio.ScanCount(), "invalid flags MUST NOT start a scan")
}

func (s *CommandTestSuite) TestScanRejectedWithoutLocation() {
	// GOAL: Verify an unmet scan precondition fails the command with the precondition error

	s.Require().NoError(os.WriteFile(s.configPath, []byte(testConfig+"  location_enabled: false\n"), 0o600))

	_, err := s.execute("scan")
	s.Require().ErrorIs(err, device.ErrLocationDisabled)
	s.Contains(FormatUserError(err), "Location services")
}

func (s *CommandTestSuite) TestMonitorRequiresTarget() {
	_, err := s.execute("monitor")
	s.ErrorIs(err, ErrNothingToMonitor)
}

func (s *CommandTestSuite) TestMonitorStreamsReadings() {
	// GOAL: Verify monitor connects, prints status changes and decoded readings, then disconnects
	//
	// TEST SCENARIO: monitor --oximeter --format json → notifications pushed → subscribed + reading records → link closed on exit

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if l := s.Radio.LastLink(testOximeter); l != nil && l.Subscribed() {
					l.Notify(validFrame)
				}
			}
		}
	}()

	out, err := s.execute("monitor", "--oximeter", testOximeter, "--duration", "500ms", "--format", "json")
	s.Require().NoError(err)

	recs := s.records(out)
	s.True(hasStatus(recs, "oximeter", "connecting"), "connecting MUST be printed")
	s.True(hasStatus(recs, "oximeter", "subscribed"), "subscribed MUST be printed")

	var spo2 any
	for _, r := range recs {
		if r["kind"] != "reading" {
			continue
		}
		reading, _ := r["reading"].(map[string]any)
		oxi, _ := reading["oximeter"].(map[string]any)
		if oxi != nil {
			spo2 = oxi["spo2"]
		}
	}
	s.Equal(float64(98), spo2, "decoded SpO2 MUST be printed")

	link := s.Radio.LastLink(testOximeter)
	s.Require().NotNil(link)
	s.WaitFor(link.IsClosed, "exit MUST disconnect the sensor")
	s.Zero(s.Radio.ConnectCount(testWearable), "an unrequested category MUST NOT connect")
}

func (s *CommandTestSuite) TestMonitorAutoPicksBothSensors() {
	// GOAL: Verify --auto scans first and connects the strongest sensor of each category

	out, err := s.execute("monitor", "--auto", "--duration", "800ms", "--format", "json")
	s.Require().NoError(err)

	recs := s.records(out)
	s.True(hasStatus(recs, "oximeter", "subscribed"), "oximeter MUST subscribe")
	s.True(hasStatus(recs, "wearable", "subscribed"), "wearable MUST subscribe")
	s.Equal(1, s.Radio.ScanCount(), "auto mode MUST scan once")
}

func (s *CommandTestSuite) TestMonitorAutoWithoutSensors() {
	s.Radio = testutils.NewFakeRadio()
	radio := s.Radio
	radioFactory = func(*config.Config, *logrus.Logger) (device.Radio, func(), error) {
		return radio, func() {}, nil
	}

	_, err := s.execute("monitor", "--auto", "--duration", "2s")
	s.ErrorIs(err, ErrNoSensors)
}

func (s *CommandTestSuite) TestInvalidLogLevel() {
	_, err := s.execute("scan", "--log-level", "chatty")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid log level")
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
