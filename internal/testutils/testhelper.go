package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}

func CreateMockPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder()
}

func CreateMockPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(jsonStrFmt, args...)
}

// FakeRadioSuite provides a reusable test suite with a fresh FakeRadio per test.
//
// Basic usage:
//
//	type MachineSuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func (s *MachineSuite) SetupTest() {
//	    s.FakeRadioSuite.SetupTest() // Call parent first to get a fresh radio
//	    s.Radio.WithPeripheral("AA:BB", testutils.OximeterPeripheral())
//	}
type FakeRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger
	Radio  *FakeRadio

	// Timeout bounds every WaitFor style assertion.
	Timeout time.Duration
	// Tick is the polling interval of WaitFor style assertions.
	Tick time.Duration
}

// SetupSuite initializes the helper and logger once.
func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Timeout = 2 * time.Second
	s.Tick = 5 * time.Millisecond
}

// SetupTest installs a fresh radio before each test.
func (s *FakeRadioSuite) SetupTest() {
	s.Radio = NewFakeRadio()
}

// WaitFor polls cond until it holds or the suite timeout elapses.
func (s *FakeRadioSuite) WaitFor(cond func() bool, msgAndArgs ...interface{}) bool {
	return s.Eventually(cond, s.Timeout, s.Tick, msgAndArgs...)
}

// StaysFalse asserts cond stays false for the given window.
func (s *FakeRadioSuite) StaysFalse(cond func() bool, window time.Duration, msgAndArgs ...interface{}) bool {
	return s.Never(cond, window, s.Tick, msgAndArgs...)
}
