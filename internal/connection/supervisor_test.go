package connection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type supervisorSpy struct {
	mu         sync.Mutex
	reconnects []string
	statuses   []device.ConnectionStatus
	precond    error
	dialErr    error
}

func (s *supervisorSpy) reconnect(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects = append(s.reconnects, address)
	return s.dialErr
}

func (s *supervisorSpy) preconditions() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.precond
}

func (s *supervisorSpy) report(status device.ConnectionStatus, _ string, _ string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *supervisorSpy) snapshot() ([]string, []device.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reconnects...), append([]device.ConnectionStatus(nil), s.statuses...)
}

func newSpiedSupervisor(maxAttempts int, delay time.Duration) (*Supervisor, *supervisorSpy) {
	spy := &supervisorSpy{}
	s := newSupervisor(maxAttempts, delay, logrus.NewEntry(logrus.New()))
	s.reconnect = spy.reconnect
	s.preconditions = spy.preconditions
	s.report = spy.report
	return s, spy
}

func TestSupervisorBudget(t *testing.T) {
	// GOAL: Verify the budget allows exactly maxAttempts retries per address
	//
	// TEST SCENARIO: Schedule → attempt fires → Schedule again → exhausted, DisconnectedError reported

	s, spy := newSpiedSupervisor(1, 5*time.Millisecond)

	require.True(t, s.Schedule("aa:01"), "first drop MUST schedule a retry")
	assert.Equal(t, 1, s.Attempts("AA:01"), "counter MUST be keyed case-insensitively")
	assert.Eventually(t, func() bool {
		r, _ := spy.snapshot()
		return len(r) == 1
	}, time.Second, time.Millisecond)

	assert.False(t, s.Schedule("AA:01"), "second drop MUST exhaust the budget")
	assert.Equal(t, 0, s.Attempts("AA:01"), "exhaustion MUST clear bookkeeping")

	_, statuses := spy.snapshot()
	assert.Equal(t, []device.ConnectionStatus{device.StatusReconnecting, device.StatusDisconnectedError}, statuses)
}

func TestSupervisorZeroBudget(t *testing.T) {
	s, spy := newSpiedSupervisor(0, time.Millisecond)
	assert.False(t, s.Schedule("AA"))
	_, statuses := spy.snapshot()
	assert.Equal(t, []device.ConnectionStatus{device.StatusDisconnectedError}, statuses)
}

func TestSupervisorCancelSupersedes(t *testing.T) {
	// GOAL: Verify cancelled or superseded attempts never fire

	s, spy := newSpiedSupervisor(3, 30*time.Millisecond)

	require.True(t, s.Schedule("AA"))
	target, pending := s.Pending()
	assert.True(t, pending)
	assert.Equal(t, "AA", target)

	s.Cancel("AA")
	_, pending = s.Pending()
	assert.False(t, pending)

	require.True(t, s.Schedule("BB"))
	s.CancelAll()

	assert.Never(t, func() bool {
		r, _ := spy.snapshot()
		return len(r) > 0
	}, 100*time.Millisecond, 5*time.Millisecond, "cancelled attempts MUST NOT reconnect")
}

func TestSupervisorNewerTargetWins(t *testing.T) {
	s, spy := newSpiedSupervisor(3, 20*time.Millisecond)

	require.True(t, s.Schedule("AA"))
	require.True(t, s.Schedule("BB"))

	assert.Eventually(t, func() bool {
		r, _ := spy.snapshot()
		return len(r) == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	reconnects, _ := spy.snapshot()
	assert.Equal(t, []string{"BB"}, reconnects, "only the newest target MUST fire")
}

func TestSupervisorPreconditionRefund(t *testing.T) {
	// GOAL: Verify a blocked attempt reports the precondition status and is not counted

	s, spy := newSpiedSupervisor(1, 5*time.Millisecond)
	spy.precond = device.ErrPermissionDenied

	require.True(t, s.Schedule("AA"))
	assert.Eventually(t, func() bool {
		_, st := spy.snapshot()
		return len(st) == 2
	}, time.Second, time.Millisecond)

	reconnects, statuses := spy.snapshot()
	assert.Empty(t, reconnects)
	assert.Equal(t, device.StatusErrorPermissions, statuses[1])
	assert.Equal(t, 0, s.Attempts("AA"))
}

func TestSupervisorRejectedReconnect(t *testing.T) {
	s, spy := newSpiedSupervisor(2, 5*time.Millisecond)
	spy.dialErr = errors.New("category mismatch")

	require.True(t, s.Schedule("AA"))
	assert.Eventually(t, func() bool {
		_, st := spy.snapshot()
		return len(st) == 2
	}, time.Second, time.Millisecond)

	_, statuses := spy.snapshot()
	assert.Equal(t, device.StatusDisconnectedError, statuses[1])
	assert.Equal(t, 0, s.Attempts("AA"), "rejected attempt MUST clear bookkeeping")
}
