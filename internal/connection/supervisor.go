package connection

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
)

// Supervisor schedules bounded reconnection attempts after unexpected drops.
// Each Machine owns one. A scheduled attempt fires only if it is still the
// newest one and its target address has not been superseded.
type Supervisor struct {
	maxAttempts int
	delay       time.Duration
	logger      *logrus.Entry

	// reconnect re-invokes connect for the address without resetting the budget.
	reconnect func(address string) error
	// preconditions is re-checked at fire time.
	preconditions func() error
	// report moves the machine to a status, provided no newer session exists.
	report func(status device.ConnectionStatus, address string, format string, args ...any)

	mu         sync.Mutex
	attempts   map[string]int
	target     string
	generation uint64
	timer      *time.Timer
}

func newSupervisor(maxAttempts int, delay time.Duration, logger *logrus.Entry) *Supervisor {
	return &Supervisor{
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
		attempts:    make(map[string]int),
	}
}

func supervisorKey(address string) string {
	return strings.ToUpper(address)
}

// Schedule registers an unexpected drop of address. It reports whether a
// reconnection attempt was scheduled; otherwise the budget is exhausted.
func (s *Supervisor) Schedule(address string) bool {
	k := supervisorKey(address)

	s.mu.Lock()
	if s.attempts[k] >= s.maxAttempts {
		used := s.attempts[k]
		s.clearLocked(k)
		s.mu.Unlock()

		s.report(device.StatusDisconnectedError, address,
			"reconnection gave up after %d attempt(s)", used)
		return false
	}

	s.attempts[k]++
	attempt := s.attempts[k]
	s.generation++
	gen := s.generation
	s.target = k
	if s.timer != nil {
		s.timer.Stop()
	}
	// The status must be visible before the timer can possibly fire.
	s.report(device.StatusReconnecting, address,
		"connection lost, reconnecting in %s (attempt %d/%d)", s.delay, attempt, s.maxAttempts)
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen, address) })
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address": address,
		"attempt": attempt,
		"delay":   s.delay,
	}).Info("Reconnection scheduled")
	return true
}

func (s *Supervisor) fire(gen uint64, address string) {
	k := supervisorKey(address)

	s.mu.Lock()
	if gen != s.generation || s.target != k {
		s.mu.Unlock()
		s.logger.WithField("address", address).Debug("Scheduled reconnection superseded")
		return
	}
	s.target = ""
	s.timer = nil
	s.mu.Unlock()

	if s.preconditions != nil {
		if err := s.preconditions(); err != nil {
			s.mu.Lock()
			if s.attempts[k] > 0 {
				s.attempts[k]--
			}
			s.mu.Unlock()
			s.report(device.StatusFor(err), address, "reconnection postponed: %v", err)
			return
		}
	}

	if err := s.reconnect(address); err != nil {
		s.logger.WithError(err).WithField("address", address).Warn("Reconnection attempt rejected")
		s.Cancel(address)
		s.report(device.StatusDisconnectedError, address, "reconnection failed: %v", err)
	}
}

// Cancel drops any scheduled attempt for address and forgets its counter.
func (s *Supervisor) Cancel(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(supervisorKey(address))
}

// CancelAll drops every scheduled attempt and counter.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.target = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempts = make(map[string]int)
}

func (s *Supervisor) clearLocked(k string) {
	delete(s.attempts, k)
	if s.target == k {
		s.generation++
		s.target = ""
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
}

// Attempts returns how many reconnection attempts were used for address.
func (s *Supervisor) Attempts(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[supervisorKey(address)]
}

// Pending returns the address a scheduled attempt is for.
func (s *Supervisor) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.target != ""
}
