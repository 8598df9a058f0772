package nordchat

import (
	"sync"
	"time"
)

// timerFunc schedules fn after d and returns a stop function reporting
// whether fn was prevented from running.
type timerFunc func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Supervisor tracks the connection phase and decides whether a close is
// followed by a reconnect. At most one reconnect timer is armed at a time.
type Supervisor struct {
	delay    time.Duration
	schedule timerFunc
	fire     func()

	mu      sync.Mutex
	phase   ConnectionPhase
	stop    func() bool
	stopped bool
}

// NewSupervisor returns a supervisor that calls fire once delay has passed
// after an abnormal close.
func NewSupervisor(delay time.Duration, fire func()) *Supervisor {
	return &Supervisor{delay: delay, schedule: afterFunc, fire: fire, phase: PhaseClosed}
}

// Phase returns the current phase.
func (s *Supervisor) Phase() ConnectionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Connecting records that a new socket is being opened.
func (s *Supervisor) Connecting() {
	s.mu.Lock()
	s.phase = PhaseConnecting
	s.mu.Unlock()
}

// Opened records the socket's open event.
func (s *Supervisor) Opened() {
	s.mu.Lock()
	s.phase = PhaseConnected
	s.mu.Unlock()
}

// Closing records a client-initiated shutdown.
func (s *Supervisor) Closing() {
	s.mu.Lock()
	s.phase = PhaseClosing
	s.mu.Unlock()
}

// Closed records a close event and arms the reconnect timer when code is
// not a deliberate close. It reports whether a timer was armed by this call.
func (s *Supervisor) Closed(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseClosed
	if s.stopped || s.stop != nil || IsDeliberateClose(code) {
		return false
	}
	s.stop = s.schedule(s.delay, s.onTimer)
	return true
}

func (s *Supervisor) onTimer() {
	s.mu.Lock()
	if s.stopped || s.stop == nil {
		s.mu.Unlock()
		return
	}
	s.stop = nil
	s.mu.Unlock()
	s.fire()
}

// Armed reports whether a reconnect is scheduled.
func (s *Supervisor) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Stop cancels a scheduled reconnect and disables the supervisor.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}
