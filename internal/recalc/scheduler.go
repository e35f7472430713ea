// Package recalc debounces estimate changes before pricing runs.
package recalc

import (
	"sync"
	"time"
)

// DefaultQuiet is the quiet period used when none is configured.
const DefaultQuiet = time.Second

// Scheduler calls fire once the quiet period has elapsed since the last
// Touch. Every Touch restarts the period.
type Scheduler struct {
	quiet time.Duration
	fire  func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func New(quiet time.Duration, fire func()) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Scheduler{quiet: quiet, fire: fire}
}

// Touch records a change and restarts the quiet period.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.quiet, func() {
		s.mu.Lock()
		if s.stopped || s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.fire()
	})
}

// Pending reports whether a fire is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any scheduled fire. A stopped scheduler ignores Touch.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
