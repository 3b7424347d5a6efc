package services

import (
	"sync"
	"time"
)

// LayoutScheduler coalesces layout requests. Every Schedule call pushes the pending run back
// by the delay, so a burst of structural changes produces a single layout pass once the burst
// is over.
type LayoutScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	run     func()
	timer   *time.Timer
	gen     uint64
	stopped bool
	running sync.WaitGroup
}

// NewLayoutScheduler runs fn after delay. A zero delay runs fn inline on Schedule.
func NewLayoutScheduler(delay time.Duration, fn func()) *LayoutScheduler {
	return &LayoutScheduler{delay: delay, run: fn}
}

func (s *LayoutScheduler) Schedule() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.delay <= 0 {
		s.mu.Unlock()
		s.run()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
	s.mu.Unlock()
}

func (s *LayoutScheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.run()
}

// Pending reports whether a run is waiting for its delay to pass.
func (s *LayoutScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush runs a pending layout now instead of waiting for the delay.
func (s *LayoutScheduler) Flush() {
	s.mu.Lock()
	if s.timer == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.run()
}

// Stop cancels a pending run and waits for an active one to finish.
func (s *LayoutScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.running.Wait()
}
