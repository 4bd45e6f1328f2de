package testutil

import (
	"sync"
	"time"
)

// ManualScheduler queues deferred callbacks until the test fires them.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []ScheduledTask
}

// ScheduledTask is one queued callback.
type ScheduledTask struct {
	Delay time.Duration
	Fn    func()
}

// Schedule queues fn.
func (s *ManualScheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, ScheduledTask{Delay: d, Fn: fn})
}

// Pending is the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Delays returns the delay of every queued callback in order.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Delay)
	}
	return out
}

// RunNext fires the oldest queued callback. It reports false when the queue
// is empty.
func (s *ManualScheduler) RunNext() bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()

	next.Fn()
	return true
}
