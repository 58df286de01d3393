// Package timing provides a drift-free periodic scheduler for the SV
// publisher goroutines: each tick sleeps to an accumulated absolute
// deadline instead of a fixed relative duration, so per-tick scheduling
// jitter never compounds into rate drift. Grounded on the portable
// deadline-based sleep in the core's real-time utilities; the OS-specific
// memory-locking, SCHED_FIFO, and CPU-affinity calls in that file have no
// Go equivalent worth reaching for in a userspace test tool and are not
// ported.
package timing

import "time"

// Scheduler emits ticks at a fixed period by sleeping to an absolute
// deadline that advances by exactly one period each call, rather than
// sleeping the period itself. This keeps the average tick rate accurate
// even when a given tick's work takes a variable amount of time.
type Scheduler struct {
	period   time.Duration
	deadline time.Time
}

// NewScheduler returns a Scheduler for the given tick period. The first
// call to Next sleeps until one period after construction.
func NewScheduler(period time.Duration) *Scheduler {
	return &Scheduler{period: period, deadline: time.Now().Add(period)}
}

// Next blocks until the next scheduled deadline and advances it by one
// period. If the deadline has already passed (the caller fell behind),
// it returns immediately and resynchronizes the deadline to now, rather
// than trying to burst through the missed ticks.
func (s *Scheduler) Next() {
	now := time.Now()
	if s.deadline.Before(now) {
		s.deadline = now
	}
	time.Sleep(time.Until(s.deadline))
	s.deadline = s.deadline.Add(s.period)
}

// Reset resynchronizes the schedule to start one period from now,
// discarding any accumulated drift correction.
func (s *Scheduler) Reset() {
	s.deadline = time.Now().Add(s.period)
}
