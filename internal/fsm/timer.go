package fsm

import "time"

// Timer is a single deadline, per §4.6: start() arms it, timeout() tests
// it. A fired timer is not self-clearing — the caller must call Start
// again to rearm it. No callbacks, no extra goroutines; the main loop
// polls.
type Timer struct {
	duration time.Duration
	deadline time.Time
	armed    bool
}

// NewTimer builds an unarmed timer with the given duration.
func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: d}
}

// Start arms the timer for duration from now.
func (t *Timer) Start() {
	t.deadline = time.Now().Add(t.duration)
	t.armed = true
}

// Timeout reports whether the timer is armed and its deadline has passed.
func (t *Timer) Timeout() bool {
	return t.armed && time.Now().After(t.deadline)
}
