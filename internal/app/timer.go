package app

import "time"

// DefaultQuestionDuration is the countdown for each question.
const DefaultQuestionDuration = 30 * time.Second

// Timer is the countdown for the current question. It never blocks; the
// owner polls it on a fixed cadence.
type Timer struct {
	duration time.Duration
	deadline time.Time
	expired  bool
}

// NewTimer builds a timer armed at now.
func NewTimer(duration time.Duration, now time.Time) *Timer {
	if duration <= 0 {
		duration = DefaultQuestionDuration
	}
	t := &Timer{duration: duration}
	t.Arm(now)
	return t
}

// Arm restarts the countdown from now.
func (t *Timer) Arm(now time.Time) {
	t.deadline = now.Add(t.duration)
	t.expired = false
}

// Remaining is the time left, clamped at zero.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if t.expired {
		return 0
	}
	left := t.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Poll flips the timer to expired the first time now reaches the deadline
// and reports whether it is expired. Later calls keep reporting true.
func (t *Timer) Poll(now time.Time) bool {
	if !t.expired && !now.Before(t.deadline) {
		t.expired = true
	}
	return t.expired
}

// Expired reports the flag without consulting the clock.
func (t *Timer) Expired() bool {
	return t.expired
}

// Deadline is the absolute expiry time.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}
