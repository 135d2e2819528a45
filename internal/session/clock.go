package session

import "time"

// Clock supplies wall time. Signature expiry and "since" timestamps are
// computed from it, so tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
