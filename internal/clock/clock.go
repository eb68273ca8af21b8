// Package clock is the deadline authority for assessment sessions. All
// timeout decisions compare server time against a stored expiry; nothing
// here keeps state.
package clock

import "time"

// Clock abstracts wall-clock reads so callers can be driven deterministically.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// ExpiresAt is the deadline for a session started at startedAt.
func ExpiresAt(startedAt time.Time, durationSeconds int64) time.Time {
	return startedAt.Add(time.Duration(durationSeconds) * time.Second)
}

// Expired reports whether now is strictly past expiresAt.
func Expired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}

// RemainingSeconds is max(0, expiresAt-now) truncated to whole seconds.
func RemainingSeconds(expiresAt, now time.Time) int64 {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}
