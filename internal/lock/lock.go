// Package lock serialises work per key. Distinct keys never contend.
package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker acquires a mutual-exclusion scope for key. The returned unlock must
// be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
