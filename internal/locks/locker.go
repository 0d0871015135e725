// Package locks serialises read-modify-write cycles on shared resources such as the
// allowlist file.
package locks

import (
	"context"
	"errors"
)

// AllowlistKey guards every mutation of the allowlist file.
const AllowlistKey = "allowlist"

// ErrNotAcquired is returned when a lock could not be obtained before the context ended.
var ErrNotAcquired = errors.New("locks: not acquired")

// Locker hands out exclusive, per-key leases. The returned release function must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
