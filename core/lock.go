package core

import "context"

// Locker hands out exclusive locks on string keys.
// Lock blocks until the key is free or ctx is done. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
