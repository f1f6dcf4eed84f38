package ledger

import (
	"context"
	"fmt"
)

// guard is a mutex whose acquisition can be abandoned. sync.Mutex offers only
// TryLock, so a one-slot channel is used to select against ctx.Done().
type guard chan struct{}

func newGuard() guard {
	return make(guard, 1)
}

// acquire blocks until the guard is held or ctx is done.
func (g guard) acquire(ctx context.Context) error {
	// Fast path so an already expired ctx does not lose a free guard.
	select {
	case g <- struct{}{}:
		return nil
	default:
	}

	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLockTimeout, context.Cause(ctx))
	}
}

func (g guard) release() {
	<-g
}
