//go:build !linux

package waitqueue

import "sync/atomic"

// defaultStrategy falls back to the cross-platform Condvar strategy
// where the real futex(2) syscall isn't available, the same way the
// teacher's process/capability package falls back to a no-op
// implementation behind a `!linux` build tag.
func defaultStrategy() Strategy { return StrategyCondvar }

// futexSet has no OS-level futex to poke outside Linux; the waiter's
// channel close is the only wake mechanism here.
func futexSet(word *int32) {
	atomic.StoreInt32(word, 1)
}
