package guard

import (
	"sync"
	"sync/atomic"
	"time"

	kerr "github.com/nestybox/kerneld/errors"
)

// LockGuard[T] is the type-state lock of spec §4.2: in its
// unlocked state it exposes only Lock/TryLock/LockTimeout; the Locked
// value returned by those calls is the only thing that exposes
// Access/With. Go has no compile-time type states, so the "state" is
// modeled as two distinct Go types sharing one underlying mutex —
// attempting to call Access on an unlocked LockGuard simply doesn't
// compile, which is the property we want.
type LockGuard[T any] struct {
	mu       sync.Mutex
	value    T
	poisoned int32
	reason   string
}

// NewLockGuard wraps value in an unlocked guard.
func NewLockGuard[T any](value T) *LockGuard[T] {
	return &LockGuard[T]{value: value}
}

// Locked is the type-state reached only by successfully locking a
// LockGuard; only it exposes Access/With/Unlock.
type Locked[T any] struct {
	g *LockGuard[T]
}

// Lock blocks until the mutex is acquired, returning the Locked
// state-token. It never fails except by poisoning, enforced before
// every Access/With.
func (g *LockGuard[T]) Lock() Locked[T] {
	g.mu.Lock()
	return Locked[T]{g: g}
}

// TryLock attempts to acquire without blocking, returning (Locked,
// true) on success or (zero, false) without consuming the guard.
func (g *LockGuard[T]) TryLock() (Locked[T], bool) {
	if g.mu.TryLock() {
		return Locked[T]{g: g}, true
	}
	return Locked[T]{}, false
}

// LockTimeout tries fast, then retries with a doubling backoff sleep
// (1µs->2µs->4µs... capped at 1ms per step) until the timeout policy
// expires.
func (g *LockGuard[T]) LockTimeout(policy TimeoutPolicy, cfg *TimeoutConfig) (Locked[T], *kerr.KernelError) {
	if l, ok := g.TryLock(); ok {
		return l, nil
	}

	tc := NewTimeoutContext(policy, "lock", cfg)
	backoff := time.Microsecond
	const capBackoff = time.Millisecond // spec: "capped at 1ms"

	for {
		if tc.Expired() {
			return Locked[T]{}, tc.Err()
		}
		time.Sleep(backoff)
		if l, ok := g.TryLock(); ok {
			return l, nil
		}
		backoff *= 2
		if backoff > capBackoff {
			backoff = capBackoff
		}
	}
}

// Poison marks the guard inactive; any holder may call it. Matches
// spec §4.2: "a lock can be poisoned by any holder."
func (g *LockGuard[T]) Poison(reason string) {
	atomic.StoreInt32(&g.poisoned, 1)
	g.reason = reason
}

// Poisoned reports whether the guard is currently poisoned.
func (g *LockGuard[T]) Poisoned() (bool, string) {
	if atomic.LoadInt32(&g.poisoned) == 1 {
		return true, g.reason
	}
	return false, ""
}

// Recover clears poisoning; callers must have reasoned about
// invariants before calling this (spec §4.2, §7's explicit-recovery
// policy for lock poisoning).
func (g *LockGuard[T]) Recover() {
	atomic.StoreInt32(&g.poisoned, 0)
	g.reason = ""
}

// Access returns a pointer to the guarded value; only reachable from
// the Locked state-token.
func (l Locked[T]) Access() (*T, *kerr.KernelError) {
	if poisoned, reason := l.g.Poisoned(); poisoned {
		return nil, kerr.Internal("lock.access", "poisoned: "+reason)
	}
	return &l.g.value, nil
}

// With runs fn with exclusive access to the guarded value.
func (l Locked[T]) With(fn func(*T)) *kerr.KernelError {
	v, err := l.Access()
	if err != nil {
		return err
	}
	fn(v)
	return nil
}

// Unlock releases the mutex, consuming the Locked token (by Go
// convention — callers must not reuse it afterwards).
func (l Locked[T]) Unlock() {
	l.g.mu.Unlock()
}
