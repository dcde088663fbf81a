package guard

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Releaser is anything a ResourceGuard can release exactly once: an IPC
// handle, an FD table entry, a memory region. Release must be
// idempotent-safe from the guard's perspective (the guard itself only
// ever calls it once), but engines are still expected to guard against
// double frees internally.
type Releaser interface {
	Release() error
	Kind() string  // "pipe", "queue", "shm", "fd", "memory-region", ...
	Ident() string // human-readable identity for logging/events
}

// ResourceGuard is the scoped-ownership contract of spec §4.2: it
// releases its resource exactly once on scope exit (Close, typically
// deferred) unless ReleaseEarly already consumed it, and it is safe to
// move across goroutines.
type ResourceGuard struct {
	mu       sync.Mutex
	released bool
	target   Releaser
	onEvent  func(kind, ident string, err error)
}

// NewResourceGuard acquires a guard over target. onEvent, if non-nil,
// is called once when the resource is released (successfully or not),
// matching spec §4.2's "emits an observability event" contract without
// this package depending on the observability package directly.
func NewResourceGuard(target Releaser, onEvent func(kind, ident string, err error)) *ResourceGuard {
	return &ResourceGuard{target: target, onEvent: onEvent}
}

// ReleaseEarly consumes the guard immediately and returns the release
// result. Calling it twice is safe; only the first call has effect.
func (g *ResourceGuard) ReleaseEarly() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true
	err := g.target.Release()
	if g.onEvent != nil {
		g.onEvent(g.target.Kind(), g.target.Ident(), err)
	}
	return err
}

// Close implements the on-drop path: it logs but swallows failures,
// matching spec §4.2's "on_drop logs but swallows failures". Intended
// to be deferred.
func (g *ResourceGuard) Close() {
	if err := g.ReleaseEarly(); err != nil {
		logrus.Warnf("resource guard: failed to release %s %s on scope exit: %v",
			g.target.Kind(), g.target.Ident(), err)
	}
}

// Released reports whether the guard has already released its
// resource, diagnostic only.
func (g *ResourceGuard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
