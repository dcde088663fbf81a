// Package guard implements scoped-ownership resources (spec §4.2,
// §C3): a guard returned by an Acquire call releases its resource
// exactly once, either on explicit ReleaseEarly or via a finalizer-like
// Close called from a deferred cleanup. It also carries the timeout
// policy machinery shared by locks, IPC waits and blocking syscalls.
package guard

import (
	"time"

	kerr "github.com/nestybox/kerneld/errors"
)

// Category names the six timeout policy kinds, None included (spec
// §4.2).
type Category int

const (
	CategoryNone Category = iota
	CategoryLock
	CategoryIpc
	CategoryIo
	CategoryTask
	CategoryCustom
)

func (c Category) String() string {
	switch c {
	case CategoryLock:
		return "lock"
	case CategoryIpc:
		return "ipc"
	case CategoryIo:
		return "io"
	case CategoryTask:
		return "task"
	case CategoryCustom:
		return "custom"
	default:
		return "none"
	}
}

// Category-specific defaults (spec §4.2).
const (
	DefaultLockTimeout = 50 * time.Millisecond
	DefaultIpcTimeout  = 10 * time.Second
	DefaultIoTimeout   = 30 * time.Second
	DefaultTaskTimeout = 60 * time.Second
)

// TimeoutPolicy pairs a category with a concrete duration; None carries
// no duration and never expires.
type TimeoutPolicy struct {
	Category Category
	Duration time.Duration
}

func NonePolicy() TimeoutPolicy { return TimeoutPolicy{Category: CategoryNone} }

func LockPolicy(d time.Duration) TimeoutPolicy  { return TimeoutPolicy{CategoryLock, d} }
func IpcPolicy(d time.Duration) TimeoutPolicy   { return TimeoutPolicy{CategoryIpc, d} }
func IoPolicy(d time.Duration) TimeoutPolicy    { return TimeoutPolicy{CategoryIo, d} }
func TaskPolicy(d time.Duration) TimeoutPolicy  { return TimeoutPolicy{CategoryTask, d} }
func CustomPolicy(d time.Duration) TimeoutPolicy { return TimeoutPolicy{CategoryCustom, d} }

// DefaultPolicy returns the category default duration for the given
// category, used when a caller asks for a category but not a specific
// duration.
func DefaultPolicy(cat Category) TimeoutPolicy {
	switch cat {
	case CategoryLock:
		return LockPolicy(DefaultLockTimeout)
	case CategoryIpc:
		return IpcPolicy(DefaultIpcTimeout)
	case CategoryIo:
		return IoPolicy(DefaultIoTimeout)
	case CategoryTask:
		return TaskPolicy(DefaultTaskTimeout)
	default:
		return NonePolicy()
	}
}

// TimeoutConfig is a profile that can disable all timeouts (tests) or
// override a category's default duration.
type TimeoutConfig struct {
	Disabled  bool
	Overrides map[Category]time.Duration
}

// NewTimeoutConfig returns the ambient (enabled, no overrides) config.
func NewTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{Overrides: make(map[Category]time.Duration)}
}

// Disable returns a config with every timeout disabled, used by tests
// that want deterministic, non-flaky blocking behaviour.
func Disable() *TimeoutConfig {
	return &TimeoutConfig{Disabled: true}
}

// Resolve applies the config to a policy, returning the effective
// duration (0 meaning "no timeout").
func (c *TimeoutConfig) Resolve(p TimeoutPolicy) time.Duration {
	if c == nil {
		return p.Duration
	}
	if c.Disabled {
		return 0
	}
	if d, ok := c.Overrides[p.Category]; ok {
		return d
	}
	return p.Duration
}

// TimeoutContext bundles a policy with the instant it started, the way
// spec §4.2 describes: "bundles policy + start instant and produces a
// Timeout error when expired."
type TimeoutContext struct {
	Policy       TimeoutPolicy
	ResourceType string
	Start        time.Time
	cfg          *TimeoutConfig
}

// NewTimeoutContext starts a new timeout window for the given resource
// type (e.g. "pipe", "queue", "shm").
func NewTimeoutContext(policy TimeoutPolicy, resourceType string, cfg *TimeoutConfig) *TimeoutContext {
	return &TimeoutContext{Policy: policy, ResourceType: resourceType, Start: time.Now(), cfg: cfg}
}

// Duration returns the effective timeout duration after applying cfg.
func (tc *TimeoutContext) Duration() time.Duration {
	return tc.cfg.Resolve(tc.Policy)
}

// Expired reports whether the context's window has elapsed.
func (tc *TimeoutContext) Expired() bool {
	d := tc.Duration()
	if d <= 0 {
		return false
	}
	return time.Since(tc.Start) >= d
}

// Err builds the Timeout error spec §4.2 describes, carrying elapsed
// and configured durations in milliseconds.
func (tc *TimeoutContext) Err() *kerr.KernelError {
	elapsedMs := time.Since(tc.Start).Milliseconds()
	timeoutMs := tc.Duration().Milliseconds()
	detail := tc.ResourceType
	if detail == "" {
		detail = tc.Policy.Category.String()
	}
	e := kerr.Timeout("timeout", detail)
	e.Err = &elapsedError{elapsedMs: elapsedMs, timeoutMs: timeoutMs}
	return e
}

// elapsedError carries the elapsed/timeout millisecond pair so callers
// building the wire error's `details` field (spec §6) can recover them
// via errors.As without parsing the message string.
type elapsedError struct {
	elapsedMs int64
	timeoutMs int64
}

func (e *elapsedError) Error() string {
	return "elapsed/timeout ms attached"
}

func (e *elapsedError) ElapsedMs() int64 { return e.elapsedMs }
func (e *elapsedError) TimeoutMs() int64 { return e.timeoutMs }
