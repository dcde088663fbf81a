//go:build linux

package waitqueue

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

func uintptrOf(word *int32) uintptr { return uintptr(unsafe.Pointer(word)) }

// defaultStrategy picks Futex on Linux, the lowest-latency primitive
// for long waits per spec §4.1's strategy table.
func defaultStrategy() Strategy { return StrategyFutex }

// futexSet flips the waiter's futex word and issues a real Linux
// futex(2) FUTEX_WAKE on it through golang.org/x/sys/unix. Nothing in
// this package parks on the word with FUTEX_WAIT: under every strategy,
// Futex included, a blocked goroutine waits on the waiter's channel,
// and the channel close in waiter.signal is what wakes it.
func futexSet(word *int32) {
	atomic.StoreInt32(word, 1)
	_, _, _ = unix.Syscall(unix.SYS_FUTEX, uintptrOf(word), uintptr(unix.FUTEX_WAKE), 1)
}
