// Package fdtable implements the per-pid file-descriptor table backing
// the fast dup/dup2/fcntl syscalls (SPEC_FULL.md §C "FD registry").
package fdtable

import (
	"sync"

	kerr "github.com/nestybox/kerneld/errors"
)

// Fd is an opaque per-pid file-descriptor number; 0, 1, 2 are reserved
// for stdio the way the process-creation hook sets them up.
type Fd int32

const (
	Stdin  Fd = 0
	Stdout Fd = 1
	Stderr Fd = 2
)

// FdEntry is what a descriptor currently points at — a VFS path plus
// the flags it was opened with, enough for fcntl to introspect/mutate.
type FdEntry struct {
	Path  string
	Flags uint32
}

// Table is one pid's FD table, counted against
// ResourceLimits.MaxFileDescriptors (SPEC_FULL.md §C).
type Table struct {
	mu      sync.Mutex
	entries map[Fd]FdEntry
	next    Fd
	limit   uint32
}

// NewTable returns a table with stdio pre-populated, matching the
// "FD table stdio" process-creation hook (spec §4.8).
func NewTable(limit uint32) *Table {
	t := &Table{entries: make(map[Fd]FdEntry), next: 3, limit: limit}
	t.entries[Stdin] = FdEntry{Path: "/dev/stdin"}
	t.entries[Stdout] = FdEntry{Path: "/dev/stdout"}
	t.entries[Stderr] = FdEntry{Path: "/dev/stderr"}
	return t
}

// Open installs a new fd for path, enforcing MaxFileDescriptors.
func (t *Table) Open(path string, flags uint32) (Fd, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && uint32(len(t.entries)) >= t.limit {
		return 0, kerr.CapacityExceeded("fd.open", "file descriptor limit exceeded")
	}
	fd := t.next
	t.next++
	t.entries[fd] = FdEntry{Path: path, Flags: flags}
	return fd, nil
}

// Close removes fd from the table.
func (t *Table) Close(fd Fd) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[fd]; !ok {
		return kerr.NotFound("fd.close", "no such descriptor")
	}
	delete(t.entries, fd)
	return nil
}

// Dup duplicates fd onto a fresh descriptor number taken from the
// table's increasing counter, the same way Open numbers descriptors
// (numbers freed by Close are not reused), enforcing the same limit as
// Open.
func (t *Table) Dup(fd Fd) (Fd, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return 0, kerr.NotFound("fd.dup", "no such descriptor")
	}
	if t.limit > 0 && uint32(len(t.entries)) >= t.limit {
		return 0, kerr.CapacityExceeded("fd.dup", "file descriptor limit exceeded")
	}
	newFd := t.next
	t.next++
	t.entries[newFd] = e
	return newFd, nil
}

// Dup2 duplicates fd onto newFd exactly, closing whatever newFd
// previously held (dup2(2) semantics).
func (t *Table) Dup2(fd, newFd Fd) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return kerr.NotFound("fd.dup2", "no such descriptor")
	}
	t.entries[newFd] = e
	return nil
}

// Fcntl reads or mutates the flags on fd; newFlags < 0 means "read
// only" (no mutation), matching fcntl(F_GETFL)/(F_SETFL) split by
// caller intent.
func (t *Table) Fcntl(fd Fd, newFlags int64) (uint32, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return 0, kerr.NotFound("fd.fcntl", "no such descriptor")
	}
	if newFlags >= 0 {
		e.Flags = uint32(newFlags)
		t.entries[fd] = e
	}
	return e.Flags, nil
}

// Count reports how many descriptors are currently open.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CloseAll empties the table, returning how many descriptors were
// closed (used by the process cleanup orchestrator).
func (t *Table) CloseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[Fd]FdEntry)
	return n
}
