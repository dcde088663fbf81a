// Package core holds the identifiers, resource-limit records, and small
// value types shared by every subsystem (spec §3). It intentionally has
// no dependencies on any other kerneld package so it can sit at the
// bottom of the import graph, the way the teacher's "domain" package
// anchors sysbox-fs.
package core

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Pid is a 32-bit monotonically allocated process identifier. It is
// never reused while the process it names is live.
type Pid uint32

func (p Pid) String() string { return strconv.FormatUint(uint64(p), 10) }

// QueueId, PipeId, ShmId and MmapId are per-kind monotonic identifiers.
// ShmId is special in that it is recycled through a freelist once its
// segment is destroyed (spec §3).
type (
	QueueId uint32
	PipeId  uint32
	ShmId   uint32
	MmapId  uint32
)

func (id QueueId) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id PipeId) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id ShmId) String() string   { return strconv.FormatUint(uint64(id), 10) }
func (id MmapId) String() string  { return strconv.FormatUint(uint64(id), 10) }

// EntryId identifies a clipboard entry or a queued message.
type EntryId uint64

// TaskId is an opaque async-task identifier, rendered as a UUID string
// by the executor (spec §3, §C11).
type TaskId string

// PidAllocator hands out monotonically increasing Pids. The zero value
// is ready to use and starts allocation at 1, reserving 0 as "no pid".
type PidAllocator struct {
	next uint32
}

// Next returns a fresh Pid. Safe for concurrent use.
func (a *PidAllocator) Next() Pid {
	return Pid(atomic.AddUint32(&a.next, 1))
}

// MonotonicIdAllocator is the generic form of PidAllocator used for
// QueueId/PipeId/MmapId allocation, where reuse is never desired.
type MonotonicIdAllocator struct {
	next uint32
}

// NewMonotonicIdAllocator returns a ready-to-use allocator; equivalent
// to the zero value, provided for symmetry with NewFreelistIdAllocator.
func NewMonotonicIdAllocator() *MonotonicIdAllocator {
	return &MonotonicIdAllocator{}
}

func (a *MonotonicIdAllocator) Next() uint32 {
	return atomic.AddUint32(&a.next, 1)
}

// FreelistIdAllocator hands out ShmIds, recycling ones freed by Release
// before minting new ones, per spec §4.4 ("SHM IDs are recycled via a
// freelist after destroy").
type FreelistIdAllocator struct {
	mu       sync.Mutex
	next     uint32
	freelist []uint32
}

// NewFreelistIdAllocator returns a ready-to-use allocator.
func NewFreelistIdAllocator() *FreelistIdAllocator {
	return &FreelistIdAllocator{}
}

// Acquire returns a recycled id if one is available, otherwise mints a
// new one.
func (a *FreelistIdAllocator) Acquire() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.freelist); n > 0 {
		id := a.freelist[n-1]
		a.freelist = a.freelist[:n-1]
		return id
	}
	a.next++
	return a.next
}

// Release returns id to the freelist for future recycling.
func (a *FreelistIdAllocator) Release(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freelist = append(a.freelist, id)
}
