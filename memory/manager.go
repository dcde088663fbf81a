// Package memory implements the per-pid accounting memory manager
// (spec §4.3, §C4): allocation/deallocation with a global cap, logical
// (tombstoned) deallocation until an explicit GC pass, and the SIMD-
// dispatching byte operations other engines build their buffers on.
package memory

import (
	"strconv"
	"sync"
	"time"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

// Block is a single allocation record (spec §3).
type Block struct {
	Address       uint64
	Size          core.Size
	OwnerPid      core.Pid
	HasOwner      bool
	AllocatedAt   time.Time
	DeallocatedAt time.Time
	Deallocated   bool
}

// Info is the snapshot returned by Manager.Info().
type Info struct {
	Total     uint64
	Used      uint64
	Available uint64
}

// Manager is the memory-manager service (spec §4.3). It owns the
// global used/total counters and the full block ledger (including
// tombstones, retained until ForceCollect).
type Manager struct {
	mu          sync.Mutex
	total       uint64
	used        uint64
	nextAddress uint64
	blocks      map[uint64]*Block
	perPidUsed  map[core.Pid]uint64
	ops         *Ops

	lastCollect time.Time
}

const minCollectInterval = 5 * time.Second

// NewManager returns a manager capped at total bytes.
func NewManager(total uint64) *Manager {
	return &Manager{
		total:       total,
		blocks:      make(map[uint64]*Block),
		perPidUsed:  make(map[core.Pid]uint64),
		ops:         NewOps(),
		lastCollect: time.Now(),
	}
}

// Ops exposes the SIMD-dispatching byte operations so IPC engines can
// build pipe/shm buffers through the same path the manager itself
// uses.
func (m *Manager) Ops() *Ops { return m.ops }

// Allocate reserves size bytes for pid, enforcing both the global cap
// and the pid's resource-limit ceiling (spec §4.3).
func (m *Manager) Allocate(size core.Size, pid core.Pid, limit uint64) (uint64, *kerr.KernelError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.total - m.used
	if size > available {
		return 0, kerr.CapacityExceeded("memory.allocate",
			"out of memory").WithResource(fmtOOM(size, available, m.used, m.total))
	}

	if limit > 0 {
		owned := m.perPidUsed[pid]
		if owned+size > limit {
			return 0, kerr.CapacityExceeded("memory.allocate",
				"per-process memory limit exceeded").WithResource(fmtOOM(size, limit-owned, owned, limit))
		}
	}

	m.nextAddress += size
	addr := m.nextAddress
	m.blocks[addr] = &Block{
		Address:     addr,
		Size:        size,
		OwnerPid:    pid,
		HasOwner:    true,
		AllocatedAt: time.Now(),
	}
	m.used += size
	m.perPidUsed[pid] += size
	return addr, nil
}

// Deallocate logically frees the block at address: it marks a
// tombstone but keeps the record until ForceCollect (spec §4.3).
func (m *Manager) Deallocate(address uint64) *kerr.KernelError {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[address]
	if !ok || b.Deallocated {
		return kerr.NotFound("memory.deallocate", "no such block")
	}
	b.Deallocated = true
	b.DeallocatedAt = time.Now()
	m.used -= b.Size
	if b.HasOwner {
		m.perPidUsed[b.OwnerPid] -= b.Size
	}
	return nil
}

// ProcessMemory returns the live bytes currently owned by pid.
func (m *Manager) ProcessMemory(pid core.Pid) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perPidUsed[pid]
}

// FreeProcessMemory deallocates every live block owned by pid (used by
// the process cleanup orchestrator, spec §4.8) and returns the total
// bytes freed.
func (m *Manager) FreeProcessMemory(pid core.Pid) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var freed uint64
	for _, b := range m.blocks {
		if b.HasOwner && b.OwnerPid == pid && !b.Deallocated {
			b.Deallocated = true
			b.DeallocatedAt = time.Now()
			freed += b.Size
		}
	}
	m.used -= freed
	delete(m.perPidUsed, pid)
	return freed
}

// ForceCollect removes every tombstoned block from the ledger and
// returns how many were collected.
func (m *Manager) ForceCollect() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectLocked()
}

func (m *Manager) collectLocked() int {
	n := 0
	for addr, b := range m.blocks {
		if b.Deallocated {
			delete(m.blocks, addr)
			n++
		}
	}
	return n
}

// Info reports the current total/used/available snapshot.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{Total: m.total, Used: m.used, Available: m.total - m.used}
}

// ShouldCollect reports whether an auto_collect pass is due: at least
// minCollectInterval has elapsed since the last collection, and either
// that much time has passed again or usage has crossed 80% (spec
// §4.3).
func (m *Manager) ShouldCollect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.lastCollect) < minCollectInterval {
		return false
	}
	usageRatio := float64(0)
	if m.total > 0 {
		usageRatio = float64(m.used) / float64(m.total)
	}
	return usageRatio >= 0.8 || time.Since(m.lastCollect) >= minCollectInterval
}

// MarkCollected resets the auto_collect clock; Collect calls it after
// every pass it runs, whatever the strategy (a GcThreshold call that
// skips below its byte threshold leaves the clock alone).
func (m *Manager) MarkCollected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCollect = time.Now()
}

// LiveBlockBytes sums the size of every undeallocated block; used by
// invariant tests (spec §8: "memory.info().used == sum(live block
// sizes)").
func (m *Manager) LiveBlockBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, b := range m.blocks {
		if !b.Deallocated {
			sum += b.Size
		}
	}
	return sum
}

func fmtOOM(requested, available, used, total uint64) string {
	fmtU := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return "requested=" + fmtU(requested) + " available=" + fmtU(available) +
		" used=" + fmtU(used) + " total=" + fmtU(total)
}
