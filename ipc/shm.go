package ipc

import (
	"sync"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/memory"
)

// ShmPermission is what an attached pid may do to a segment.
type ShmPermission int

const (
	ShmReadOnly ShmPermission = iota
	ShmReadWrite
)

// ShmSegment is one shared-memory segment (spec §3 "SHM segment").
type ShmSegment struct {
	id          core.ShmId
	size        uint64
	owner       core.Pid
	address     uint64
	data        []byte
	attached    map[core.Pid]ShmPermission
}

// ShmTable owns every live segment plus the recycled id allocator and
// the global/per-owner caps (spec §4.4).
type ShmTable struct {
	mu           sync.Mutex
	segments     map[core.ShmId]*ShmSegment
	ids          *core.FreelistIdAllocator
	mem          *memory.Manager
	globalUsed   uint64
	perOwnerCount map[core.Pid]int
}

// NewShmTable wires a shm table to the shared memory manager.
func NewShmTable(mem *memory.Manager) *ShmTable {
	return &ShmTable{
		segments:      make(map[core.ShmId]*ShmSegment),
		ids:           core.NewFreelistIdAllocator(),
		mem:           mem,
		perOwnerCount: make(map[core.Pid]int),
	}
}

// Create reserves a new segment, enforcing the per-segment (100MB),
// per-owner count (10), and global (500MB) caps (spec §4.4).
func (t *ShmTable) Create(size uint64, owner core.Pid) (core.ShmId, *kerr.KernelError) {
	if size > core.MaxShmSegmentBytes {
		return 0, kerr.InvalidArgument("shm.create", "segment exceeds MAX_SHM_SEGMENT_BYTES")
	}

	t.mu.Lock()
	if t.perOwnerCount[owner] >= core.MaxSegmentsPerProcess {
		t.mu.Unlock()
		return 0, kerr.CapacityExceeded("shm.create", "per-owner segment count exceeded").WithResource(owner.String())
	}
	if t.globalUsed+size > core.GlobalShmLimitBytes {
		t.mu.Unlock()
		return 0, kerr.CapacityExceeded("shm.create", "global shm limit exceeded")
	}
	t.mu.Unlock()

	addr, mErr := t.mem.Allocate(size, owner, 0)
	if mErr != nil {
		return 0, mErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := core.ShmId(t.ids.Acquire())
	t.segments[id] = &ShmSegment{
		id:       id,
		size:     size,
		owner:    owner,
		address:  addr,
		data:     make([]byte, size),
		attached: map[core.Pid]ShmPermission{owner: ShmReadWrite},
	}
	t.globalUsed += size
	t.perOwnerCount[owner]++
	return id, nil
}

func (t *ShmTable) get(id core.ShmId) (*ShmSegment, *kerr.KernelError) {
	s, ok := t.segments[id]
	if !ok {
		return nil, kerr.NotFound("shm", "no such segment").WithResource(id.String())
	}
	return s, nil
}

// Attach grants pid access to the segment with the given permission.
func (t *ShmTable) Attach(id core.ShmId, pid core.Pid, readOnly bool) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.get(id)
	if err != nil {
		return err
	}
	perm := ShmReadWrite
	if readOnly {
		perm = ShmReadOnly
	}
	s.attached[pid] = perm
	return nil
}

// Detach removes pid's attachment without destroying the segment.
func (t *ShmTable) Detach(id core.ShmId, pid core.Pid) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.get(id)
	if err != nil {
		return err
	}
	delete(s.attached, pid)
	return nil
}

// Read copies length bytes at offset, requiring pid to be attached.
func (t *ShmTable) Read(id core.ShmId, pid core.Pid, offset, length uint64) ([]byte, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if _, ok := s.attached[pid]; !ok {
		return nil, kerr.PermissionDenied("shm.read", "pid is not attached")
	}
	if offset+length > s.size {
		return nil, kerr.InvalidArgument("shm.read", "offset+length exceeds segment size")
	}
	out := make([]byte, length)
	t.mem.Ops().Memcpy(out, s.data[offset:offset+length])
	return out, nil
}

// Write copies data into the segment at offset, requiring RW
// permission (spec §4.4).
func (t *ShmTable) Write(id core.ShmId, pid core.Pid, offset uint64, data []byte) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.get(id)
	if err != nil {
		return err
	}
	perm, ok := s.attached[pid]
	if !ok {
		return kerr.PermissionDenied("shm.write", "pid is not attached")
	}
	if perm != ShmReadWrite {
		return kerr.PermissionDenied("shm.write", "pid has read-only access")
	}
	if offset+uint64(len(data)) > s.size {
		return kerr.InvalidArgument("shm.write", "offset+len exceeds segment size")
	}
	t.mem.Ops().Memcpy(s.data[offset:], data)
	return nil
}

// Destroy removes the segment, frees its memory-manager accounting,
// and recycles its id. Only the owner may destroy (spec §4.4).
func (t *ShmTable) Destroy(id core.ShmId, pid core.Pid) *kerr.KernelError {
	t.mu.Lock()
	s, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if s.owner != pid {
		t.mu.Unlock()
		return kerr.PermissionDenied("shm.destroy", "only the owner may destroy a segment")
	}
	delete(t.segments, id)
	t.globalUsed -= s.size
	t.perOwnerCount[s.owner]--
	t.mu.Unlock()

	t.ids.Release(uint32(id))
	return t.mem.Deallocate(s.address)
}

// CleanupPid runs the pid-termination discipline from spec §4.4:
// destroy every segment pid owns, detach from every segment pid is
// merely attached to. Returns how many segments were destroyed and
// how many were merely detached.
func (t *ShmTable) CleanupPid(pid core.Pid) (destroyed, detached int) {
	t.mu.Lock()
	var owned []core.ShmId
	for id, s := range t.segments {
		if s.owner == pid {
			owned = append(owned, id)
		} else if _, ok := s.attached[pid]; ok {
			delete(s.attached, pid)
			detached++
		}
	}
	t.mu.Unlock()

	for _, id := range owned {
		t.Destroy(id, pid)
		destroyed++
	}
	return destroyed, detached
}
