// Package ipc implements the pipe, queue, shared-memory, and
// memory-mapped-file engines syscall handlers drive (spec §4.4, §C7).
// The pipe, queue and shared-memory engines allocate their backing
// storage through the memory manager so IPC traffic is accounted the
// same way any other allocation is; mmap buffers are not accounted
// there.
package ipc

import (
	"sync"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/memory"
	"github.com/nestybox/kerneld/waitqueue"
)

// Pipe is a byte ring buffer between exactly one writer and one
// reader pid (spec §3 "Pipe").
type Pipe struct {
	id         core.PipeId
	readerPid  core.Pid
	writerPid  core.Pid
	creator    core.Pid
	capacity   int
	address    uint64 // backing region in the memory manager, owned by the creator
	buf        []byte
	start, len int
	closed     bool
}

// PipeTable owns every live pipe plus the id allocator and the wait
// queue readers/writers suspend on (keyed by pipe id).
type PipeTable struct {
	mu       sync.Mutex
	pipes    map[core.PipeId]*Pipe
	ids      *core.MonotonicIdAllocator
	mem      *memory.Manager
	waiters  *waitqueue.WaitQueue[core.PipeId]
	byCreator map[core.Pid]int // open pipe count, for the per-process cap
}

// NewPipeTable wires a pipe table to the shared memory manager.
func NewPipeTable(mem *memory.Manager) *PipeTable {
	return &PipeTable{
		pipes:     make(map[core.PipeId]*Pipe),
		ids:       core.NewMonotonicIdAllocator(),
		mem:       mem,
		waiters:   waitqueue.New[core.PipeId](waitqueue.ProfileDefault, waitqueue.DefaultSyncConfig()),
		byCreator: make(map[core.Pid]int),
	}
}

// Create allocates a new pipe's ring through the memory manager,
// charged against creator, enforcing the per-process pipe count (100).
// GlobalPipeLimitBytes (50MB) is handed to the memory manager as
// creator's per-pid ceiling, so the ring is refused when creator's
// total live memory would pass 50MB; the combined pipe bytes of all
// creators are not capped.
func (t *PipeTable) Create(readerPid, writerPid, creator core.Pid, capacity uint64) (core.PipeId, *kerr.KernelError) {
	if capacity == 0 {
		capacity = core.DefaultPipeCapacity
	}
	t.mu.Lock()
	if t.byCreator[creator] >= core.MaxPipesPerProcess {
		t.mu.Unlock()
		return 0, kerr.CapacityExceeded("pipe.create", "per-process pipe limit exceeded").WithResource(creator.String())
	}
	t.mu.Unlock()

	addr, err := t.mem.Allocate(capacity, creator, core.GlobalPipeLimitBytes)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := core.PipeId(t.ids.Next())
	t.pipes[id] = &Pipe{
		id:        id,
		readerPid: readerPid,
		writerPid: writerPid,
		creator:   creator,
		capacity:  int(capacity),
		address:   addr,
		buf:       make([]byte, capacity),
	}
	t.byCreator[creator]++
	return id, nil
}

func (t *PipeTable) get(id core.PipeId) (*Pipe, *kerr.KernelError) {
	p, ok := t.pipes[id]
	if !ok {
		return nil, kerr.NotFound("pipe", "no such pipe").WithResource(id.String())
	}
	return p, nil
}

// Write appends data to the pipe's ring, writing as many bytes as fit
// (partial writes on a full buffer) and returns the count written.
// WouldBlock if there is no space at all and the pipe is still open.
func (t *PipeTable) Write(id core.PipeId, writerPid core.Pid, data []byte) (int, *kerr.KernelError) {
	t.mu.Lock()
	p, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	if p.writerPid != writerPid {
		t.mu.Unlock()
		return 0, kerr.PermissionDenied("pipe.write", "pid is not the pipe's writer")
	}
	if p.closed {
		t.mu.Unlock()
		return 0, kerr.Closed("pipe.write", "pipe is closed")
	}
	free := p.capacity - p.len
	if free == 0 {
		t.mu.Unlock()
		return 0, kerr.WouldBlock("pipe.write", "ring buffer full")
	}
	n := len(data)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		p.buf[(p.start+p.len+i)%p.capacity] = data[i]
	}
	p.len += n
	t.mu.Unlock()

	t.waiters.WakeOne(id)
	return n, nil
}

// Read drains up to n bytes from the ring. WouldBlock if empty and
// open; returns an empty slice (not an error) once empty and closed,
// matching EOF semantics (spec §4.4).
func (t *PipeTable) Read(id core.PipeId, readerPid core.Pid, n int) ([]byte, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if p.readerPid != readerPid {
		return nil, kerr.PermissionDenied("pipe.read", "pid is not the pipe's reader")
	}
	if p.len == 0 {
		if p.closed {
			return []byte{}, nil
		}
		return nil, kerr.WouldBlock("pipe.read", "ring buffer empty")
	}
	if n > p.len {
		n = p.len
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = p.buf[(p.start+i)%p.capacity]
	}
	p.start = (p.start + n) % p.capacity
	p.len -= n

	t.waiters.WakeOne(id)
	return out, nil
}

// Close marks the pipe closed; pending reads drain remaining bytes
// then see EOF, and blocked readers are woken to observe that.
func (t *PipeTable) Close(id core.PipeId) *kerr.KernelError {
	t.mu.Lock()
	p, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	p.closed = true
	t.mu.Unlock()
	t.waiters.WakeAll(id)
	return nil
}

// Destroy removes the pipe entirely and frees its backing region,
// used by the process cleanup orchestrator (spec §4.8).
func (t *PipeTable) Destroy(id core.PipeId) *kerr.KernelError {
	t.mu.Lock()
	p, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	delete(t.pipes, id)
	if t.byCreator[p.creator] > 0 {
		t.byCreator[p.creator]--
	}
	t.mu.Unlock()

	t.waiters.WakeAll(id)
	return t.mem.Deallocate(p.address)
}

// Waiters exposes the pipe wait queue so blocking handlers can suspend
// on "readable"/"writable" predicates keyed by pipe id.
func (t *PipeTable) Waiters() *waitqueue.WaitQueue[core.PipeId] { return t.waiters }

// DestroyOwnedByCreator destroys every pipe creator made, used by the
// process cleanup orchestrator (spec §4.8 "destroy owned pipes"). It
// returns how many pipes were destroyed.
func (t *PipeTable) DestroyOwnedByCreator(creator core.Pid) int {
	t.mu.Lock()
	var owned []core.PipeId
	for id, p := range t.pipes {
		if p.creator == creator {
			owned = append(owned, id)
		}
	}
	delete(t.byCreator, creator)
	t.mu.Unlock()

	for _, id := range owned {
		t.Destroy(id)
	}
	return len(owned)
}
