package ipc

import (
	"sync"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/vfs"
)

// MmapProt mirrors the mmap(2) protection bits the spec's syscall
// family needs.
type MmapProt uint32

const (
	ProtRead MmapProt = 1 << iota
	ProtWrite
)

// MmapFlag selects Private (copy-on-write) vs Shared mapping semantics
// (spec §4.4).
type MmapFlag int

const (
	MapPrivate MmapFlag = iota
	MapShared
)

// Mapping is a reference-counted view of a VFS region (spec §3
// "Memory-mapped files").
type Mapping struct {
	id       core.MmapId
	owner    core.Pid
	path     string
	offset   int64
	length   int64
	prot     MmapProt
	flag     MmapFlag
	buf      []byte
	refCount int
	dirty    bool // Shared+W mapping has unflushed writes
}

// MmapTable owns every live mapping, backed by a vfs.Facade for the
// underlying reads/writes (spec §4.4: "Mediates a VFS file as a
// shared buffer").
type MmapTable struct {
	mu       sync.Mutex
	mappings map[core.MmapId]*Mapping
	ids      *core.MonotonicIdAllocator
	facade   *vfs.Facade
}

// NewMmapTable wires a mmap table to the shared VFS facade.
func NewMmapTable(facade *vfs.Facade) *MmapTable {
	return &MmapTable{
		mappings: make(map[core.MmapId]*Mapping),
		ids:      core.NewMonotonicIdAllocator(),
		facade:   facade,
	}
}

// Mmap reads [offset, offset+length) of path through the VFS into a
// buffer (spec §4.4). Every call gets its own buffer and its own
// mapping with a reference count of one, whatever the flag: mappings
// of the same file never share a buffer, and a Shared mapping's writes
// reach the file, and so later mappers, only through Msync.
func (t *MmapTable) Mmap(pid core.Pid, path string, offset, length int64, prot MmapProt, flag MmapFlag) (core.MmapId, *kerr.KernelError) {
	full, err := t.facade.Read(path)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset+length > int64(len(full)) {
		return 0, kerr.InvalidArgument("mmap", "offset/length outside file bounds")
	}
	region := full[offset : offset+length]

	buf := make([]byte, length)
	copy(buf, region)

	t.mu.Lock()
	defer t.mu.Unlock()
	id := core.MmapId(t.ids.Next())
	t.mappings[id] = &Mapping{
		id: id, owner: pid, path: path, offset: offset, length: length,
		prot: prot, flag: flag, buf: buf, refCount: 1,
	}
	return id, nil
}

func (t *MmapTable) get(id core.MmapId) (*Mapping, *kerr.KernelError) {
	m, ok := t.mappings[id]
	if !ok {
		return nil, kerr.NotFound("mmap", "no such mapping").WithResource(id.String())
	}
	return m, nil
}

// Read returns the current contents of the mapping's buffer.
func (t *MmapTable) Read(id core.MmapId) ([]byte, *kerr.KernelError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(m.buf))
	copy(out, m.buf)
	return out, nil
}

// Write updates the mapping's buffer at the given in-mapping offset.
// Private mappings never touch the underlying file (copy-on-write);
// Shared writes stay buffered until an explicit Msync (spec §4.4:
// "Shared writes are only permitted through explicit msync").
func (t *MmapTable) Write(id core.MmapId, offset int64, data []byte) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.get(id)
	if err != nil {
		return err
	}
	if m.prot&ProtWrite == 0 {
		return kerr.PermissionDenied("mmap.write", "mapping is not writable")
	}
	if offset < 0 || offset+int64(len(data)) > m.length {
		return kerr.InvalidArgument("mmap.write", "write outside mapping bounds")
	}
	copy(m.buf[offset:], data)
	if m.flag == MapShared {
		m.dirty = true
	}
	return nil
}

// Msync flushes a Shared mapping's buffered writes back through the
// VFS facade (read-modify-write of the backing file's full contents
// at the mapped region). Private mappings have nothing to flush.
func (t *MmapTable) Msync(id core.MmapId) *kerr.KernelError {
	t.mu.Lock()
	m, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if m.flag != MapShared || !m.dirty {
		t.mu.Unlock()
		return nil
	}
	path, offset, buf := m.path, m.offset, append([]byte(nil), m.buf...)
	t.mu.Unlock()

	full, rErr := t.facade.Read(path)
	if rErr != nil {
		return rErr
	}
	if offset+int64(len(buf)) > int64(len(full)) {
		return kerr.InvalidArgument("mmap.msync", "backing file shrank under the mapping")
	}
	copy(full[offset:], buf)
	if wErr := t.facade.Write(path, full); wErr != nil {
		return wErr
	}

	t.mu.Lock()
	m.dirty = false
	t.mu.Unlock()
	return nil
}

// Munmap auto-msyncs a dirty Shared+W mapping, then drops the
// reference; the mapping is removed once refCount reaches zero (spec
// §4.4: "munmap auto-msyncs Shared+W mappings then drops the
// reference").
func (t *MmapTable) Munmap(id core.MmapId) *kerr.KernelError {
	if err := t.Msync(id); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.get(id)
	if err != nil {
		return err
	}
	m.refCount--
	if m.refCount <= 0 {
		delete(t.mappings, id)
	}
	return nil
}

// CleanupPid unmaps (auto-syncing dirty Shared mappings) every region
// pid owns, used by the process cleanup orchestrator (spec §4.8 "clean
// up mmap regions"). Sync failures are collected rather than aborting
// the remaining unmaps.
func (t *MmapTable) CleanupPid(pid core.Pid) (closed int, errs []string) {
	t.mu.Lock()
	var owned []core.MmapId
	for id, m := range t.mappings {
		if m.owner == pid {
			owned = append(owned, id)
		}
	}
	t.mu.Unlock()

	for _, id := range owned {
		if err := t.Munmap(id); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		closed++
	}
	return closed, errs
}
