package ipc

import (
	"testing"

	"github.com/nestybox/kerneld/core"
	"github.com/nestybox/kerneld/vfs"
)

func newFacadeWithFile(t *testing.T, path string, content []byte) *vfs.Facade {
	t.Helper()
	mt := vfs.NewMountTable()
	mt.Mount("/", vfs.MemBackend("root"))
	f := vfs.NewFacade(mt)
	if err := f.Write(path, content); err != nil {
		t.Fatalf("unexpected error seeding file: %v", err)
	}
	return f
}

func TestMmapPrivateWriteDoesNotTouchBackingFile(t *testing.T) {
	f := newFacadeWithFile(t, "/data.bin", []byte("0123456789"))
	mt := NewMmapTable(f)

	id, err := mt.Mmap(core.Pid(1), "/data.bin", 0, 10, ProtRead|ProtWrite, MapPrivate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mt.Write(id, 0, []byte("XXXXX")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backing, rerr := f.Read("/data.bin")
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if string(backing) != "0123456789" {
		t.Fatalf("expected Private mapping writes to leave the backing file untouched, got %q", backing)
	}

	view, verr := mt.Read(id)
	if verr != nil {
		t.Fatalf("unexpected error: %v", verr)
	}
	if string(view) != "XXXXX56789" {
		t.Fatalf("expected the private view to reflect the write, got %q", view)
	}
}

func TestMmapSharedMsyncFlushesToBackingFile(t *testing.T) {
	f := newFacadeWithFile(t, "/shared.bin", []byte("0123456789"))
	mt := NewMmapTable(f)

	id, err := mt.Mmap(core.Pid(1), "/shared.bin", 0, 10, ProtRead|ProtWrite, MapShared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mt.Write(id, 2, []byte("YY")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backingBeforeSync, _ := f.Read("/shared.bin")
	if string(backingBeforeSync) != "0123456789" {
		t.Fatalf("expected no flush before msync, got %q", backingBeforeSync)
	}

	if err := mt.Msync(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	backing, rerr := f.Read("/shared.bin")
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if string(backing) != "01YY456789" {
		t.Fatalf("expected msync to flush the write, got %q", backing)
	}
}

func TestMunmapAutoSyncsDirtySharedMapping(t *testing.T) {
	f := newFacadeWithFile(t, "/auto.bin", []byte("aaaaaaaaaa"))
	mt := NewMmapTable(f)

	id, err := mt.Mmap(core.Pid(1), "/auto.bin", 0, 10, ProtRead|ProtWrite, MapShared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mt.Write(id, 0, []byte("bb")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mt.Munmap(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backing, rerr := f.Read("/auto.bin")
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if string(backing) != "bbaaaaaaaa" {
		t.Fatalf("expected munmap to auto-flush a dirty shared mapping, got %q", backing)
	}
}
