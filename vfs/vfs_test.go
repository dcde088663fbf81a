package vfs

import (
	"testing"

	kerr "github.com/nestybox/kerneld/errors"
)

func newFacade() (*Facade, *MountTable) {
	mt := NewMountTable()
	mt.Mount("/", MemBackend("root"))
	return NewFacade(mt), mt
}

func TestWriteReadRoundTrip(t *testing.T) {
	f, _ := newFacade()
	if err := f.Write("/hello.txt", []byte("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := f.Read("/hello.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("expected 'hi', got %q", data)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	f, _ := newFacade()
	_, err := f.Read("/nope.txt")
	if kerr.KindOf(err) != kerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestLongestPrefixMountResolution(t *testing.T) {
	mt := NewMountTable()
	mt.Mount("/", MemBackend("root"))
	mt.Mount("/data", MemBackend("data"))
	f := NewFacade(mt)

	if err := f.Write("/data/file.txt", []byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write("/other/file.txt", []byte("b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "/database" must not spuriously match the "/data" mount.
	if err := f.Write("/database/file.txt", []byte("c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Exists("/database/file.txt") {
		t.Fatalf("expected write under root mount to have landed there")
	}

	b, rel, err := mt.Resolve("/data/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "data" || rel != "/file.txt" {
		t.Fatalf("expected data backend + relative path, got backend=%s rel=%s", b.Name(), rel)
	}
}

func TestWriteOnReadOnlyMountIsDenied(t *testing.T) {
	mt := NewMountTable()
	base := MemBackend("root")
	mt.Mount("/", ReadOnlyBackend("root-ro", base))
	f := NewFacade(mt)

	if err := f.Write("/x.txt", []byte("y")); kerr.KindOf(err) != kerr.KindPermissionDenied {
		t.Fatalf("expected PermissionDenied on a read-only mount, got %v", err)
	}
}

func TestCrossMountRename(t *testing.T) {
	mt := NewMountTable()
	mt.Mount("/", MemBackend("root"))
	mt.Mount("/other", MemBackend("other"))
	f := NewFacade(mt)

	if err := f.Write("/src.txt", []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Rename("/src.txt", "/other/dst.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Exists("/src.txt") {
		t.Fatalf("expected source to be removed after rename")
	}
	data, err := f.Read("/other/dst.txt")
	if err != nil || string(data) != "payload" {
		t.Fatalf("expected payload at destination, got %q err=%v", data, err)
	}
}

func TestUnmountRemovesMount(t *testing.T) {
	mt := NewMountTable()
	mt.Mount("/", MemBackend("root"))
	mt.Mount("/scratch", MemBackend("scratch"))
	if !mt.Unmount("/scratch") {
		t.Fatalf("expected Unmount to report the mount existed")
	}
	b, rel, err := mt.Resolve("/scratch/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "root" || rel != "/scratch/file.txt" {
		t.Fatalf("expected fallback to root mount after unmount, got backend=%s rel=%s", b.Name(), rel)
	}
}
