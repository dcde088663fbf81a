package ipc

import (
	"testing"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/memory"
)

func TestPipeWriteReadPrefixInvariant(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	pt := NewPipeTable(mem)
	reader, writer := core.Pid(1), core.Pid(2)

	id, err := pt.Create(reader, writer, writer, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, werr := pt.Write(id, writer, []byte("hello world"))
	if werr != nil {
		t.Fatalf("unexpected error: %v", werr)
	}
	if n != len("hello world") {
		t.Fatalf("expected full write to fit in a 16-byte ring, got %d", n)
	}

	got, rerr := pt.Read(id, reader, 5)
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if string(got) != "hello" {
		t.Fatalf("expected prefix 'hello', got %q", got)
	}

	rest, rerr2 := pt.Read(id, reader, 100)
	if rerr2 != nil {
		t.Fatalf("unexpected error: %v", rerr2)
	}
	if string(rest) != " world" {
		t.Fatalf("expected remaining bytes ' world', got %q", rest)
	}
}

func TestPipeWrongPidDenied(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	pt := NewPipeTable(mem)
	id, _ := pt.Create(core.Pid(1), core.Pid(2), core.Pid(2), 16)

	if _, err := pt.Write(id, core.Pid(3), []byte("x")); kerr.KindOf(err) != kerr.KindPermissionDenied {
		t.Fatalf("expected PermissionDenied for a non-writer pid, got %v", err)
	}
	if _, err := pt.Read(id, core.Pid(3), 1); kerr.KindOf(err) != kerr.KindPermissionDenied {
		t.Fatalf("expected PermissionDenied for a non-reader pid, got %v", err)
	}
}

func TestPipeFullBufferWouldBlock(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	pt := NewPipeTable(mem)
	id, _ := pt.Create(core.Pid(1), core.Pid(2), core.Pid(2), 4)

	n, err := pt.Write(id, core.Pid(2), []byte("abcdef"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected a partial write of 4 bytes, got %d", n)
	}

	if _, err := pt.Write(id, core.Pid(2), []byte("z")); kerr.KindOf(err) != kerr.KindWouldBlock {
		t.Fatalf("expected WouldBlock on a full ring, got %v", err)
	}
}

func TestPipeEmptyAndClosedReturnsEOF(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	pt := NewPipeTable(mem)
	id, _ := pt.Create(core.Pid(1), core.Pid(2), core.Pid(2), 4)

	if _, err := pt.Read(id, core.Pid(1), 1); kerr.KindOf(err) != kerr.KindWouldBlock {
		t.Fatalf("expected WouldBlock on an empty open pipe, got %v", err)
	}

	if err := pt.Close(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := pt.Read(id, core.Pid(1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected an empty (not error) read at EOF, got %q", data)
	}
}

func TestPipePerProcessCap(t *testing.T) {
	mem := memory.NewManager(1 << 30)
	pt := NewPipeTable(mem)
	creator := core.Pid(1)
	for i := 0; i < core.MaxPipesPerProcess; i++ {
		if _, err := pt.Create(core.Pid(2), creator, creator, 16); err != nil {
			t.Fatalf("unexpected error on pipe %d: %v", i, err)
		}
	}
	if _, err := pt.Create(core.Pid(2), creator, creator, 16); kerr.KindOf(err) != kerr.KindCapacityExceeded {
		t.Fatalf("expected CapacityExceeded past the per-process pipe cap, got %v", err)
	}
}
