package fdtable

import (
	"testing"

	kerr "github.com/nestybox/kerneld/errors"
)

func TestStdioPrePopulated(t *testing.T) {
	tbl := NewTable(16)
	if tbl.Count() != 3 {
		t.Fatalf("expected 3 pre-populated stdio descriptors, got %d", tbl.Count())
	}
}

func TestOpenDupAndClose(t *testing.T) {
	tbl := NewTable(16)
	fd, err := tbl.Open("/data/f.txt", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dup, derr := tbl.Dup(fd)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if dup == fd {
		t.Fatalf("expected dup to allocate a distinct descriptor")
	}
	if err := tbl.Close(fd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.Close(fd); kerr.KindOf(err) != kerr.KindNotFound {
		t.Fatalf("expected NotFound closing an already-closed fd, got %v", err)
	}
}

func TestLimitEnforced(t *testing.T) {
	tbl := NewTable(3) // stdio alone fills this
	if _, err := tbl.Open("/x", 0); kerr.KindOf(err) != kerr.KindCapacityExceeded {
		t.Fatalf("expected CapacityExceeded at the fd limit, got %v", err)
	}
}

func TestFcntlGetSetFlags(t *testing.T) {
	tbl := NewTable(16)
	fd, _ := tbl.Open("/x", 1)
	flags, err := tbl.Fcntl(fd, -1)
	if err != nil || flags != 1 {
		t.Fatalf("expected to read back flags=1, got %d err=%v", flags, err)
	}
	if _, err := tbl.Fcntl(fd, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags2, _ := tbl.Fcntl(fd, -1)
	if flags2 != 5 {
		t.Fatalf("expected updated flags=5, got %d", flags2)
	}
}

func TestCloseAllReturnsCount(t *testing.T) {
	tbl := NewTable(16)
	tbl.Open("/a", 0)
	tbl.Open("/b", 0)
	n := tbl.CloseAll()
	if n != 5 { // 3 stdio + 2 opened
		t.Fatalf("expected CloseAll to report 5 descriptors closed, got %d", n)
	}
	if tbl.Count() != 0 {
		t.Fatalf("expected table to be empty after CloseAll")
	}
}
