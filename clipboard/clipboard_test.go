package clipboard

import (
	"testing"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

func TestCopyPasteRoundTrip(t *testing.T) {
	m := NewManager(5)
	pid := core.Pid(1)
	m.Copy(pid, []byte("hello"))

	got, err := m.Paste(pid)
	if err != nil || string(got) != "hello" {
		t.Fatalf("expected to paste back 'hello', got %q err=%v", got, err)
	}
}

func TestPasteEmptyIsNotFound(t *testing.T) {
	m := NewManager(5)
	if _, err := m.Paste(core.Pid(99)); kerr.KindOf(err) != kerr.KindNotFound {
		t.Fatalf("expected NotFound on an empty clipboard, got %v", err)
	}
}

func TestHistoryOrderedNewestFirstAndCapped(t *testing.T) {
	m := NewManager(2)
	pid := core.Pid(1)
	m.Copy(pid, []byte("one"))
	m.Copy(pid, []byte("two"))
	m.Copy(pid, []byte("three"))

	hist := m.History(pid)
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2 entries, got %d", len(hist))
	}
	if string(hist[0].Data) != "three" || string(hist[1].Data) != "two" {
		t.Fatalf("expected newest-first order, got %q then %q", hist[0].Data, hist[1].Data)
	}
}

func TestClearEmptiesHistory(t *testing.T) {
	m := NewManager(5)
	pid := core.Pid(1)
	m.Copy(pid, []byte("x"))
	m.Clear(pid)
	if len(m.History(pid)) != 0 {
		t.Fatalf("expected an empty history after Clear")
	}
}

func TestEntriesAreIndependentPerPid(t *testing.T) {
	m := NewManager(5)
	m.Copy(core.Pid(1), []byte("a"))
	if _, err := m.Paste(core.Pid(2)); kerr.KindOf(err) != kerr.KindNotFound {
		t.Fatalf("expected pid 2's clipboard to remain empty")
	}
}
