package search

import (
	"testing"

	"github.com/nestybox/kerneld/vfs"
)

func newTestFacade(t *testing.T) *vfs.Facade {
	t.Helper()
	mounts := vfs.NewMountTable()
	mounts.Mount("/", vfs.MemBackend("root"))
	fs := vfs.NewFacade(mounts)

	if err := fs.CreateDir("/dir"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fs.Write("/dir/a.txt", []byte("hello world")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fs.Write("/dir/b.log", []byte("nothing interesting")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return fs
}

func TestFileSearchGlobMatch(t *testing.T) {
	fs := newTestFacade(t)
	s := NewSearcher(fs, 0)

	matches, err := s.FileSearch("/dir", "*.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "/dir/a.txt" {
		t.Fatalf("expected exactly /dir/a.txt to match *.txt, got %+v", matches)
	}
}

func TestContentSearchFindsSubstringOffset(t *testing.T) {
	fs := newTestFacade(t)
	s := NewSearcher(fs, 0)

	matches, err := s.ContentSearch("/dir", "world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "/dir/a.txt" || matches[0].Offset != 6 {
		t.Fatalf("expected a match at offset 6 in a.txt, got %+v", matches)
	}
}

func TestContentSearchRespectsScanCap(t *testing.T) {
	fs := newTestFacade(t)
	s := NewSearcher(fs, 5) // "hello world" truncated to "hello", "world" never seen

	matches, err := s.ContentSearch("/dir", "world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected the scan cap to hide the match beyond byte 5, got %+v", matches)
	}
}
