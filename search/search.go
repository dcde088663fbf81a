// Package search implements the VFS-backed file/content search
// syscalls (SPEC_FULL.md §C, grounded on
// kernel/src/syscalls/impls/search.rs): glob-style name matching and
// substring content matching over a size-capped scan, classified
// Blocking (spec §4.7).
package search

import (
	"path"
	"strings"

	"github.com/nestybox/kerneld/vfs"
)

// Match is one hit: the matched file's path, plus (for content
// search) the byte offset of the match.
type Match struct {
	Path   string
	Offset int
}

// Searcher runs searches through a VFS facade.
type Searcher struct {
	fs          *vfs.Facade
	maxScanSize int64
}

// NewSearcher bounds ContentSearch's per-file scan to maxScanSize
// bytes (0 means unbounded).
func NewSearcher(fs *vfs.Facade, maxScanSize int64) *Searcher {
	return &Searcher{fs: fs, maxScanSize: maxScanSize}
}

// FileSearch walks dir recursively (via ListDir) and returns every
// path whose base name matches the glob pattern.
func (s *Searcher) FileSearch(dir, pattern string) ([]Match, error) {
	var matches []Match
	var walk func(string) error
	walk = func(p string) error {
		entries, err := s.fs.ListDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := path.Join(p, e.Name)
			if e.IsDir {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			ok, err := path.Match(pattern, e.Name)
			if err != nil {
				return err
			}
			if ok {
				matches = append(matches, Match{Path: full})
			}
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return nil, err
	}
	return matches, nil
}

// ContentSearch walks dir recursively and returns one Match per file
// containing needle as a substring, at needle's first byte offset.
// Each file's scan is capped at maxScanSize bytes (files read in full
// by the VFS facade but truncated before the substring search, since
// the façade has no partial-read primitive of its own).
func (s *Searcher) ContentSearch(dir, needle string) ([]Match, error) {
	var matches []Match
	var walk func(string) error
	walk = func(p string) error {
		entries, err := s.fs.ListDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := path.Join(p, e.Name)
			if e.IsDir {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			data, rerr := s.fs.Read(full)
			if rerr != nil {
				continue // unreadable file: skip rather than abort the whole scan
			}
			if s.maxScanSize > 0 && int64(len(data)) > s.maxScanSize {
				data = data[:s.maxScanSize]
			}
			if idx := strings.Index(string(data), needle); idx >= 0 {
				matches = append(matches, Match{Path: full, Offset: idx})
			}
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return nil, err
	}
	return matches, nil
}
