package vfs

import (
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"

	kerr "github.com/nestybox/kerneld/errors"
)

// mount pairs a mounted prefix with the backend serving it.
type mount struct {
	prefix  string
	backend Backend
}

// MountTable resolves a path to the backend mounted at its longest
// matching prefix (spec §6: "Mount resolution picks the longest-prefix
// mount"). Built on an immutable radix tree so concurrent readers never
// observe a partially-updated mount set while a Mount/Unmount is in
// flight.
type MountTable struct {
	tree *iradix.Tree
}

// NewMountTable returns an empty table; callers typically Mount("/",
// rootBackend) immediately afterward.
func NewMountTable() *MountTable {
	return &MountTable{tree: iradix.New()}
}

// radixKey turns a mount prefix into a byte key that sorts so that
// longer prefixes of the same path are reachable via root-walk; the
// radix tree's own longest-prefix API does the heavy lifting, this
// just normalizes trailing slashes.
func radixKey(prefix string) []byte {
	if prefix != "/" {
		prefix = strings.TrimSuffix(prefix, "/")
	}
	return []byte(prefix)
}

// Mount attaches backend at prefix, replacing any existing mount at
// exactly that prefix.
func (t *MountTable) Mount(prefix string, backend Backend) {
	txn := t.tree.Txn()
	txn.Insert(radixKey(prefix), &mount{prefix: prefix, backend: backend})
	t.tree = txn.Commit()
}

// Unmount removes the mount at exactly prefix, reporting whether one
// existed.
func (t *MountTable) Unmount(prefix string) bool {
	txn := t.tree.Txn()
	_, ok := txn.Delete(radixKey(prefix))
	t.tree = txn.Commit()
	return ok
}

// Resolve finds the backend whose mount prefix is the longest match
// for path, and returns the path with that prefix stripped (the
// backend-relative path). Returns NotFound if nothing is mounted on
// any ancestor of path (callers should always keep a "/" mount to make
// that impossible in practice).
func (t *MountTable) Resolve(path string) (Backend, string, *kerr.KernelError) {
	key := []byte(path)
	m, found := t.longestPrefixMatch(key)
	if !found {
		return nil, "", kerr.NotFound("vfs.resolve", "no mount covers path").WithResource(path)
	}
	rel := strings.TrimPrefix(path, m.prefix)
	if rel == "" {
		rel = "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return m.backend, rel, nil
}

// longestPrefixMatch walks the radix tree's own LongestPrefix lookup,
// then verifies the match is a genuine path-component boundary (so
// "/data" does not spuriously match a mount at "/dat").
func (t *MountTable) longestPrefixMatch(key []byte) (*mount, bool) {
	for {
		k, raw, ok := t.tree.Root().LongestPrefix(key)
		if !ok {
			return nil, false
		}
		m := raw.(*mount)
		if len(k) == len(key) || key[len(k)] == '/' || m.prefix == "/" {
			return m, true
		}
		// Component boundary violated ("/dat" matching "/data"); retry
		// against the parent directory of this false match.
		if len(k) == 0 {
			return nil, false
		}
		key = k[:len(k)-1]
	}
}

// Mounts returns every mounted prefix in the radix tree's lexicographic
// key order (so "/" comes first), for diagnostics.
func (t *MountTable) Mounts() []string {
	var prefixes []string
	t.tree.Root().Walk(func(k []byte, v interface{}) bool {
		prefixes = append(prefixes, v.(*mount).prefix)
		return false
	})
	return prefixes
}
