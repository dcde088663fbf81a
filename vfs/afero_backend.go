package vfs

import (
	"os"

	"github.com/spf13/afero"

	kerr "github.com/nestybox/kerneld/errors"
)

// AferoBackend adapts an afero.Fs to the Backend trait. OsBackend and
// MemBackend are just different afero.Fs constructors wrapped here
// (spec §6: "the spec fixes only the trait [backends] implement").
type AferoBackend struct {
	name     string
	fs       afero.Fs
	readonly bool
}

// OsBackend mounts the real host filesystem rooted at root, matching
// the teacher's own commented-out `afero.NewOsFs()` wiring in
// process/process.go.
func OsBackend(name, root string) *AferoBackend {
	return &AferoBackend{name: name, fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// MemBackend mounts an in-memory filesystem, used for scratch mounts
// and tests.
func MemBackend(name string) *AferoBackend {
	return &AferoBackend{name: name, fs: afero.NewMemMapFs()}
}

// ReadOnlyBackend wraps an existing backend's afero.Fs as read-only.
func ReadOnlyBackend(name string, b *AferoBackend) *AferoBackend {
	return &AferoBackend{name: name, fs: afero.NewReadOnlyFs(b.fs), readonly: true}
}

func (b *AferoBackend) Name() string   { return b.name }
func (b *AferoBackend) ReadOnly() bool { return b.readonly }

func (b *AferoBackend) Read(path string) ([]byte, *kerr.KernelError) {
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, translateErr("vfs.read", path, err)
	}
	return data, nil
}

func (b *AferoBackend) Write(path string, data []byte) *kerr.KernelError {
	if err := afero.WriteFile(b.fs, path, data, 0644); err != nil {
		return translateErr("vfs.write", path, err)
	}
	return nil
}

func (b *AferoBackend) Delete(path string) *kerr.KernelError {
	if err := b.fs.Remove(path); err != nil {
		return translateErr("vfs.delete", path, err)
	}
	return nil
}

func (b *AferoBackend) Exists(path string) bool {
	ok, err := afero.Exists(b.fs, path)
	return err == nil && ok
}

func (b *AferoBackend) Metadata(path string) (FileInfo, *kerr.KernelError) {
	info, err := b.fs.Stat(path)
	if err != nil {
		return FileInfo{}, translateErr("vfs.metadata", path, err)
	}
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		Mode:    uint32(info.Mode()),
		ModTime: info.ModTime(),
	}, nil
}

func (b *AferoBackend) ListDir(path string) ([]FileInfo, *kerr.KernelError) {
	entries, err := afero.ReadDir(b.fs, path)
	if err != nil {
		return nil, translateErr("vfs.list_dir", path, err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, FileInfo{
			Name:    e.Name(),
			Size:    e.Size(),
			IsDir:   e.IsDir(),
			Mode:    uint32(e.Mode()),
			ModTime: e.ModTime(),
		})
	}
	return out, nil
}

func (b *AferoBackend) CreateDir(path string) *kerr.KernelError {
	if err := b.fs.MkdirAll(path, 0755); err != nil {
		return translateErr("vfs.create_dir", path, err)
	}
	return nil
}

func (b *AferoBackend) RemoveDir(path string) *kerr.KernelError {
	if err := b.fs.Remove(path); err != nil {
		return translateErr("vfs.remove_dir", path, err)
	}
	return nil
}

func (b *AferoBackend) RemoveDirAll(path string) *kerr.KernelError {
	if err := b.fs.RemoveAll(path); err != nil {
		return translateErr("vfs.remove_dir_all", path, err)
	}
	return nil
}

func (b *AferoBackend) Truncate(path string, size int64) *kerr.KernelError {
	f, err := b.fs.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return translateErr("vfs.truncate", path, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return translateErr("vfs.truncate", path, err)
	}
	return nil
}

// aferoFile adapts afero.File to the OpenFile interface (afero.File
// already satisfies everything but the explicit Truncate signature
// this package's OpenFile wants).
type aferoFile struct {
	afero.File
}

func (f aferoFile) Truncate(size int64) error { return f.File.Truncate(size) }

func (b *AferoBackend) Open(path string, flags OpenFlags, mode uint32) (OpenFile, *kerr.KernelError) {
	osFlags := translateFlags(flags)
	f, err := b.fs.OpenFile(path, osFlags, os.FileMode(mode))
	if err != nil {
		return nil, translateErr("vfs.open", path, err)
	}
	return aferoFile{f}, nil
}

func translateFlags(flags OpenFlags) int {
	osFlags := 0
	switch {
	case flags&OReadWrite != 0:
		osFlags |= os.O_RDWR
	case flags&OWriteOnly != 0:
		osFlags |= os.O_WRONLY
	default:
		osFlags |= os.O_RDONLY
	}
	if flags&OCreate != 0 {
		osFlags |= os.O_CREATE
	}
	if flags&OTruncate != 0 {
		osFlags |= os.O_TRUNC
	}
	if flags&OAppend != 0 {
		osFlags |= os.O_APPEND
	}
	return osFlags
}

func translateErr(op, path string, err error) *kerr.KernelError {
	if os.IsNotExist(err) {
		return kerr.NotFound(op, "no such path").WithResource(path)
	}
	if os.IsPermission(err) {
		return kerr.PermissionDenied(op, "denied by host filesystem").WithResource(path)
	}
	return kerr.Wrap(err, kerr.KindInternal, op).WithResource(path)
}
