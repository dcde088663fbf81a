package vfs

import (
	kerr "github.com/nestybox/kerneld/errors"
)

// Facade is the single entry point the syscall dispatcher's file
// handlers call into (spec §6). It resolves a path through the mount
// table and forwards to the matching backend, implementing
// cross-mount copy/rename itself since no single Backend can do that.
type Facade struct {
	mounts *MountTable
}

// NewFacade wraps an already-populated mount table.
func NewFacade(mounts *MountTable) *Facade {
	return &Facade{mounts: mounts}
}

func (f *Facade) Read(path string) ([]byte, *kerr.KernelError) {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return nil, err
	}
	return b.Read(rel)
}

func (f *Facade) Write(path string, data []byte) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.write", b); err != nil {
		return err
	}
	return b.Write(rel, data)
}

func (f *Facade) Delete(path string) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.delete", b); err != nil {
		return err
	}
	return b.Delete(rel)
}

func (f *Facade) Exists(path string) bool {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return false
	}
	return b.Exists(rel)
}

func (f *Facade) Metadata(path string) (FileInfo, *kerr.KernelError) {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	return b.Metadata(rel)
}

func (f *Facade) ListDir(path string) ([]FileInfo, *kerr.KernelError) {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return nil, err
	}
	return b.ListDir(rel)
}

func (f *Facade) CreateDir(path string) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.create_dir", b); err != nil {
		return err
	}
	return b.CreateDir(rel)
}

func (f *Facade) RemoveDir(path string) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.remove_dir", b); err != nil {
		return err
	}
	return b.RemoveDir(rel)
}

func (f *Facade) RemoveDirAll(path string) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.remove_dir_all", b); err != nil {
		return err
	}
	return b.RemoveDirAll(rel)
}

func (f *Facade) Truncate(path string, size int64) *kerr.KernelError {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return err
	}
	if err := checkWritable("vfs.truncate", b); err != nil {
		return err
	}
	return b.Truncate(rel, size)
}

func (f *Facade) Open(path string, flags OpenFlags, mode uint32) (OpenFile, *kerr.KernelError) {
	b, rel, err := f.mounts.Resolve(path)
	if err != nil {
		return nil, err
	}
	if flags&(OWriteOnly|OReadWrite|OCreate|OTruncate|OAppend) != 0 {
		if err := checkWritable("vfs.open", b); err != nil {
			return nil, err
		}
	}
	return b.Open(rel, flags, mode)
}

// Copy implements spec §6's "cross-mount copy is read-then-write with
// source delete [for rename]": same-backend copies still go through
// this generic path rather than delegating to a backend-native copy,
// since the Backend trait exposes no copy-within-backend fast path
// either.
func (f *Facade) Copy(src, dst string) *kerr.KernelError {
	data, err := f.Read(src)
	if err != nil {
		return err
	}
	return f.Write(dst, data)
}

// Rename copies src to dst then deletes src. Not atomic across mounts;
// the spec only requires read-then-write-then-delete semantics.
func (f *Facade) Rename(src, dst string) *kerr.KernelError {
	if err := f.Copy(src, dst); err != nil {
		return err
	}
	return f.Delete(src)
}
