// Package vfs implements the in-process virtual filesystem façade the
// syscall dispatcher mediates file operations through (spec §6 "VFS
// trait"). It is not a kernel-visible filesystem: there is no FUSE
// mount and no host-facing device node, only a mount table resolving
// paths to pluggable Backend implementations.
package vfs

import (
	"io"
	"time"

	kerr "github.com/nestybox/kerneld/errors"
)

// FileInfo is the metadata shape every Backend.Metadata call returns.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	Mode    uint32
	ModTime time.Time
}

// OpenFlags mirrors the open(2) flag bits the spec's syscall family
// needs (spec §6 open(path, flags, mode)).
type OpenFlags uint32

const (
	OReadOnly OpenFlags = 1 << iota
	OWriteOnly
	OReadWrite
	OCreate
	OTruncate
	OAppend
)

// OpenFile is the handle returned by Backend.Open; it composes the
// standard read/write/seek/close interfaces so callers can treat it
// like any other Go file handle.
type OpenFile interface {
	io.ReadWriteCloser
	io.Seeker
	Truncate(size int64) error
}

// Backend is the trait every mounted filesystem must implement (spec
// §6). The core only ever calls these methods; it never assumes
// anything about how a backend stores bytes.
type Backend interface {
	Name() string
	ReadOnly() bool

	Read(path string) ([]byte, *kerr.KernelError)
	Write(path string, data []byte) *kerr.KernelError
	Delete(path string) *kerr.KernelError
	Exists(path string) bool
	Metadata(path string) (FileInfo, *kerr.KernelError)
	ListDir(path string) ([]FileInfo, *kerr.KernelError)
	CreateDir(path string) *kerr.KernelError
	RemoveDir(path string) *kerr.KernelError
	RemoveDirAll(path string) *kerr.KernelError
	Truncate(path string, size int64) *kerr.KernelError
	Open(path string, flags OpenFlags, mode uint32) (OpenFile, *kerr.KernelError)
}

// checkWritable is the shared guard every mutating Facade method runs
// before delegating to a backend.
func checkWritable(op string, b Backend) *kerr.KernelError {
	if b.ReadOnly() {
		return kerr.PermissionDenied(op, "mount is read-only").WithResource(b.Name())
	}
	return nil
}
