// Package syscall implements the mediation boundary every external
// request crosses: a tagged variant enum, its Fast/Blocking
// classification, and a Dispatcher that runs the common per-handler
// contract (permission check, path resolution, effect, error
// conversion) before handing off to a family-specific handler (spec
// §4.7, §C10).
package syscall

import (
	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

// Variant names one syscall. The full spec enumerates roughly 90
// variants across a dozen subsystem families; this tree names a subset
// of them, in the families the backing engines actually
// implement, since a syscall with no backing engine (network I/O,
// signal delivery to a real host process) would have nothing to
// convincingly dispatch to — see DESIGN.md for the families left
// unlisted and why.
type Variant string

const (
	FileRead         Variant = "file.read"
	FileWrite        Variant = "file.write"
	FileDelete       Variant = "file.delete"
	FileExists       Variant = "file.exists"
	FileMetadata     Variant = "file.metadata"
	FileListDir      Variant = "file.list_dir"
	FileCreateDir    Variant = "file.create_dir"
	FileRemoveDir    Variant = "file.remove_dir"
	FileRemoveDirAll Variant = "file.remove_dir_all"
	FileCopy         Variant = "file.copy"
	FileRename       Variant = "file.rename"
	FileTruncate     Variant = "file.truncate"
	FileOpen         Variant = "file.open"

	ProcessCreate    Variant = "process.create"
	ProcessTerminate Variant = "process.terminate"
	ProcessInfo      Variant = "process.info"

	MemoryAllocate     Variant = "memory.allocate"
	MemoryDeallocate   Variant = "memory.deallocate"
	MemoryInfo         Variant = "memory.info"
	MemoryForceCollect Variant = "memory.force_collect"

	PipeCreate  Variant = "pipe.create"
	PipeRead    Variant = "pipe.read"
	PipeWrite   Variant = "pipe.write"
	PipeClose   Variant = "pipe.close"
	PipeDestroy Variant = "pipe.destroy"

	QueueCreate      Variant = "queue.create"
	QueueSend        Variant = "queue.send"
	QueueReceive     Variant = "queue.receive"
	QueueSubscribe   Variant = "queue.subscribe"
	QueueUnsubscribe Variant = "queue.unsubscribe"
	QueueClose       Variant = "queue.close"

	ShmCreate  Variant = "shm.create"
	ShmAttach  Variant = "shm.attach"
	ShmDetach  Variant = "shm.detach"
	ShmRead    Variant = "shm.read"
	ShmWrite   Variant = "shm.write"
	ShmDestroy Variant = "shm.destroy"

	MmapCreate Variant = "mmap.create"
	MmapRead   Variant = "mmap.read"
	MmapWrite  Variant = "mmap.write"
	MmapSync   Variant = "mmap.sync"
	MmapClose  Variant = "mmap.close"

	SchedulerRegister   Variant = "scheduler.register"
	SchedulerUnregister Variant = "scheduler.unregister"
	SchedulerYield      Variant = "scheduler.yield"
	SchedulerStats      Variant = "scheduler.stats"
	SchedulerSwapPolicy Variant = "scheduler.swap_policy"

	FdOpen  Variant = "fd.open"
	FdClose Variant = "fd.close"
	FdDup   Variant = "fd.dup"
	FdDup2  Variant = "fd.dup2"
	FdFcntl Variant = "fd.fcntl"

	ClipboardCopy    Variant = "clipboard.copy"
	ClipboardPaste   Variant = "clipboard.paste"
	ClipboardHistory Variant = "clipboard.history"
	ClipboardClear   Variant = "clipboard.clear"

	SearchFile    Variant = "search.file"
	SearchContent Variant = "search.content"
)

// Class is a variant's compile-time execution classification (spec
// §4.7).
type Class int

const (
	Fast Class = iota
	Blocking
)

// fastVariants are the ≤100ns, no-I/O, no-blocking variants (spec
// §4.7: "in-memory lookups — stats, process info, ... FD registry
// ops, scheduler queries"). Everything else defaults to Blocking.
var fastVariants = map[Variant]bool{
	ProcessInfo:    true,
	MemoryInfo:     true,
	SchedulerStats: true,
	FdDup:          true,
	FdDup2:         true,
	FdFcntl:        true,
}

// Classify reports whether v is Fast or Blocking.
func Classify(v Variant) Class {
	if fastVariants[v] {
		return Fast
	}
	return Blocking
}

// ResultKind is which arm of SyscallResult a handler produced (spec
// §4.7: "SyscallResult := Success{data?} | Error{message} |
// PermissionDenied{reason}").
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultError
	ResultPermissionDenied
)

// Result is the single value every handler returns.
type Result struct {
	Kind    ResultKind
	Data    []byte
	Message string
}

func Success(data []byte) Result { return Result{Kind: ResultSuccess, Data: data} }

func ErrorResult(message string) Result { return Result{Kind: ResultError, Message: message} }

func Denied(reason string) Result { return Result{Kind: ResultPermissionDenied, Message: reason} }

// FromKernelError converts an engine-level error into the Error or
// PermissionDenied arm of Result (spec §4.7 handler contract step 6).
func FromKernelError(err *kerr.KernelError) Result {
	if err == nil {
		return Success(nil)
	}
	if err.Kind == kerr.KindPermissionDenied {
		return Denied(err.Error())
	}
	return ErrorResult(err.Error())
}

// Request is the (pid, variant, payload) tuple the RPC surface feeds
// the dispatcher (spec §6: "a stream of (pid, syscall_variant,
// payload_bytes) tuples"). CanonicalPath/CanonicalDst are filled in by
// the dispatcher's permission check before a handler ever runs (spec
// §4.6 TOCTOU-safe path rule: resolution happens exactly once, before
// the capability check, and the canonical form is what the handler
// uses onward); handlers must use these fields rather than re-decoding
// a path out of Payload themselves.
type Request struct {
	Pid           core.Pid
	Variant       Variant
	Payload       []byte
	CanonicalPath string
	CanonicalDst  string
}

// Handler implements one variant's effect, after the dispatcher has
// already run the permission check (spec §4.7 handler contract).
type Handler func(req Request) Result
