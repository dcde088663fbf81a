package syscall

import (
	"encoding/json"

	"github.com/nestybox/kerneld/clipboard"
	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/ipc"
	"github.com/nestybox/kerneld/process"
	"github.com/nestybox/kerneld/scheduler"
	"github.com/nestybox/kerneld/search"
	"github.com/nestybox/kerneld/vfs"
)

// Services bundles the engine handles RegisterHandlers wires into the
// dispatcher. Any field may be nil to skip registering that family.
type Services struct {
	Vfs       *vfs.Facade
	Pipes     *ipc.PipeTable
	Queues    *ipc.QueueTable
	Shm       *ipc.ShmTable
	Mmaps     *ipc.MmapTable
	Processes *process.Manager
	Scheduler *scheduler.Scheduler
	Clipboard *clipboard.Manager
	Searcher  *search.Searcher
}

func decode(payload []byte, v interface{}) *kerr.KernelError {
	if err := json.Unmarshal(payload, v); err != nil {
		return kerr.InvalidArgument("syscall.decode", err.Error())
	}
	return nil
}

func encode(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// RegisterHandlers installs a Handler for every variant svc has the
// backing engine for, following the per-handler contract template
// (spec §4.7): decode payload, perform the effect through the engine,
// convert the engine error, encode the response.
func RegisterHandlers(d *Dispatcher, svc *Services) {
	if svc.Vfs != nil {
		registerFileHandlers(d, svc.Vfs)
	}
	if svc.Pipes != nil {
		registerPipeHandlers(d, svc.Pipes)
	}
	if svc.Queues != nil {
		registerQueueHandlers(d, svc.Queues)
	}
	if svc.Shm != nil {
		registerShmHandlers(d, svc.Shm)
	}
	if svc.Mmaps != nil {
		registerMmapHandlers(d, svc.Mmaps)
	}
	if svc.Processes != nil {
		registerProcessHandlers(d, svc.Processes)
	}
	if svc.Scheduler != nil {
		registerSchedulerHandlers(d, svc.Scheduler)
	}
	if svc.Clipboard != nil {
		registerClipboardHandlers(d, svc.Clipboard)
	}
	if svc.Searcher != nil {
		registerSearchHandlers(d, svc.Searcher)
	}
}

type pathReq struct {
	Path string `json:"path"`
}

type writeReq struct {
	Path string `json:"path"`
	Data []byte `json:"data"`
}

type renameReq struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// registerFileHandlers' handlers use req.CanonicalPath/req.CanonicalDst
// for the actual VFS call rather than re-decoding a path out of
// req.Payload: the dispatcher has already resolved and permission-
// checked those exact strings (spec §4.6 TOCTOU-safe path rule), so a
// handler that decoded its own copy of "path" could end up acting on a
// string the permission check never saw.
func registerFileHandlers(d *Dispatcher, fs *vfs.Facade) {
	d.Register(FileRead, func(req Request) Result {
		data, err := fs.Read(req.CanonicalPath)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(FileWrite, func(req Request) Result {
		var p writeReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(fs.Write(req.CanonicalPath, p.Data))
	})
	d.Register(FileDelete, func(req Request) Result {
		return FromKernelError(fs.Delete(req.CanonicalPath))
	})
	d.Register(FileExists, func(req Request) Result {
		return Success(encode(fs.Exists(req.CanonicalPath)))
	})
	d.Register(FileMetadata, func(req Request) Result {
		info, err := fs.Metadata(req.CanonicalPath)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(info))
	})
	d.Register(FileListDir, func(req Request) Result {
		entries, err := fs.ListDir(req.CanonicalPath)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(entries))
	})
	d.Register(FileCreateDir, func(req Request) Result {
		return FromKernelError(fs.CreateDir(req.CanonicalPath))
	})
	d.Register(FileRemoveDir, func(req Request) Result {
		return FromKernelError(fs.RemoveDir(req.CanonicalPath))
	})
	d.Register(FileRemoveDirAll, func(req Request) Result {
		return FromKernelError(fs.RemoveDirAll(req.CanonicalPath))
	})
	d.Register(FileCopy, func(req Request) Result {
		return FromKernelError(fs.Copy(req.CanonicalPath, req.CanonicalDst))
	})
	d.Register(FileRename, func(req Request) Result {
		return FromKernelError(fs.Rename(req.CanonicalPath, req.CanonicalDst))
	})
}

type pipeWriteReq struct {
	Id   uint32 `json:"id"`
	Data []byte `json:"data"`
}

type pipeReadReq struct {
	Id uint32 `json:"id"`
	N  int    `json:"n"`
}

type pipeCreateReq struct {
	ReaderPid uint32 `json:"reader_pid"`
	WriterPid uint32 `json:"writer_pid"`
	Capacity  uint64 `json:"capacity"`
}

func registerPipeHandlers(d *Dispatcher, pipes *ipc.PipeTable) {
	d.Register(PipeCreate, func(req Request) Result {
		var p pipeCreateReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		if p.Capacity == 0 {
			p.Capacity = core.DefaultPipeCapacity
		}
		id, err := pipes.Create(asPid(p.ReaderPid), asPid(p.WriterPid), req.Pid, p.Capacity)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(id))
	})
	d.Register(PipeWrite, func(req Request) Result {
		var p pipeWriteReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		n, err := pipes.Write(idAsPipe(p.Id), req.Pid, p.Data)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(n))
	})
	d.Register(PipeRead, func(req Request) Result {
		var p pipeReadReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		data, err := pipes.Read(idAsPipe(p.Id), req.Pid, p.N)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(PipeClose, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(pipes.Close(idAsPipe(p.Id)))
	})
	d.Register(PipeDestroy, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(pipes.Destroy(idAsPipe(p.Id)))
	})
}

type queueSendReq struct {
	Id       uint32 `json:"id"`
	Data     []byte `json:"data"`
	Priority uint8  `json:"priority"`
}

type queueCreateReq struct {
	Kind     int `json:"kind"`
	Capacity int `json:"capacity"`
}

func registerQueueHandlers(d *Dispatcher, queues *ipc.QueueTable) {
	d.Register(QueueCreate, func(req Request) Result {
		var p queueCreateReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		id := queues.Create(req.Pid, ipc.QueueKind(p.Kind), p.Capacity)
		return Success(encode(id))
	})
	d.Register(QueueSubscribe, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(queues.Subscribe(idAsQueue(p.Id), req.Pid))
	})
	d.Register(QueueUnsubscribe, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(queues.Unsubscribe(idAsQueue(p.Id), req.Pid))
	})
	d.Register(QueueSend, func(req Request) Result {
		var p queueSendReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(queues.Send(idAsQueue(p.Id), req.Pid, p.Data, p.Priority))
	})
	d.Register(QueueReceive, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		data, err := queues.Receive(idAsQueue(p.Id), req.Pid)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(QueueClose, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(queues.Close(idAsQueue(p.Id)))
	})
}

type shmRwReq struct {
	Id     uint32 `json:"id"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
	Data   []byte `json:"data"`
}

func registerShmHandlers(d *Dispatcher, shm *ipc.ShmTable) {
	d.Register(ShmCreate, func(req Request) Result {
		var p struct {
			Size uint64 `json:"size"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		id, err := shm.Create(p.Size, req.Pid)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(id))
	})
	d.Register(ShmAttach, func(req Request) Result {
		var p struct {
			Id       uint32 `json:"id"`
			ReadOnly bool   `json:"read_only"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(shm.Attach(idAsShm(p.Id), req.Pid, p.ReadOnly))
	})
	d.Register(ShmDetach, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(shm.Detach(idAsShm(p.Id), req.Pid))
	})
	d.Register(ShmRead, func(req Request) Result {
		var p shmRwReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		data, err := shm.Read(idAsShm(p.Id), req.Pid, p.Offset, p.Length)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(ShmWrite, func(req Request) Result {
		var p shmRwReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(shm.Write(idAsShm(p.Id), req.Pid, p.Offset, p.Data))
	})
	d.Register(ShmDestroy, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(shm.Destroy(idAsShm(p.Id), req.Pid))
	})
}

type createProcessReq struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
}

func registerProcessHandlers(d *Dispatcher, procs *process.Manager) {
	d.Register(ProcessCreate, func(req Request) Result {
		var p createProcessReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		pid, err := procs.Create(p.Name, asPriority(p.Priority), defaultLimits())
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(pid))
	})
	d.Register(ProcessTerminate, func(req Request) Result {
		var p struct {
			Pid uint32 `json:"pid"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		counts := procs.Terminate(asPid(p.Pid))
		return Success(encode(counts))
	})
	d.Register(ProcessInfo, func(req Request) Result {
		var p struct {
			Pid uint32 `json:"pid"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		rec, ok := procs.Get(asPid(p.Pid))
		if !ok {
			return ErrorResult("no such process")
		}
		return Success(encode(rec))
	})
}

func registerSchedulerHandlers(d *Dispatcher, sched *scheduler.Scheduler) {
	d.Register(SchedulerStats, func(req Request) Result {
		return Success(encode(sched.Stats()))
	})
	d.Register(SchedulerYield, func(req Request) Result {
		sched.Yield()
		return Success(nil)
	})
}

type mmapCreateReq struct {
	Path   string       `json:"path"`
	Offset int64        `json:"offset"`
	Length int64        `json:"length"`
	Prot   ipc.MmapProt `json:"prot"`
	Flag   ipc.MmapFlag `json:"flag"`
}

func registerMmapHandlers(d *Dispatcher, mmaps *ipc.MmapTable) {
	d.Register(MmapCreate, func(req Request) Result {
		var p mmapCreateReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		id, err := mmaps.Mmap(req.Pid, req.CanonicalPath, p.Offset, p.Length, p.Prot, p.Flag)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(encode(id))
	})
	d.Register(MmapRead, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		data, err := mmaps.Read(idAsMmap(p.Id))
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(MmapWrite, func(req Request) Result {
		var p struct {
			Id     uint32 `json:"id"`
			Offset int64  `json:"offset"`
			Data   []byte `json:"data"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(mmaps.Write(idAsMmap(p.Id), p.Offset, p.Data))
	})
	d.Register(MmapSync, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(mmaps.Msync(idAsMmap(p.Id)))
	})
	d.Register(MmapClose, func(req Request) Result {
		var p struct {
			Id uint32 `json:"id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		return FromKernelError(mmaps.Munmap(idAsMmap(p.Id)))
	})
}

type clipboardCopyReq struct {
	Data []byte `json:"data"`
}

func registerClipboardHandlers(d *Dispatcher, clip *clipboard.Manager) {
	d.Register(ClipboardCopy, func(req Request) Result {
		var p clipboardCopyReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		id := clip.Copy(req.Pid, p.Data)
		return Success(encode(id))
	})
	d.Register(ClipboardPaste, func(req Request) Result {
		data, err := clip.Paste(req.Pid)
		if err != nil {
			return FromKernelError(err)
		}
		return Success(data)
	})
	d.Register(ClipboardHistory, func(req Request) Result {
		return Success(encode(clip.History(req.Pid)))
	})
	d.Register(ClipboardClear, func(req Request) Result {
		clip.Clear(req.Pid)
		return Success(nil)
	})
}

type searchFileReq struct {
	Dir     string `json:"dir"`
	Pattern string `json:"pattern"`
}

type searchContentReq struct {
	Dir    string `json:"dir"`
	Needle string `json:"needle"`
}

func registerSearchHandlers(d *Dispatcher, s *search.Searcher) {
	d.Register(SearchFile, func(req Request) Result {
		var p searchFileReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		matches, err := s.FileSearch(p.Dir, p.Pattern)
		if err != nil {
			return ErrorResult(err.Error())
		}
		return Success(encode(matches))
	})
	d.Register(SearchContent, func(req Request) Result {
		var p searchContentReq
		if err := decode(req.Payload, &p); err != nil {
			return FromKernelError(err)
		}
		matches, err := s.ContentSearch(p.Dir, p.Needle)
		if err != nil {
			return ErrorResult(err.Error())
		}
		return Success(encode(matches))
	})
}
