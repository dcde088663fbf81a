package syscall

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nestybox/kerneld/core"
	"github.com/nestybox/kerneld/observability"
	"github.com/nestybox/kerneld/sandbox"
)

// requirement is the permission request shape a variant maps to,
// before the pid/path/network specifics a given call supplies (spec
// §4.7 handler contract step 2: "build a permission request and call
// check").
type requirement struct {
	resource sandbox.ResourceKind
	action   sandbox.CapabilityKind
}

// requirements maps every variant this tree implements to the
// capability it requires. Variants not listed require no capability
// beyond having a sandbox registered (e.g. scheduler/system queries).
var requirements = map[Variant]requirement{
	FileRead:         {sandbox.ResourceFile, sandbox.CapFileRead},
	FileWrite:        {sandbox.ResourceFile, sandbox.CapFileWrite},
	FileDelete:       {sandbox.ResourceFile, sandbox.CapFileDelete},
	FileExists:       {sandbox.ResourceFile, sandbox.CapFileRead},
	FileMetadata:     {sandbox.ResourceFile, sandbox.CapFileRead},
	FileListDir:      {sandbox.ResourceFile, sandbox.CapFileRead},
	FileCreateDir:    {sandbox.ResourceFile, sandbox.CapFileWrite},
	FileRemoveDir:    {sandbox.ResourceFile, sandbox.CapFileDelete},
	FileRemoveDirAll: {sandbox.ResourceFile, sandbox.CapFileDelete},
	FileCopy:         {sandbox.ResourceFile, sandbox.CapFileWrite},
	FileRename:       {sandbox.ResourceFile, sandbox.CapFileWrite},
	FileTruncate:     {sandbox.ResourceFile, sandbox.CapFileWrite},
	FileOpen:         {sandbox.ResourceFile, sandbox.CapFileRead},

	ProcessCreate:    {sandbox.ResourceProcess, sandbox.CapProcessSpawn},
	ProcessTerminate: {sandbox.ResourceProcess, sandbox.CapProcessSignal},

	ShmCreate:  {sandbox.ResourceIpc, sandbox.CapIpc},
	ShmAttach:  {sandbox.ResourceIpc, sandbox.CapIpc},
	ShmDetach:  {sandbox.ResourceIpc, sandbox.CapIpc},
	ShmRead:    {sandbox.ResourceIpc, sandbox.CapIpc},
	ShmWrite:   {sandbox.ResourceIpc, sandbox.CapIpc},
	ShmDestroy: {sandbox.ResourceIpc, sandbox.CapIpc},

	PipeCreate:  {sandbox.ResourceIpc, sandbox.CapIpc},
	PipeRead:    {sandbox.ResourceIpc, sandbox.CapIpc},
	PipeWrite:   {sandbox.ResourceIpc, sandbox.CapIpc},
	PipeClose:   {sandbox.ResourceIpc, sandbox.CapIpc},
	PipeDestroy: {sandbox.ResourceIpc, sandbox.CapIpc},

	QueueCreate:      {sandbox.ResourceIpc, sandbox.CapIpc},
	QueueSend:        {sandbox.ResourceIpc, sandbox.CapIpc},
	QueueReceive:     {sandbox.ResourceIpc, sandbox.CapIpc},
	QueueSubscribe:   {sandbox.ResourceIpc, sandbox.CapIpc},
	QueueUnsubscribe: {sandbox.ResourceIpc, sandbox.CapIpc},
	QueueClose:       {sandbox.ResourceIpc, sandbox.CapIpc},

	MmapCreate: {sandbox.ResourceFile, sandbox.CapFileRead},
	MmapWrite:  {sandbox.ResourceFile, sandbox.CapFileWrite},
	MmapSync:   {sandbox.ResourceFile, sandbox.CapFileWrite},
}

// Dispatcher runs the common per-handler contract (span, permission
// check, rate limit, dispatch to the registered Handler, error
// conversion) the same way for every variant (spec §4.7).
type Dispatcher struct {
	mu        sync.Mutex
	handlers  map[Variant]Handler
	perms     *sandbox.PermissionManager
	collector observability.Collector

	limiters     map[core.Pid]*rate.Limiter
	limiterRate  rate.Limit
	limiterBurst int
}

// NewDispatcher wires a dispatcher to the sandbox permission manager
// and the observability sink (a nil collector becomes NoopCollector).
// ratePerSecond/burst configure the per-pid token bucket (spec §1
// "rate-limited dispatch"); a ratePerSecond of 0 disables limiting.
func NewDispatcher(perms *sandbox.PermissionManager, collector observability.Collector, ratePerSecond float64, burst int) *Dispatcher {
	if collector == nil {
		collector = observability.NoopCollector{}
	}
	return &Dispatcher{
		handlers:     make(map[Variant]Handler),
		perms:        perms,
		collector:    collector,
		limiters:     make(map[core.Pid]*rate.Limiter),
		limiterRate:  rate.Limit(ratePerSecond),
		limiterBurst: burst,
	}
}

// Register installs the Handler for a variant.
func (d *Dispatcher) Register(v Variant, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[v] = h
}

func (d *Dispatcher) limiterFor(pid core.Pid) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[pid]
	if !ok {
		l = rate.NewLimiter(d.limiterRate, d.limiterBurst)
		d.limiters[pid] = l
	}
	return l
}

// Execute runs the full per-handler contract for a single request
// (spec §4.7 "execute"): permission check, rate limit, dispatch, span
// emission. A panic inside the handler is recovered and converted to
// an Error result plus an Error-severity event (spec §7).
func (d *Dispatcher) Execute(req Request) (result Result) {
	start := time.Now()
	traceId := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			result = ErrorResult("internal error")
			d.collector.Emit(observability.Event{
				Severity:    observability.SeverityError,
				Category:    "syscall_panic",
				Pid:         req.Pid,
				HasPid:      true,
				CausalityId: traceId,
			})
		}
		d.collector.SyscallExit(req.Pid, string(req.Variant), time.Since(start).Microseconds(), result.Kind == ResultSuccess)
	}()

	if d.limiterRate > 0 {
		if !d.limiterFor(req.Pid).Allow() {
			return ErrorResult("rate limit exceeded")
		}
	}

	if reqd, ok := requirements[req.Variant]; ok && d.perms != nil {
		paths := extractPaths(req.Variant, req.Payload)

		decision := d.perms.Check(sandbox.Request{
			Pid:      req.Pid,
			Resource: reqd.resource,
			Action:   reqd.action,
			Path:     paths.path,
		})
		if !decision.Allowed {
			return Denied(decision.Reason)
		}
		req.CanonicalPath = decision.CanonicalPath

		if paths.dst != "" {
			dstDecision := d.perms.Check(sandbox.Request{
				Pid:      req.Pid,
				Resource: reqd.resource,
				Action:   reqd.action,
				Path:     paths.dst,
			})
			if !dstDecision.Allowed {
				return Denied(dstDecision.Reason)
			}
			req.CanonicalDst = dstDecision.CanonicalPath
		}
	}

	d.mu.Lock()
	h, ok := d.handlers[req.Variant]
	d.mu.Unlock()
	if !ok {
		return ErrorResult("unregistered syscall variant")
	}
	return h(req)
}

// ExecuteBatch runs every request concurrently and returns results in
// the same order as the input (spec §4.7 "execute_batch"). Each request
// gets its own goroutine, with no bound on how many run at once;
// executor.AsyncExecutor.ExecuteBatch is the errgroup/semaphore-bounded
// version.
func (d *Dispatcher) ExecuteBatch(reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		wg.Add(1)
		go func(i int, r Request) {
			defer wg.Done()
			results[i] = d.Execute(r)
		}(i, r)
	}
	wg.Wait()
	return results
}

// ExecutePipeline runs requests sequentially, short-circuiting on the
// first non-success result (spec §4.7 "execute_pipeline").
func (d *Dispatcher) ExecutePipeline(reqs []Request) Result {
	var last Result
	for _, r := range reqs {
		last = d.Execute(r)
		if last.Kind != ResultSuccess {
			return last
		}
	}
	return last
}

// pathPair is the real path(s) a permission check must run against,
// decoded from the payload rather than treated as an opaque blob of
// JSON bytes. dst is empty for every variant but the two-path
// FileCopy/FileRename pair.
type pathPair struct {
	path string
	dst  string
}

// extractPaths decodes the path(s) req.Payload actually carries for a
// permission-checked variant (spec §4.6 TOCTOU-safe path rule:
// resolution happens exactly once, before the capability check, off
// the real path the handler will use, not the raw request bytes).
// FileCopy/FileRename carry two paths under "src"/"dst"; every other
// file variant carries one under "path". A variant whose payload has
// no path field at all (e.g. mmap.write addressing an already-granted
// mapping by id) decodes to an empty pathPair; Check canonicalises the
// empty path to "/", so only an allowed_paths entry that is a prefix
// of "/" (such as "/" itself) admits it.
func extractPaths(v Variant, payload []byte) pathPair {
	switch v {
	case FileCopy, FileRename:
		var p renameReq
		decode(payload, &p)
		return pathPair{path: p.Src, dst: p.Dst}
	default:
		var p pathReq
		decode(payload, &p)
		return pathPair{path: p.Path}
	}
}
