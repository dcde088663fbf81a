// Package executor implements the async task layer above the syscall
// dispatcher: fast variants run inline, blocking variants are handed
// to a bounded pool, and batch/pipeline submission fan out or chain
// through the same dispatcher (spec §4.7, §C11).
package executor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nestybox/kerneld/core"
	"github.com/nestybox/kerneld/syscall"
)

// TaskId is the opaque async-task identifier (spec §3), rendered as a
// UUID string (SPEC_FULL.md §B).
type TaskId = core.TaskId

// task is one in-flight or completed async submission.
type task struct {
	id     TaskId
	pid    core.Pid
	done   chan struct{}
	result syscall.Result
	cancel context.CancelFunc
}

// AsyncExecutor runs syscall.Dispatcher requests either inline (Fast
// variants) or on a bounded blocking pool (Blocking variants), and
// tracks outstanding async tasks for cancellation (spec §5
// "Cancellation and timeouts").
type AsyncExecutor struct {
	dispatcher *syscall.Dispatcher
	sem        *semaphore.Weighted

	mu    sync.Mutex
	tasks map[TaskId]*task
}

// NewAsyncExecutor bounds the blocking pool to maxConcurrent
// simultaneous blocking handlers.
func NewAsyncExecutor(d *syscall.Dispatcher, maxConcurrent int64) *AsyncExecutor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &AsyncExecutor{
		dispatcher: d,
		sem:        semaphore.NewWeighted(maxConcurrent),
		tasks:      make(map[TaskId]*task),
	}
}

// Execute classifies req and either calls the dispatcher inline
// (Fast) or blocks on the bounded pool (Blocking), returning the
// result synchronously either way (spec §4.7 "execute").
func (e *AsyncExecutor) Execute(ctx context.Context, req syscall.Request) syscall.Result {
	if syscall.Classify(req.Variant) == syscall.Fast {
		return e.dispatcher.Execute(req)
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return syscall.ErrorResult("execution cancelled before acquiring the blocking pool")
	}
	defer e.sem.Release(1)
	return e.dispatcher.Execute(req)
}

// Submit starts req asynchronously and returns a TaskId the caller can
// Await or Cancel.
func (e *AsyncExecutor) Submit(req syscall.Request) TaskId {
	ctx, cancel := context.WithCancel(context.Background())
	id := TaskId(uuid.NewString())
	t := &task{id: id, pid: req.Pid, done: make(chan struct{}), cancel: cancel}

	e.mu.Lock()
	e.tasks[id] = t
	e.mu.Unlock()

	go func() {
		defer close(t.done)
		if ctx.Err() != nil {
			t.result = syscall.ErrorResult("cancelled")
			return
		}
		t.result = e.Execute(ctx, req)
	}()
	return id
}

// Await blocks until id completes and returns its result.
func (e *AsyncExecutor) Await(id TaskId) (syscall.Result, bool) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return syscall.Result{}, false
	}
	<-t.done
	return t.result, true
}

// Cancel cooperatively cancels a task: if it has not yet started its
// handler, the handler never runs; if it already committed side
// effects, those are not rolled back (spec §5). The task is removed
// from the registry either way.
func (e *AsyncExecutor) Cancel(id TaskId) bool {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		delete(e.tasks, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// ExecuteBatch runs every request concurrently, bounded by the same
// semaphore as single blocking calls, and returns results in the
// input order (spec §4.7 "execute_batch").
func (e *AsyncExecutor) ExecuteBatch(ctx context.Context, reqs []syscall.Request) ([]syscall.Result, error) {
	results := make([]syscall.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			results[i] = e.Execute(gctx, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ExecutePipeline runs requests sequentially through the dispatcher,
// short-circuiting on the first non-success result (spec §4.7
// "execute_pipeline").
func (e *AsyncExecutor) ExecutePipeline(reqs []syscall.Request) syscall.Result {
	return e.dispatcher.ExecutePipeline(reqs)
}
