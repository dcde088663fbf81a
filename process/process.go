// Package process implements the process lifecycle state machine and
// the creation/termination orchestrators that wire every other
// subsystem together on a pid's behalf (spec §4.8, §C9). Grounded on
// the teacher's state/containerDB.go registry shape and its ordered
// setup/teardown discipline in process/process.go.
package process

import (
	"fmt"
	"sync"
	"time"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/fdtable"
	"github.com/nestybox/kerneld/ipc"
	"github.com/nestybox/kerneld/memory"
	"github.com/nestybox/kerneld/observability"
	"github.com/nestybox/kerneld/sandbox"
	"github.com/nestybox/kerneld/scheduler"
)

// State is a process's lifecycle stage (spec §4.8).
type State int

const (
	StateCreating State = iota
	StateInitializing
	StateReady
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// validTransitions encodes the allowed edges (spec §4.8:
// "Creating -> Initializing -> Ready <-> Running -> Waiting -> Terminated",
// plus Terminated reachable from any non-terminal state on force-kill).
var validTransitions = map[State]map[State]bool{
	StateCreating:      {StateInitializing: true, StateTerminated: true},
	StateInitializing:  {StateReady: true, StateTerminated: true},
	StateReady:         {StateRunning: true, StateTerminated: true},
	StateRunning:       {StateReady: true, StateWaiting: true, StateTerminated: true},
	StateWaiting:       {StateRunning: true, StateTerminated: true},
	StateTerminated:    {},
}

// Process is one supervised process's record (spec §3).
type Process struct {
	Pid        core.Pid
	Name       string
	Priority   core.Priority
	State      State
	CreatedAt  time.Time
	Fds        *fdtable.Table
	HasSandbox bool
}

// Manager owns every live process record plus the subsystem handles
// create/terminate orchestrate. Grounded on the map[id]*record +
// mutex registry idiom used throughout this tree.
type Manager struct {
	mu        sync.Mutex
	processes map[core.Pid]*Process

	pids       *core.PidAllocator
	mem        *memory.Manager
	pipes      *ipc.PipeTable
	queues     *ipc.QueueTable
	shm        *ipc.ShmTable
	mmaps      *ipc.MmapTable
	sched      *scheduler.Scheduler
	sandboxes  *sandbox.Registry
	collector  observability.Collector
	fdLimit    uint32
}

// Config bundles the subsystem handles a Manager wires together.
type Config struct {
	Memory     *memory.Manager
	Pipes      *ipc.PipeTable
	Queues     *ipc.QueueTable
	Shm        *ipc.ShmTable
	Mmaps      *ipc.MmapTable
	Scheduler  *scheduler.Scheduler
	Sandboxes  *sandbox.Registry
	Collector  observability.Collector
	FdLimit    uint32
}

// NewManager builds a process manager over the given subsystem
// handles. A nil Collector defaults to NoopCollector.
func NewManager(cfg Config) *Manager {
	collector := cfg.Collector
	if collector == nil {
		collector = observability.NoopCollector{}
	}
	return &Manager{
		processes: make(map[core.Pid]*Process),
		pids:      &core.PidAllocator{},
		mem:       cfg.Memory,
		pipes:     cfg.Pipes,
		queues:    cfg.Queues,
		shm:       cfg.Shm,
		mmaps:     cfg.Mmaps,
		sched:     cfg.Scheduler,
		sandboxes: cfg.Sandboxes,
		collector: collector,
		fdLimit:   cfg.FdLimit,
	}
}

// hook is one ordered step of process creation; undo reverses it.
type hook struct {
	name string
	run  func(p *Process, limits core.ResourceLimits) *kerr.KernelError
	undo func(p *Process)
}

// creationHooks is the fixed ordered sequence (spec §4.8: "memory
// prerequisite, zero-copy ring, signal state, FD table stdio"). "Zero-
// copy ring" and "signal state" map onto this tree's pipe and sandbox
// subsystems respectively; there is no dedicated signal-state module,
// so that hook installs the sandbox record the permission checks
// consult, the closest analogue this tree has to per-pid signal
// disposition state.
func (m *Manager) creationHooks() []hook {
	return []hook{
		{
			name: "memory_prerequisite",
			run: func(p *Process, limits core.ResourceLimits) *kerr.KernelError {
				if m.mem == nil {
					return nil
				}
				_, err := m.mem.Allocate(1, p.Pid, limits.MaxMemoryBytes)
				return err
			},
			undo: func(p *Process) {
				if m.mem != nil {
					m.mem.FreeProcessMemory(p.Pid)
				}
			},
		},
		{
			name: "zero_copy_ring",
			run: func(p *Process, limits core.ResourceLimits) *kerr.KernelError {
				if m.pipes == nil {
					return nil
				}
				_, err := m.pipes.Create(p.Pid, p.Pid, p.Pid, core.DefaultPipeCapacity)
				return err
			},
			undo: func(p *Process) {
				if m.pipes != nil {
					m.pipes.DestroyOwnedByCreator(p.Pid)
				}
			},
		},
		{
			name: "signal_state",
			run: func(p *Process, limits core.ResourceLimits) *kerr.KernelError {
				if m.sandboxes == nil {
					return nil
				}
				sb := sandbox.NewSandbox(p.Pid, limits)
				m.sandboxes.Put(sb)
				p.HasSandbox = true
				return nil
			},
			undo: func(p *Process) {
				if m.sandboxes != nil {
					m.sandboxes.Remove(p.Pid)
				}
				p.HasSandbox = false
			},
		},
		{
			name: "fd_table_stdio",
			run: func(p *Process, limits core.ResourceLimits) *kerr.KernelError {
				limit := limits.MaxFileDescriptors
				if limit == 0 {
					limit = m.fdLimit
				}
				p.Fds = fdtable.NewTable(limit)
				return nil
			},
			undo: func(p *Process) { p.Fds = nil },
		},
	}
}

// Create runs the ordered hook sequence for a new process, undoing
// already-applied hooks in reverse order if any hook fails (spec §4.8:
// "create_process runs ordered hooks ... and unwinds prior hooks in
// reverse order on any failure").
func (m *Manager) Create(name string, priority core.Priority, limits core.ResourceLimits) (core.Pid, *kerr.KernelError) {
	pid := m.pids.Next()
	p := &Process{
		Pid:       pid,
		Name:      name,
		Priority:  priority,
		State:     StateCreating,
		CreatedAt: time.Now(),
	}

	p.State = StateInitializing
	hooks := m.creationHooks()
	applied := 0
	var failErr *kerr.KernelError
	for i, h := range hooks {
		if err := h.run(p, limits); err != nil {
			failErr = err
			applied = i
			break
		}
		applied = i + 1
	}
	if failErr != nil {
		for i := applied - 1; i >= 0; i-- {
			hooks[i].undo(p)
		}
		return 0, failErr
	}

	p.State = StateReady
	m.mu.Lock()
	m.processes[pid] = p
	m.mu.Unlock()

	if m.sched != nil {
		m.sched.Register(pid, priority)
	}
	m.collector.ProcessCreated(pid)
	return pid, nil
}

// Get looks up a process record by pid.
func (m *Manager) Get(pid core.Pid) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	return p, ok
}

// Transition moves pid to next, rejecting edges outside
// validTransitions (spec §4.8).
func (m *Manager) Transition(pid core.Pid, next State) *kerr.KernelError {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	if !ok {
		return kerr.NotFound("process.transition", "no such process").WithResource(pid.String())
	}
	if !validTransitions[p.State][next] {
		return kerr.InvalidArgument("process.transition",
			fmt.Sprintf("illegal transition %s -> %s", p.State, next)).WithResource(pid.String())
	}
	p.State = next
	return nil
}

// Terminate runs the cleanup orchestrator for pid: it is idempotent
// (a no-op on an already-terminated or unknown pid) and aggregates any
// per-subsystem failure into the emitted ResourceReclaimed event
// rather than aborting the remaining cleanup steps (spec §4.8).
func (m *Manager) Terminate(pid core.Pid) observability.ResourceCounts {
	start := time.Now()

	m.mu.Lock()
	p, ok := m.processes[pid]
	if !ok || p.State == StateTerminated {
		m.mu.Unlock()
		return observability.ResourceCounts{Duration: time.Since(start)}
	}
	p.State = StateTerminated
	m.mu.Unlock()

	var counts observability.ResourceCounts

	if m.sched != nil {
		m.sched.Unregister(pid)
	}

	if p.Fds != nil {
		counts.FdsClosed = p.Fds.CloseAll()
	}

	if m.pipes != nil {
		counts.PipesDestroyed = m.pipes.DestroyOwnedByCreator(pid)
	}

	if m.shm != nil {
		counts.ShmDestroyed, counts.ShmDetached = m.shm.CleanupPid(pid)
	}

	if m.queues != nil {
		counts.QueuesClosed = m.queues.CleanupPid(pid)
	}

	if m.mmaps != nil {
		closed, errs := m.mmaps.CleanupPid(pid)
		counts.MmapsClosed = closed
		counts.Errors = append(counts.Errors, errs...)
	}

	if m.mem != nil {
		counts.MemoryBytesFreed = m.mem.FreeProcessMemory(pid)
	}

	if m.sandboxes != nil {
		m.sandboxes.Remove(pid)
	}

	counts.Duration = time.Since(start)

	m.mu.Lock()
	delete(m.processes, pid)
	m.mu.Unlock()

	m.collector.ProcessTerminated(pid)
	m.collector.ResourceCleanup(pid, counts)
	return counts
}

// Count reports how many processes are currently tracked (not
// terminated).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes)
}
