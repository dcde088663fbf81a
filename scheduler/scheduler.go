package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

// PolicyKind selects which Policy implementation is active.
type PolicyKind int

const (
	PolicyRoundRobin PolicyKind = iota
	PolicyPriority
	PolicyFair
)

// Stats is a point-in-time snapshot of the scheduler's counters (spec
// §4.5). The counters are plain fields read and updated under the
// scheduler's mutex; they are not atomics.
type Stats struct {
	Scheduled       uint64
	ContextSwitches uint64
	Preemptions     uint64
	Active          int64
}

// controlMsg is sent over the scheduler's control channel.
type controlMsg struct {
	kind  controlKind
	value time.Duration
	done  chan struct{}
}

type controlKind int

const (
	ctrlUpdateQuantum controlKind = iota
	ctrlPause
	ctrlResume
	ctrlTrigger
	ctrlShutdown
)

// Scheduler owns the active Policy, the current entry, the
// Pid→QueueLocation index, and the autonomous ticker task (spec
// §4.5). Grounded on the map[id]*record + mutex registry idiom used
// throughout this tree, applied here to the pid→location index.
type Scheduler struct {
	mu       sync.Mutex
	policy   Policy
	kind     PolicyKind
	current  *Entry
	index    map[core.Pid]QueueLocation
	quantum  time.Duration

	scheduled       uint64
	contextSwitches uint64
	preemptions     uint64

	control          chan controlMsg
	shutdownInitiated int32
	stopped           chan struct{}
}

// NewScheduler builds a scheduler under the given policy and quantum.
func NewScheduler(kind PolicyKind, quantum time.Duration) *Scheduler {
	s := &Scheduler{
		policy:  newPolicy(kind),
		kind:    kind,
		index:   make(map[core.Pid]QueueLocation),
		quantum: quantum,
		control: make(chan controlMsg, 8),
		stopped: make(chan struct{}),
	}
	return s
}

func newPolicy(kind PolicyKind) Policy {
	switch kind {
	case PolicyPriority:
		return NewPriorityPolicy()
	case PolicyFair:
		return NewFairPolicy()
	default:
		return NewRoundRobinPolicy()
	}
}

func (s *Scheduler) locationFor(kind PolicyKind) QueueLocation {
	switch kind {
	case PolicyPriority:
		return LocationPriority
	case PolicyFair:
		return LocationFair
	default:
		return LocationRoundRobin
	}
}

// Register adds pid to the ready set under the active policy.
func (s *Scheduler) Register(pid core.Pid, priority core.Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{Pid: pid, Priority: priority, TimeSliceRemaining: s.quantum}
	if s.kind == PolicyFair {
		if fp, ok := s.policy.(*FairPolicy); ok {
			e.Vruntime = fp.MinVruntime(s.current)
		}
	}
	s.policy.Push(e)
	s.index[pid] = s.locationFor(s.kind)
}

// Unregister removes pid entirely (on process termination), from
// wherever it currently lives (spec §8: "|current|+|ready| equals the
// number of registered-but-not-terminated pids").
func (s *Scheduler) Unregister(pid core.Pid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Pid == pid {
		s.current = nil
		delete(s.index, pid)
		return
	}
	s.policy.Remove(pid)
	delete(s.index, pid)
}

// Location reports where pid currently lives, for O(1) membership
// checks (spec §4.5).
func (s *Scheduler) Location(pid core.Pid) (QueueLocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.index[pid]
	return loc, ok
}

// Current returns the currently-running entry's pid, if any.
func (s *Scheduler) Current() (core.Pid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, false
	}
	return s.current.Pid, true
}

// Schedule runs one scheduling decision: if current has exhausted its
// slice, it is preempted back into the ready set with a fresh
// quantum; then the next entry (if any) is selected as current (spec
// §4.5).
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	if s.current != nil {
		if s.current.TimeSliceRemaining <= 0 {
			s.preemptLocked()
		} else {
			return // current still has quantum left; nothing to do
		}
	}
	next, ok := s.policy.Pop()
	if !ok {
		return
	}
	next.TimeSliceRemaining = s.quantum
	next.LastScheduled = time.Now()
	next.HasLastScheduled = true
	s.current = next
	s.index[next.Pid] = LocationCurrent
	s.scheduled++
	s.contextSwitches++
}

func (s *Scheduler) preemptLocked() {
	e := s.current
	e.TimeSliceRemaining = s.quantum
	s.policy.Push(e)
	s.index[e.Pid] = s.locationFor(s.kind)
	s.current = nil
	s.preemptions++
}

// Yield is a voluntary context switch: push current back with a full
// quantum, then schedule (spec §4.5).
func (s *Scheduler) Yield() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.preemptLocked()
	}
	s.scheduleLocked()
}

// Tick charges elapsed time against the current entry's time slice
// (and, under Fair, advances its vruntime), then runs Schedule. This
// is what the autonomous ticker calls every quantum.
func (s *Scheduler) Tick(elapsed time.Duration) {
	s.mu.Lock()
	if s.current != nil {
		s.current.TimeSliceRemaining -= elapsed
		s.current.CpuTime += elapsed
		if s.kind == PolicyFair {
			AdvanceVruntime(s.current, elapsed.Nanoseconds())
		}
	}
	s.scheduleLocked()
	s.mu.Unlock()
}

// SwapPolicy drains all entries under the current policy and
// reinserts them under kind's ordering (spec §4.5: "swapping policy
// drains all entries and reinserts under the new ordering").
func (s *Scheduler) SwapPolicy(kind PolicyKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.policy.Drain()
	s.policy = newPolicy(kind)
	s.kind = kind
	for _, e := range drained {
		s.policy.Push(e)
		s.index[e.Pid] = s.locationFor(kind)
	}
}

// Stats returns a point-in-time snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := int64(s.policy.Len())
	if s.current != nil {
		active++
	}
	return Stats{
		Scheduled:       s.scheduled,
		ContextSwitches: s.contextSwitches,
		Preemptions:     s.preemptions,
		Active:          active,
	}
}

// RunTicker starts the autonomous background task that wakes every
// quantum and invokes Tick (spec §4.5 "Autonomous ticker"). It blocks
// until a Shutdown control message arrives, and should be run in its
// own goroutine.
func (s *Scheduler) RunTicker() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.currentQuantum())
	defer ticker.Stop()

	paused := false
	last := time.Now()
	for {
		select {
		case msg := <-s.control:
			switch msg.kind {
			case ctrlUpdateQuantum:
				s.mu.Lock()
				s.quantum = msg.value
				s.mu.Unlock()
				ticker.Reset(msg.value)
			case ctrlPause:
				paused = true
			case ctrlResume:
				paused = false
				last = time.Now()
			case ctrlTrigger:
				if !paused {
					now := time.Now()
					s.Tick(now.Sub(last))
					last = now
				}
			case ctrlShutdown:
				if msg.done != nil {
					close(msg.done)
				}
				return
			}
		case now := <-ticker.C:
			if !paused {
				s.Tick(now.Sub(last))
				last = now
			}
		}
	}
}

func (s *Scheduler) currentQuantum() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantum
}

// UpdateQuantum changes the ticker interval (spec §4.5 control
// channel).
func (s *Scheduler) UpdateQuantum(d time.Duration) { s.control <- controlMsg{kind: ctrlUpdateQuantum, value: d} }

// Pause suspends automatic ticking without stopping the task.
func (s *Scheduler) Pause() { s.control <- controlMsg{kind: ctrlPause} }

// Resume resumes automatic ticking.
func (s *Scheduler) Resume() { s.control <- controlMsg{kind: ctrlResume} }

// Trigger forces an immediate, out-of-band schedule decision.
func (s *Scheduler) Trigger() { s.control <- controlMsg{kind: ctrlTrigger} }

// Shutdown requests graceful shutdown and blocks until RunTicker has
// exited (spec §4.5: "graceful shutdown consumes the handle"). Only
// the first call has effect; the atomic flag distinguishes this
// deliberate path from an abandoned (Drop-equivalent) scheduler, which
// Go has no destructor hook for — callers that simply stop calling
// RunTicker leak the goroutine until Shutdown is called, same as any
// unclosed Go channel-driven loop.
func (s *Scheduler) Shutdown() *kerr.KernelError {
	if !atomic.CompareAndSwapInt32(&s.shutdownInitiated, 0, 1) {
		return kerr.InvalidArgument("scheduler.shutdown", "shutdown already initiated")
	}
	done := make(chan struct{})
	s.control <- controlMsg{kind: ctrlShutdown, done: done}
	<-done
	<-s.stopped
	return nil
}
