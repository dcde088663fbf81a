// Package observability defines the event-sink boundary the core
// emits structured events through (spec §6 "Observability sink"). The
// collector's storage model is never assumed; kerneld ships a
// no-op and a logrus-backed implementation for tests and default
// operation (SPEC_FULL.md §C "Monitoring/anomaly boundary").
package observability

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/kerneld/core"
)

// Severity classifies an emitted Event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Event is the structured shape every emission takes (spec §6).
type Event struct {
	TimestampNs int64
	Severity    Severity
	Category    string
	Pid         core.Pid
	HasPid      bool
	CausalityId string
	Payload     map[string]interface{}
}

// ResourceCounts is the per-type tally a ResourceReclaimed event
// carries (spec §4.8 "per-type counts and total duration").
type ResourceCounts struct {
	FdsClosed       int
	PipesDestroyed  int
	QueuesClosed    int
	ShmDetached     int
	ShmDestroyed    int
	MemoryBytesFreed uint64
	MmapsClosed     int
	Duration        time.Duration
	Errors          []string
}

// Collector is the external sink interface (spec §6).
type Collector interface {
	Emit(e Event)
	SyscallExit(pid core.Pid, name string, durationUs int64, success bool)
	ProcessCreated(pid core.Pid)
	ProcessTerminated(pid core.Pid)
	MemoryPressure(usedBytes, totalBytes uint64)
	ResourceCleanup(pid core.Pid, counts ResourceCounts)
}

// NoopCollector discards every event; the default when no sink is
// wired, and useful in tests that don't care about observability.
type NoopCollector struct{}

func (NoopCollector) Emit(Event)                                       {}
func (NoopCollector) SyscallExit(core.Pid, string, int64, bool)        {}
func (NoopCollector) ProcessCreated(core.Pid)                          {}
func (NoopCollector) ProcessTerminated(core.Pid)                       {}
func (NoopCollector) MemoryPressure(uint64, uint64)                    {}
func (NoopCollector) ResourceCleanup(core.Pid, ResourceCounts)         {}

// LogCollector renders every event through logrus at the matching
// level, the way the teacher logs lifecycle transitions in
// state/containerDB.go.
type LogCollector struct {
	log *logrus.Logger
}

// NewLogCollector wraps a logrus.Logger (pass logrus.StandardLogger()
// to use the package-level default).
func NewLogCollector(log *logrus.Logger) *LogCollector {
	return &LogCollector{log: log}
}

func (c *LogCollector) Emit(e Event) {
	entry := c.log.WithField("category", e.Category)
	if e.HasPid {
		entry = entry.WithField("pid", e.Pid)
	}
	switch e.Severity {
	case SeverityWarn:
		entry.Warn("event")
	case SeverityError:
		entry.Error("event")
	default:
		entry.Info("event")
	}
}

func (c *LogCollector) SyscallExit(pid core.Pid, name string, durationUs int64, success bool) {
	c.log.WithFields(logrus.Fields{
		"pid": pid, "syscall": name, "duration_us": durationUs, "success": success,
	}).Debug("syscall_exit")
}

func (c *LogCollector) ProcessCreated(pid core.Pid) {
	c.log.WithField("pid", pid).Info("process_created")
}

func (c *LogCollector) ProcessTerminated(pid core.Pid) {
	c.log.WithField("pid", pid).Info("process_terminated")
}

func (c *LogCollector) MemoryPressure(used, total uint64) {
	c.log.WithFields(logrus.Fields{"used": used, "total": total}).Warn("memory_pressure")
}

func (c *LogCollector) ResourceCleanup(pid core.Pid, counts ResourceCounts) {
	entry := c.log.WithField("pid", pid).WithField("duration", counts.Duration)
	if len(counts.Errors) > 0 {
		entry.WithField("errors", counts.Errors).Warn("resource_cleanup")
		return
	}
	entry.Info("resource_cleanup")
}

// MultiCollector fans every call out to each inner Collector in
// order, letting kerneld log and stream the same event surface
// through one Collector reference instead of wiring every subsystem
// to two sinks.
type MultiCollector struct {
	collectors []Collector
}

// NewMultiCollector fans out to every given collector, in order.
func NewMultiCollector(collectors ...Collector) *MultiCollector {
	return &MultiCollector{collectors: collectors}
}

func (m *MultiCollector) Emit(e Event) {
	for _, c := range m.collectors {
		c.Emit(e)
	}
}

func (m *MultiCollector) SyscallExit(pid core.Pid, name string, durationUs int64, success bool) {
	for _, c := range m.collectors {
		c.SyscallExit(pid, name, durationUs, success)
	}
}

func (m *MultiCollector) ProcessCreated(pid core.Pid) {
	for _, c := range m.collectors {
		c.ProcessCreated(pid)
	}
}

func (m *MultiCollector) ProcessTerminated(pid core.Pid) {
	for _, c := range m.collectors {
		c.ProcessTerminated(pid)
	}
}

func (m *MultiCollector) MemoryPressure(used, total uint64) {
	for _, c := range m.collectors {
		c.MemoryPressure(used, total)
	}
}

func (m *MultiCollector) ResourceCleanup(pid core.Pid, counts ResourceCounts) {
	for _, c := range m.collectors {
		c.ResourceCleanup(pid, counts)
	}
}

// BroadcastCollector fans every emitted Event out to subscriber
// channels, backing the RPC surface's `stream_events` (spec §6). Every
// non-Emit method is rendered into a synthetic Event before fan-out, so
// a single subscription sees the whole event surface regardless of
// which Collector method produced it.
type BroadcastCollector struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextId int
}

// NewBroadcastCollector returns a ready-to-use broadcaster with no
// subscribers.
func NewBroadcastCollector() *BroadcastCollector {
	return &BroadcastCollector{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given channel buffer
// depth and returns its id (for Unsubscribe) and receive channel.
func (b *BroadcastCollector) Subscribe(buffer int) (int, <-chan Event) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextId++
	id := b.nextId
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *BroadcastCollector) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Emit fans e out to every subscriber. A subscriber whose buffer is
// full misses the event rather than blocking the emitter or the other
// subscribers — observability must never add backpressure to the
// syscall path it instruments.
func (b *BroadcastCollector) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *BroadcastCollector) SyscallExit(pid core.Pid, name string, durationUs int64, success bool) {
	b.Emit(Event{
		Severity: SeverityInfo, Category: "syscall_exit", Pid: pid, HasPid: true,
		Payload: map[string]interface{}{"syscall": name, "duration_us": durationUs, "success": success},
	})
}

func (b *BroadcastCollector) ProcessCreated(pid core.Pid) {
	b.Emit(Event{Severity: SeverityInfo, Category: "process_created", Pid: pid, HasPid: true})
}

func (b *BroadcastCollector) ProcessTerminated(pid core.Pid) {
	b.Emit(Event{Severity: SeverityInfo, Category: "process_terminated", Pid: pid, HasPid: true})
}

func (b *BroadcastCollector) MemoryPressure(used, total uint64) {
	b.Emit(Event{
		Severity: SeverityWarn, Category: "memory_pressure",
		Payload: map[string]interface{}{"used": used, "total": total},
	})
}

func (b *BroadcastCollector) ResourceCleanup(pid core.Pid, counts ResourceCounts) {
	severity := SeverityInfo
	if len(counts.Errors) > 0 {
		severity = SeverityWarn
	}
	b.Emit(Event{
		Severity: severity, Category: "resource_cleanup", Pid: pid, HasPid: true,
		Payload: map[string]interface{}{
			"fds_closed": counts.FdsClosed, "pipes_destroyed": counts.PipesDestroyed,
			"queues_closed": counts.QueuesClosed, "shm_detached": counts.ShmDetached,
			"shm_destroyed": counts.ShmDestroyed, "memory_bytes_freed": counts.MemoryBytesFreed,
			"mmaps_closed": counts.MmapsClosed, "errors": counts.Errors,
		},
	})
}
