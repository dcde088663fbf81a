// Package scheduler implements the three pluggable scheduling policies
// and the autonomous ticker that drives them (spec §4.5, §C8).
package scheduler

import (
	"time"

	"github.com/nestybox/kerneld/core"
)

// Entry is one scheduled pid's bookkeeping record (spec §3 "Scheduler
// entry").
type Entry struct {
	Pid                core.Pid
	Priority           core.Priority
	TimeSliceRemaining time.Duration
	LastScheduled      time.Time
	HasLastScheduled   bool
	CpuTime            time.Duration
	Vruntime           int64

	heapIndex int   // maintained by container/heap for Priority/Fair
	seq       int64 // insertion order, breaks Priority ties (Fair orders by Vruntime alone)
}

// QueueLocation names which collection an Entry currently lives in,
// giving the Pid→QueueLocation index O(1) membership checks (spec
// §4.5).
type QueueLocation int

const (
	LocationNone QueueLocation = iota
	LocationRoundRobin
	LocationPriority
	LocationFair
	LocationCurrent
)

// Policy is the common interface every scheduling discipline
// implements; Scheduler delegates to whichever Policy is active.
type Policy interface {
	Name() string
	Push(e *Entry)
	Pop() (*Entry, bool)
	Len() int
	Remove(pid core.Pid) (*Entry, bool)
	Drain() []*Entry
}
