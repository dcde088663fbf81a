package scheduler

import (
	"container/heap"

	"github.com/nestybox/kerneld/core"
)

// fairHeap is a min-heap by Vruntime.
type fairHeap []*Entry

func (h fairHeap) Len() int            { return len(h) }
func (h fairHeap) Less(i, j int) bool  { return h[i].Vruntime < h[j].Vruntime }
func (h fairHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *fairHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *fairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// FairPolicy is the min-heap-by-vruntime scheduling discipline (spec
// §4.5 "Fair"). On Advance, the scheduled entry's vruntime moves
// forward by elapsed·1024/max(priority,1): lower-priority entries
// advance faster, so higher-priority entries accumulate more slowly
// and get scheduled more often.
type FairPolicy struct {
	h fairHeap
}

// NewFairPolicy returns an empty fair policy.
func NewFairPolicy() *FairPolicy { return &FairPolicy{} }

func (p *FairPolicy) Name() string { return "fair" }

// MinVruntime returns the lowest vruntime across the ready queue (and
// optionally the currently-running entry), used to initialise new
// entrants and prevent starvation (spec §4.5).
func (p *FairPolicy) MinVruntime(current *Entry) int64 {
	min := int64(0)
	has := false
	if current != nil {
		min = current.Vruntime
		has = true
	}
	for _, e := range p.h {
		if !has || e.Vruntime < min {
			min = e.Vruntime
			has = true
		}
	}
	return min
}

func (p *FairPolicy) Push(e *Entry) { heap.Push(&p.h, e) }

func (p *FairPolicy) Pop() (*Entry, bool) {
	if p.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&p.h).(*Entry), true
}

func (p *FairPolicy) Len() int { return p.h.Len() }

func (p *FairPolicy) Remove(pid core.Pid) (*Entry, bool) {
	for i, e := range p.h {
		if e.Pid == pid {
			return heap.Remove(&p.h, i).(*Entry), true
		}
	}
	return nil, false
}

func (p *FairPolicy) Drain() []*Entry {
	out := make([]*Entry, 0, p.h.Len())
	for p.h.Len() > 0 {
		out = append(out, heap.Pop(&p.h).(*Entry))
	}
	return out
}

// AdvanceVruntime applies the Fair policy's vruntime formula to e
// after it ran for elapsedNs nanoseconds (spec §4.5).
func AdvanceVruntime(e *Entry, elapsedNs int64) {
	priority := int64(e.Priority)
	if priority < 1 {
		priority = 1
	}
	e.Vruntime += elapsedNs * 1024 / priority
}
