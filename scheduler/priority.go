package scheduler

import (
	"container/heap"

	"github.com/nestybox/kerneld/core"
)

// priorityHeap is a max-heap by Priority, ties broken by insertion
// order (spec §4.5). container/heap is the standard-library idiom for
// this; no pack example reaches for a third-party heap, so this stays
// on the standard library by choice rather than by gap.
type priorityHeap []*Entry

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *priorityHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityPolicy is the max-heap-by-priority scheduling discipline
// (spec §4.5). BoostPriority/LowerPriority adjust the stored priority
// and re-heapify, since priority inversion is explicitly not addressed.
type PriorityPolicy struct {
	h       priorityHeap
	nextSeq int64
}

// NewPriorityPolicy returns an empty priority policy.
func NewPriorityPolicy() *PriorityPolicy { return &PriorityPolicy{} }

func (p *PriorityPolicy) Name() string { return "priority" }

func (p *PriorityPolicy) Push(e *Entry) {
	e.seq = p.nextSeq
	p.nextSeq++
	heap.Push(&p.h, e)
}

func (p *PriorityPolicy) Pop() (*Entry, bool) {
	if p.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&p.h).(*Entry), true
}

func (p *PriorityPolicy) Len() int { return p.h.Len() }

func (p *PriorityPolicy) Remove(pid core.Pid) (*Entry, bool) {
	for i, e := range p.h {
		if e.Pid == pid {
			return heap.Remove(&p.h, i).(*Entry), true
		}
	}
	return nil, false
}

func (p *PriorityPolicy) Drain() []*Entry {
	out := make([]*Entry, 0, p.h.Len())
	for p.h.Len() > 0 {
		out = append(out, heap.Pop(&p.h).(*Entry))
	}
	return out
}

// BoostPriority raises pid's stored priority and re-heapifies.
func (p *PriorityPolicy) BoostPriority(pid core.Pid, delta uint8) bool {
	for _, e := range p.h {
		if e.Pid == pid {
			e.Priority = core.ClampPriority(int(e.Priority) + int(delta))
			heap.Fix(&p.h, e.heapIndex)
			return true
		}
	}
	return false
}

// LowerPriority lowers pid's stored priority and re-heapifies.
func (p *PriorityPolicy) LowerPriority(pid core.Pid, delta uint8) bool {
	for _, e := range p.h {
		if e.Pid == pid {
			e.Priority = core.ClampPriority(int(e.Priority) - int(delta))
			heap.Fix(&p.h, e.heapIndex)
			return true
		}
	}
	return false
}
