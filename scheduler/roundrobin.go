package scheduler

import "github.com/nestybox/kerneld/core"

// RoundRobinPolicy is a single ready deque: schedule takes the front;
// on quantum exhaustion the entry is pushed to the back with a fresh
// quantum (spec §4.5).
type RoundRobinPolicy struct {
	deque []*Entry
}

// NewRoundRobinPolicy returns an empty round-robin policy.
func NewRoundRobinPolicy() *RoundRobinPolicy { return &RoundRobinPolicy{} }

func (p *RoundRobinPolicy) Name() string { return "round_robin" }

func (p *RoundRobinPolicy) Push(e *Entry) { p.deque = append(p.deque, e) }

func (p *RoundRobinPolicy) Pop() (*Entry, bool) {
	if len(p.deque) == 0 {
		return nil, false
	}
	e := p.deque[0]
	p.deque = p.deque[1:]
	return e, true
}

func (p *RoundRobinPolicy) Len() int { return len(p.deque) }

func (p *RoundRobinPolicy) Remove(pid core.Pid) (*Entry, bool) {
	for i, e := range p.deque {
		if e.Pid == pid {
			p.deque = append(p.deque[:i], p.deque[i+1:]...)
			return e, true
		}
	}
	return nil, false
}

func (p *RoundRobinPolicy) Drain() []*Entry {
	out := p.deque
	p.deque = nil
	return out
}
