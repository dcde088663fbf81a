package ipc

import (
	"sync"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/memory"
	"github.com/nestybox/kerneld/waitqueue"
)

// QueueKind selects the delivery discipline a Queue uses (spec §3).
type QueueKind int

const (
	QueueFIFO QueueKind = iota
	QueuePriority
	QueuePubSub
)

// message is one queued body. Its size is accounted against the
// sender through a memory-manager region (address/size), while the
// bytes themselves travel alongside the accounting handle — the
// memory manager is a quota ledger, not a byte-addressable store, so
// actual storage lives on the message the same way a pipe's ring
// buffer holds its own bytes. Sequence breaks priority ties FIFO (spec
// §4.4 "ties broken by insertion order").
type message struct {
	address  uint64
	data     []byte
	priority uint8
	sequence uint64
	sender   core.Pid
}

// Queue is one FIFO/Priority/PubSub queue (spec §3 "Queue").
type Queue struct {
	id          core.QueueId
	owner       core.Pid
	kind        QueueKind
	capacity    int // 0 = unbounded
	body        []message
	subscribers map[core.Pid][]message
	closed      bool
	nextSeq     uint64
}

// QueueTable owns every live queue.
type QueueTable struct {
	mu      sync.Mutex
	queues  map[core.QueueId]*Queue
	ids     *core.MonotonicIdAllocator
	mem     *memory.Manager
	waiters *waitqueue.WaitQueue[core.QueueId]
}

// NewQueueTable wires a queue table to the shared memory manager.
func NewQueueTable(mem *memory.Manager) *QueueTable {
	return &QueueTable{
		queues:  make(map[core.QueueId]*Queue),
		ids:     core.NewMonotonicIdAllocator(),
		mem:     mem,
		waiters: waitqueue.New[core.QueueId](waitqueue.ProfileDefault, waitqueue.DefaultSyncConfig()),
	}
}

// Create registers a new queue of the given kind, owned by owner.
func (t *QueueTable) Create(owner core.Pid, kind QueueKind, capacity int) core.QueueId {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := core.QueueId(t.ids.Next())
	t.queues[id] = &Queue{
		id:          id,
		owner:       owner,
		kind:        kind,
		capacity:    capacity,
		subscribers: make(map[core.Pid][]message),
	}
	return id
}

func (t *QueueTable) get(id core.QueueId) (*Queue, *kerr.KernelError) {
	q, ok := t.queues[id]
	if !ok {
		return nil, kerr.NotFound("queue", "no such queue").WithResource(id.String())
	}
	return q, nil
}

// Subscribe registers pid as a PubSub subscriber with its own mailbox.
func (t *QueueTable) Subscribe(id core.QueueId, pid core.Pid) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.get(id)
	if err != nil {
		return err
	}
	if q.kind != QueuePubSub {
		return kerr.InvalidArgument("queue.subscribe", "not a pubsub queue")
	}
	if _, ok := q.subscribers[pid]; !ok {
		q.subscribers[pid] = nil
	}
	return nil
}

// Unsubscribe drops pid's mailbox.
func (t *QueueTable) Unsubscribe(id core.QueueId, pid core.Pid) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.get(id)
	if err != nil {
		return err
	}
	delete(q.subscribers, pid)
	return nil
}

// Send enqueues data from pid into the queue, honouring capacity per
// the queue's kind: FIFO/Priority count total messages, PubSub counts
// per-subscriber mailbox depth (spec §4.4).
func (t *QueueTable) Send(id core.QueueId, from core.Pid, data []byte, priority uint8) *kerr.KernelError {
	addr, mErr := t.mem.Allocate(uint64(len(data)), from, 0)
	if mErr != nil {
		return mErr
	}
	payload := make([]byte, len(data))
	copy(payload, data)

	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.get(id)
	if err != nil {
		t.mem.Deallocate(addr)
		return err
	}
	if q.closed {
		t.mem.Deallocate(addr)
		return kerr.Closed("queue.send", "queue is closed")
	}

	msg := message{address: addr, data: payload, priority: priority, sequence: q.nextSeq, sender: from}
	q.nextSeq++

	switch q.kind {
	case QueuePubSub:
		for pid, mb := range q.subscribers {
			if q.capacity > 0 && len(mb) >= q.capacity {
				continue // per-subscriber capacity full: silently drop for that subscriber
			}
			q.subscribers[pid] = append(mb, msg)
		}
	default:
		if q.capacity > 0 && len(q.body) >= q.capacity {
			t.mem.Deallocate(addr)
			return kerr.CapacityExceeded("queue.send", "queue is full").WithResource(id.String())
		}
		q.body = append(q.body, msg)
		if q.kind == QueuePriority {
			sortByPriorityThenSequence(q.body)
		}
	}

	t.waitersFor(id)
	return nil
}

// sortByPriorityThenSequence is a small insertion sort: queue depths
// here are bounded by per-process limits, so O(n) insertion beats
// pulling in a heap package for what is effectively a short list.
func sortByPriorityThenSequence(body []message) {
	for i := 1; i < len(body); i++ {
		j := i
		for j > 0 && less(body[j], body[j-1]) {
			body[j], body[j-1] = body[j-1], body[j]
			j--
		}
	}
}

func less(a, b message) bool {
	if a.priority != b.priority {
		return a.priority > b.priority // max-priority first
	}
	return a.sequence < b.sequence
}

// Receive pops the next deliverable message for pid: from q.body for
// FIFO/Priority, from pid's own mailbox for PubSub.
func (t *QueueTable) Receive(id core.QueueId, pid core.Pid) ([]byte, *kerr.KernelError) {
	t.mu.Lock()
	q, err := t.get(id)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	var msg message
	var ok bool
	if q.kind == QueuePubSub {
		mb := q.subscribers[pid]
		if len(mb) > 0 {
			msg, mb = mb[0], mb[1:]
			q.subscribers[pid] = mb
			ok = true
		}
	} else if len(q.body) > 0 {
		msg, q.body = q.body[0], q.body[1:]
		ok = true
	}
	t.mu.Unlock()

	if !ok {
		return nil, nil
	}
	t.mem.Deallocate(msg.address)
	t.waitersFor(id)
	return msg.data, nil
}

func (t *QueueTable) waitersFor(id core.QueueId) {
	t.waiters.WakeOne(id)
}

// Close marks a queue closed; further Sends fail with Closed.
func (t *QueueTable) Close(id core.QueueId) *kerr.KernelError {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.get(id)
	if err != nil {
		return err
	}
	q.closed = true
	return nil
}

// Waiters exposes the queue wait queue for blocking receive handlers.
func (t *QueueTable) Waiters() *waitqueue.WaitQueue[core.QueueId] { return t.waiters }

// CleanupPid closes every queue pid owns and drops pid's subscription
// from every other queue, used by the process cleanup orchestrator
// (spec §4.8 "close owned queues"). Returns how many owned queues were
// closed.
func (t *QueueTable) CleanupPid(pid core.Pid) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	closed := 0
	for _, q := range t.queues {
		if q.owner == pid {
			q.closed = true
			closed++
			continue
		}
		delete(q.subscribers, pid)
	}
	return closed
}
