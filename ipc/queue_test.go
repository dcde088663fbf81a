package ipc

import (
	"testing"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
	"github.com/nestybox/kerneld/memory"
)

func TestFIFOPerSenderOrderingPreserved(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	qt := NewQueueTable(mem)
	id := qt.Create(core.Pid(1), QueueFIFO, 0)

	sender := core.Pid(2)
	for _, msg := range []string{"a", "b", "c"} {
		if err := qt.Send(id, sender, []byte(msg), 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := qt.Receive(id, core.Pid(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestPriorityQueueMaxFirstTiesFIFO(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	qt := NewQueueTable(mem)
	id := qt.Create(core.Pid(1), QueuePriority, 0)
	sender := core.Pid(2)

	qt.Send(id, sender, []byte("low-1"), 1)
	qt.Send(id, sender, []byte("high-1"), 10)
	qt.Send(id, sender, []byte("high-2"), 10)
	qt.Send(id, sender, []byte("low-2"), 1)

	order := []string{"high-1", "high-2", "low-1", "low-2"}
	for _, want := range order {
		got, err := qt.Receive(id, core.Pid(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestPubSubDeliversIndependentCopies(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	qt := NewQueueTable(mem)
	id := qt.Create(core.Pid(1), QueuePubSub, 0)

	subA, subB := core.Pid(2), core.Pid(3)
	qt.Subscribe(id, subA)
	qt.Subscribe(id, subB)

	if err := qt.Send(id, core.Pid(9), []byte("event"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotA, errA := qt.Receive(id, subA)
	gotB, errB := qt.Receive(id, subB)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v %v", errA, errB)
	}
	if string(gotA) != "event" || string(gotB) != "event" {
		t.Fatalf("expected both subscribers to receive their own copy, got %q %q", gotA, gotB)
	}
}

func TestQueueCapacityFull(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	qt := NewQueueTable(mem)
	id := qt.Create(core.Pid(1), QueueFIFO, 1)

	if err := qt.Send(id, core.Pid(2), []byte("x"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := qt.Send(id, core.Pid(2), []byte("y"), 0); kerr.KindOf(err) != kerr.KindCapacityExceeded {
		t.Fatalf("expected CapacityExceeded on a full FIFO queue, got %v", err)
	}
}

func TestReceiveOnEmptyQueueReturnsNil(t *testing.T) {
	mem := memory.NewManager(1 << 20)
	qt := NewQueueTable(mem)
	id := qt.Create(core.Pid(1), QueueFIFO, 0)

	got, err := qt.Receive(id, core.Pid(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for an empty queue receive, got %v", got)
	}
}
