package scheduler

import (
	"testing"
	"time"

	"github.com/nestybox/kerneld/core"
)

func TestRoundRobinPreemptsBackOfQueue(t *testing.T) {
	s := NewScheduler(PolicyRoundRobin, 10*time.Millisecond)
	s.Register(core.Pid(1), core.DefaultPriority)
	s.Register(core.Pid(2), core.DefaultPriority)

	s.Schedule()
	cur, ok := s.Current()
	if !ok || cur != core.Pid(1) {
		t.Fatalf("expected pid 1 scheduled first, got %v ok=%v", cur, ok)
	}

	s.Tick(11 * time.Millisecond) // exceeds the quantum: preempt then select next
	cur2, ok2 := s.Current()
	if !ok2 || cur2 != core.Pid(2) {
		t.Fatalf("expected pid 2 scheduled after preemption, got %v ok=%v", cur2, ok2)
	}
}

func TestPriorityPolicySelectsHighestFirst(t *testing.T) {
	s := NewScheduler(PolicyPriority, time.Second)
	s.Register(core.Pid(1), core.ClampPriority(10))
	s.Register(core.Pid(2), core.ClampPriority(200))

	s.Schedule()
	cur, _ := s.Current()
	if cur != core.Pid(2) {
		t.Fatalf("expected the higher-priority pid scheduled first, got %v", cur)
	}
}

func TestFairPolicyAdvancesVruntimeInverselyWithPriority(t *testing.T) {
	lowPrio := &Entry{Pid: core.Pid(1), Priority: core.ClampPriority(1)}
	highPrio := &Entry{Pid: core.Pid(2), Priority: core.ClampPriority(200)}

	AdvanceVruntime(lowPrio, int64(time.Millisecond))
	AdvanceVruntime(highPrio, int64(time.Millisecond))

	if lowPrio.Vruntime <= highPrio.Vruntime {
		t.Fatalf("expected the lower-priority entry's vruntime to advance faster, low=%d high=%d",
			lowPrio.Vruntime, highPrio.Vruntime)
	}
}

func TestUnregisterRemovesFromIndex(t *testing.T) {
	s := NewScheduler(PolicyRoundRobin, time.Second)
	s.Register(core.Pid(1), core.DefaultPriority)
	s.Schedule()

	s.Unregister(core.Pid(1))
	if _, ok := s.Location(core.Pid(1)); ok {
		t.Fatalf("expected pid to be gone from the index after Unregister")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("expected no current entry after unregistering the running pid")
	}
}

func TestActiveCountInvariant(t *testing.T) {
	// spec §8: |current| + |ready| == number of registered-but-not-terminated pids.
	s := NewScheduler(PolicyRoundRobin, time.Second)
	s.Register(core.Pid(1), core.DefaultPriority)
	s.Register(core.Pid(2), core.DefaultPriority)
	s.Register(core.Pid(3), core.DefaultPriority)
	s.Schedule()

	if got := s.Stats().Active; got != 3 {
		t.Fatalf("expected active count of 3 (1 current + 2 ready), got %d", got)
	}
}

func TestYieldRequeuesCurrentWithFullQuantum(t *testing.T) {
	s := NewScheduler(PolicyRoundRobin, 5*time.Millisecond)
	s.Register(core.Pid(1), core.DefaultPriority)
	s.Register(core.Pid(2), core.DefaultPriority)
	s.Schedule()

	s.Yield()
	cur, _ := s.Current()
	if cur != core.Pid(2) {
		t.Fatalf("expected yield to advance to the next pid, got %v", cur)
	}
}

func TestSwapPolicyReinsertsEveryEntry(t *testing.T) {
	s := NewScheduler(PolicyRoundRobin, time.Second)
	s.Register(core.Pid(1), core.ClampPriority(5))
	s.Register(core.Pid(2), core.ClampPriority(250))

	s.SwapPolicy(PolicyPriority)
	s.Schedule()
	cur, _ := s.Current()
	if cur != core.Pid(2) {
		t.Fatalf("expected the swapped-in priority policy to pick the highest-priority pid, got %v", cur)
	}
}

func TestShutdownIsIdempotentlyGuarded(t *testing.T) {
	s := NewScheduler(PolicyRoundRobin, 5*time.Millisecond)
	go s.RunTicker()

	if err := s.Shutdown(); err != nil {
		t.Fatalf("unexpected error on first shutdown: %v", err)
	}
	if err := s.Shutdown(); err == nil {
		t.Fatalf("expected a second shutdown call to be rejected")
	}
}
