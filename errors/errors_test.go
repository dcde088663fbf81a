package errors

import (
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindPermissionDenied, "permission_denied"},
		{KindCapacityExceeded, "capacity_exceeded"},
		{KindWouldBlock, "would_block"},
		{KindTimeout, "timeout"},
		{KindNotFound, "not_found"},
		{KindInvalidArgument, "invalid_argument"},
		{KindClosed, "closed"},
		{KindInternal, "internal_error"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKernelErrorIs(t *testing.T) {
	a := NotFound("pipe.read", "pipe 5 not found")
	b := NotFound("queue.receive", "queue 9 not found")
	if !Is(a, b) {
		t.Fatalf("expected errors of the same Kind to match via Is")
	}
	if Is(a, PermissionDenied("x", "y")) {
		t.Fatalf("expected errors of different Kind not to match")
	}
}

func TestKernelErrorWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	wrapped := Wrap(cause, KindCapacityExceeded, "memory.allocate")
	if wrapped.Unwrap() != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
	if KindOf(wrapped) != KindCapacityExceeded {
		t.Fatalf("expected KindOf to classify the wrapped error")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(fmt.Errorf("unclassified")) != KindInternal {
		t.Fatalf("expected an unclassified error to default to KindInternal")
	}
}

func TestWithResource(t *testing.T) {
	e := NotFound("shm.attach", "missing").WithResource("shm-7")
	if e.Resource != "shm-7" {
		t.Fatalf("expected WithResource to set Resource, got %q", e.Resource)
	}
	if e.Error() == "" {
		t.Fatalf("expected non-empty error string")
	}
}
