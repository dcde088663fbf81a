package rpcsurface

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/nestybox/kerneld/config"
	"github.com/nestybox/kerneld/core"
	"github.com/nestybox/kerneld/executor"
	"github.com/nestybox/kerneld/ipc"
	"github.com/nestybox/kerneld/memory"
	"github.com/nestybox/kerneld/observability"
	"github.com/nestybox/kerneld/sandbox"
	"github.com/nestybox/kerneld/syscall"
	"github.com/nestybox/kerneld/vfs"
)

func newTestServer(t *testing.T) (*Server, *observability.BroadcastCollector, core.Pid) {
	t.Helper()
	mounts := vfs.NewMountTable()
	mounts.Mount("/", vfs.MemBackend("root"))
	fs := vfs.NewFacade(mounts)

	sandboxes := sandbox.NewRegistry()
	pid := core.Pid(1)
	sb := sandbox.NewSandbox(pid, core.Unlimited())
	sb.AllowedPaths = []string{"/"}
	sb.Grant(sandbox.FileCapability(sandbox.CapFileRead, ""))
	sb.Grant(sandbox.FileCapability(sandbox.CapFileWrite, ""))
	sandboxes.Put(sb)

	events := observability.NewBroadcastCollector()
	perms := sandbox.NewPermissionManager(sandboxes)
	d := syscall.NewDispatcher(perms, events, 0, 0)

	mem := memory.NewManager(1024 * 1024)
	syscall.RegisterHandlers(d, &syscall.Services{
		Vfs:    fs,
		Pipes:  ipc.NewPipeTable(mem),
		Queues: ipc.NewQueueTable(mem),
		Shm:    ipc.NewShmTable(mem),
	})

	exec := executor.NewAsyncExecutor(d, 4)
	cfg := config.Default().Server
	return NewServer(cfg, exec, events, nil), events, pid
}

func TestHandleSyscallWriteThenRead(t *testing.T) {
	s, _, pid := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	writePayload, _ := json.Marshal(struct {
		Path string
		Data []byte
	}{Path: "/a.txt", Data: []byte("hi")})
	body, _ := json.Marshal(syscall.Request{Pid: pid, Variant: syscall.FileWrite, Payload: writePayload})

	resp, err := http.Post(ts.URL+"/syscall", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var wire wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wire.Success {
		t.Fatalf("expected success, got %+v", wire)
	}
}

func TestHandleSyscallDeniedCarriesPermissionTag(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	payload, _ := json.Marshal(struct{ Path string }{Path: "/a.txt"})
	body, _ := json.Marshal(syscall.Request{Pid: core.Pid(99), Variant: syscall.FileRead, Payload: payload})

	resp, err := http.Post(ts.URL+"/syscall", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var wire wireResult
	json.NewDecoder(resp.Body).Decode(&wire)
	if wire.Success || wire.ErrorType != "permission_denied" {
		t.Fatalf("expected a permission_denied wire result, got %+v", wire)
	}
}

func TestStreamEventsDeliversFilteredByPid(t *testing.T) {
	s, events, pid := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream/events?pid=1"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	// give the server a moment to register the subscription before emitting
	time.Sleep(50 * time.Millisecond)
	events.ProcessTerminated(core.Pid(2)) // filtered out
	events.ProcessCreated(pid)            // should pass the pid=1 filter

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e observability.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Category != "process_created" || e.Pid != pid {
		t.Fatalf("expected the pid-1 process_created event, got %+v", e)
	}
}

func TestErrorTagMapsVariantFamily(t *testing.T) {
	cases := map[syscall.Variant]string{
		syscall.FileRead:      "vfs_error",
		syscall.ProcessCreate: "process_error",
		syscall.MemoryInfo:    "memory_error",
		syscall.PipeCreate:    "ipc_error",
		syscall.SchedulerYield: "scheduler_error",
	}
	for variant, want := range cases {
		if got := errorTag(variant, "boom"); got != want {
			t.Fatalf("variant %s: expected %s, got %s", variant, want, got)
		}
	}
	if errorTag(syscall.FileRead, "operation timed out") != "timeout" {
		t.Fatalf("expected a timeout message to map to the timeout tag regardless of family")
	}
}
