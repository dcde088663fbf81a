// Package rpcsurface is the external collaborator boundary (spec §6):
// a `(pid, syscall_variant, payload_bytes)` tuple stream in, a
// `SyscallResult` plus an out-of-band event stream out. It replaces
// the teacher's hand-rolled `grpcServer.go` and private protobuf wire
// format with HTTP+JSON for unary/batch submission and websockets for
// `stream_events`/`stream_syscall`, since neither the teacher's grpc
// stack nor its `sysvisor-protobuf` dependency can be vendored outside
// its monorepo (see DESIGN.md).
package rpcsurface

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nestybox/kerneld/config"
	"github.com/nestybox/kerneld/core"
	"github.com/nestybox/kerneld/executor"
	"github.com/nestybox/kerneld/observability"
	"github.com/nestybox/kerneld/syscall"
)

// Server exposes the syscall surface over HTTP and websockets.
type Server struct {
	cfg      config.ServerConfig
	exec     *executor.AsyncExecutor
	events   *observability.BroadcastCollector
	router   *mux.Router
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewServer wires an HTTP router over exec (the syscall boundary) and
// events (the stream_events source). log defaults to the standard
// logrus logger when nil, matching the teacher's package-level logger
// convention.
func NewServer(cfg config.ServerConfig, exec *executor.AsyncExecutor, events *observability.BroadcastCollector, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		cfg:    cfg,
		exec:   exec,
		events: events,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "rpcsurface"),
	}
	s.routes()
	return s
}

// Handler returns the server's http.Handler, for embedding in
// http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/syscall", s.handleSyscall).Methods(http.MethodPost)
	s.router.HandleFunc("/syscall/batch", s.handleBatch).Methods(http.MethodPost)
	s.router.HandleFunc("/syscall/pipeline", s.handlePipeline).Methods(http.MethodPost)
	s.router.HandleFunc("/stream/events", s.handleStreamEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/stream/syscall", s.handleStreamSyscall).Methods(http.MethodGet)
}

// wireResult is the JSON shape a SyscallResult takes on the wire
// (spec §6 "Error taxonomy on the wire").
type wireResult struct {
	Success   bool   `json:"success"`
	Data      []byte `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

func toWire(variant syscall.Variant, r syscall.Result) wireResult {
	switch r.Kind {
	case syscall.ResultSuccess:
		return wireResult{Success: true, Data: r.Data}
	case syscall.ResultPermissionDenied:
		return wireResult{Message: r.Message, ErrorType: "permission_denied"}
	default:
		return wireResult{Message: r.Message, ErrorType: errorTag(variant, r.Message)}
	}
}

// errorTag derives the wire taxonomy tag from the failing variant's
// family, falling back to "timeout"/"internal_error" when the message
// itself names one of those cross-cutting taxa (spec §6 lists both
// alongside the per-subsystem tags, not nested under them).
func errorTag(variant syscall.Variant, message string) string {
	if strings.Contains(message, "timed out") {
		return "timeout"
	}
	if strings.Contains(message, "internal error") {
		return "internal_error"
	}
	family := variant
	if idx := strings.IndexByte(string(variant), '.'); idx >= 0 {
		family = variant[:idx]
	}
	switch family {
	case "file":
		return "vfs_error"
	case "process":
		return "process_error"
	case "memory":
		return "memory_error"
	case "pipe", "queue", "shm", "mmap":
		return "ipc_error"
	case "scheduler":
		return "scheduler_error"
	default:
		return "syscall_error"
	}
}

func (s *Server) contextWithTimeout() (context.Context, context.CancelFunc) {
	if s.cfg.TimeoutSecs <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.cfg.Timeout())
}

func (s *Server) handleSyscall(w http.ResponseWriter, r *http.Request) {
	var req syscall.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := s.contextWithTimeout()
	defer cancel()
	res := s.exec.Execute(ctx, req)
	writeJSON(w, toWire(req.Variant, res))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []syscall.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := s.contextWithTimeout()
	defer cancel()
	results, err := s.exec.ExecuteBatch(ctx, reqs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]wireResult, len(results))
	for i, res := range results {
		out[i] = toWire(reqs[i].Variant, res)
	}
	writeJSON(w, out)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var reqs []syscall.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.exec.ExecutePipeline(reqs)
	variant := syscall.Variant("")
	if len(reqs) > 0 {
		variant = reqs[len(reqs)-1].Variant
	}
	writeJSON(w, toWire(variant, res))
}

// handleStreamEvents upgrades to a websocket and relays every
// BroadcastCollector event, optionally filtered by `pid` and
// `category` query parameters (spec §6 "subscribe to observability
// events filtered by pid/category").
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("event stream upgrade failed")
		return
	}
	defer conn.Close()

	var filterPid core.Pid
	hasFilterPid := false
	if raw := r.URL.Query().Get("pid"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err == nil {
			filterPid = core.Pid(v)
			hasFilterPid = true
		}
	}
	filterCategory := r.URL.Query().Get("category")

	id, ch := s.events.Subscribe(32)
	defer s.events.Unsubscribe(id)

	for e := range ch {
		if hasFilterPid && (!e.HasPid || e.Pid != filterPid) {
			continue
		}
		if filterCategory != "" && e.Category != filterCategory {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(s.cfg.Keepalive()))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

// handleStreamSyscall upgrades to a websocket that accepts a stream of
// individually JSON-encoded Requests and writes back one wireResult
// per request, in arrival order (spec §6 "batched syscall
// submission").
func (s *Server) handleStreamSyscall(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("syscall stream upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var req syscall.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		ctx, cancel := s.contextWithTimeout()
		res := s.exec.Execute(ctx, req)
		cancel()
		if err := conn.WriteJSON(toWire(req.Variant, res)); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
