package sandbox

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/nestybox/kerneld/core"
)

// Sandbox is the per-pid security record (spec §3 "Sandbox record").
type Sandbox struct {
	Pid           core.Pid
	Capabilities  []Capability
	ResourceLimits core.ResourceLimits
	AllowedPaths  []string
	BlockedPaths  []string
	NetworkRules  []NetworkRule
	Env           map[string]string

	spawnBudget int
}

// NewSandbox builds a sandbox with the given resource-limit tier; the
// spawn budget starts at MaxProcesses (spec §4.6 "Spawn accounting").
// Only Registry.TryReserveSpawn and Registry.ReleaseSpawn change it;
// process creation and termination call neither, so creating or
// terminating a process leaves the budget unchanged.
func NewSandbox(pid core.Pid, limits core.ResourceLimits) *Sandbox {
	return &Sandbox{
		Pid:            pid,
		ResourceLimits: limits,
		Env:            make(map[string]string),
		spawnBudget:    int(limits.MaxProcesses),
	}
}

// Grant appends a capability to the sandbox's set.
func (s *Sandbox) Grant(c Capability) {
	s.Capabilities = append(s.Capabilities, c)
}

// Registry holds one Sandbox per pid (spec §4.6 step 1 "lookup sandbox
// by pid"). Grounded on the teacher's map[id]*record + single-mutex
// registry idiom (state/containerDB.go), applied fresh to sandboxes.
type Registry struct {
	mu       sync.Mutex
	sandboxes map[core.Pid]*Sandbox
}

// NewRegistry returns an empty sandbox registry.
func NewRegistry() *Registry {
	return &Registry{sandboxes: make(map[core.Pid]*Sandbox)}
}

// Put installs (or replaces) the sandbox for a pid.
func (r *Registry) Put(s *Sandbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sandboxes[s.Pid] = s
}

// Get looks up the sandbox for pid, returning false if none exists.
func (r *Registry) Get(pid core.Pid) (*Sandbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sandboxes[pid]
	return s, ok
}

// Remove drops the sandbox for a pid (on process termination).
func (r *Registry) Remove(pid core.Pid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sandboxes, pid)
}

// TryReserveSpawn atomically decrements pid's spawn budget, reporting
// whether it had room (spec §4.6 "Spawn accounting").
func (r *Registry) TryReserveSpawn(pid core.Pid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sandboxes[pid]
	if !ok || s.spawnBudget <= 0 {
		return false
	}
	s.spawnBudget--
	return true
}

// ReleaseSpawn increments pid's spawn budget back. The process cleanup
// orchestrator (process.Manager.Terminate) does not call it.
func (r *Registry) ReleaseSpawn(pid core.Pid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sandboxes[pid]; ok {
		s.spawnBudget++
	}
}

// canonicalize resolves path to its clean absolute, symlink-resolved
// form (spec §4.6 TOCTOU-safe path rule, spec.md's scenario 3: "a
// symlink indirection ... pointing at /etc/passwd ... returns
// PermissionDenied"). root is the real host directory a vfs.OsBackend
// mounts the sandboxed "/" at; an empty root (the default for
// sandboxes with no host filesystem exposure, e.g. tests running
// entirely against vfs.MemBackend) skips symlink resolution and
// returns the plain cleaned path, since there is no real filesystem to
// resolve a link against.
func canonicalize(root, path string) string {
	clean := filepath.Clean("/" + path)
	if root == "" {
		return clean
	}

	resolved, suffix, ok := resolveExistingAncestor(filepath.Join(root, clean))
	if !ok {
		return clean
	}

	rel, err := filepath.Rel(root, filepath.Join(resolved, suffix))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return clean
	}
	return filepath.Clean("/" + rel)
}

// resolveExistingAncestor walks up from full until it finds a path
// component that actually exists, resolves that component's real
// (symlink-free) location, and returns it with the still-unresolved
// suffix appended (spec.md step 2: "canonicalise the path, or its
// nearest existing ancestor"). A path with no existing ancestor at all
// (not even root) reports ok=false.
func resolveExistingAncestor(full string) (resolved, suffix string, ok bool) {
	cur := full
	var suffixParts []string
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return real, filepath.Join(suffixParts...), true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", false
		}
		suffixParts = append([]string{filepath.Base(cur)}, suffixParts...)
		cur = parent
	}
}
