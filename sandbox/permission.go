package sandbox

import (
	"strings"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

// ResourceKind distinguishes the resource family a Request targets,
// since file/network/other resources walk different resolver steps
// (spec §4.6).
type ResourceKind int

const (
	ResourceFile ResourceKind = iota
	ResourceNetwork
	ResourceProcess
	ResourceIpc
	ResourceSystem
)

// Request is what a handler builds before calling Check (spec §4.6:
// "a request carries (pid, resource, action)").
type Request struct {
	Pid      core.Pid
	Resource ResourceKind
	Action   CapabilityKind
	Path     string          // canonicalised by the caller is NOT required; Check canonicalises
	Network  NetworkRequest  // only consulted when Resource == ResourceNetwork
	Port     uint16          // only consulted for CapBindPort actions
}

// Decision is Check's result: either Allowed or Denied with a reason
// (spec §4.6).
type Decision struct {
	Allowed       bool
	Reason        string
	CanonicalPath string // the resolved path a file handler must use onward (TOCTOU-safe rule)
}

// PermissionManager resolves Requests against the sandbox registry
// (spec §4.6's five-step resolver).
type PermissionManager struct {
	sandboxes *Registry
	root      string // real host directory backing the sandboxed "/", if any
}

// NewPermissionManager wraps a sandbox registry.
func NewPermissionManager(sandboxes *Registry) *PermissionManager {
	return &PermissionManager{sandboxes: sandboxes}
}

// WithRoot configures m to resolve real symlinks against root, the
// directory a host-backed vfs.OsBackend mounts the sandboxed "/" at,
// before running the allowed_paths/blocked_paths prefix check (spec
// §4.6 TOCTOU-safe path rule). Sandboxes backed only by vfs.MemBackend
// have no host path to resolve against and can leave this unset.
func (m *PermissionManager) WithRoot(root string) *PermissionManager {
	m.root = root
	return m
}

// Check runs the full resolver: sandbox lookup, path allow/block
// list, capability subsumption, network rules, and resource-limit
// checks, in that exact order (spec §4.6).
func (m *PermissionManager) Check(req Request) Decision {
	sb, ok := m.sandboxes.Get(req.Pid)
	if !ok {
		return Decision{Allowed: false, Reason: "no sandbox registered for pid"}
	}

	var canonical string
	if req.Resource == ResourceFile {
		canonical = canonicalize(m.root, req.Path)
		if d, ok := checkPathLists(sb, canonical); !ok {
			return d
		}
	}

	required := Capability{Kind: req.Action, PathPrefix: canonical, Port: req.Port}
	if req.Resource == ResourceNetwork && req.Action == CapNetworkAccess {
		required.NetworkRule = NetworkScoped
	}
	if !capabilityGranted(sb, required) {
		return Decision{Allowed: false, Reason: "missing required capability"}
	}

	if req.Resource == ResourceNetwork {
		if !evaluateNetworkRules(sb.NetworkRules, req.Network) {
			return Decision{Allowed: false, Reason: "denied by network rules"}
		}
	}

	if req.Resource == ResourceProcess && req.Action == CapProcessSpawn {
		if sb.spawnBudget <= 0 {
			return Decision{Allowed: false, Reason: "process spawn limit exceeded"}
		}
	}

	return Decision{Allowed: true, CanonicalPath: canonical}
}

// checkPathLists implements spec §4.6 step 2. The TOCTOU-safe
// discipline is that this canonical form, computed exactly once here,
// is the only path the caller ever uses afterward — a symlink
// pointing outside allowed_paths cannot later resolve to something
// broader because nothing re-resolves the path after this check.
func checkPathLists(sb *Sandbox, canonical string) (Decision, bool) {
	for _, blocked := range sb.BlockedPaths {
		if strings.HasPrefix(canonical, blocked) {
			return Decision{Allowed: false, Reason: "path under a blocked prefix"}, false
		}
	}
	if len(sb.AllowedPaths) == 0 {
		return Decision{Allowed: false, Reason: "no allowed paths configured"}, false
	}
	for _, allowed := range sb.AllowedPaths {
		if strings.HasPrefix(canonical, allowed) {
			return Decision{}, true
		}
	}
	return Decision{Allowed: false, Reason: "path not under any allowed prefix"}, false
}

func capabilityGranted(sb *Sandbox, required Capability) bool {
	for _, c := range sb.Capabilities {
		if c.Grants(required) {
			return true
		}
	}
	return false
}

// AsKernelError turns a Denied decision into the wire-level error
// shape handlers return (spec §7: PermissionDenied{reason}).
func (d Decision) AsKernelError(op string) *kerr.KernelError {
	if d.Allowed {
		return nil
	}
	return kerr.PermissionDenied(op, d.Reason)
}
