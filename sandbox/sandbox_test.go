package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nestybox/kerneld/core"
)

func newManagerWithSandbox(limits core.ResourceLimits) (*PermissionManager, *Registry, *Sandbox) {
	reg := NewRegistry()
	sb := NewSandbox(core.Pid(1), limits)
	reg.Put(sb)
	return NewPermissionManager(reg), reg, sb
}

func TestNoSandboxDenies(t *testing.T) {
	reg := NewRegistry()
	m := NewPermissionManager(reg)
	d := m.Check(Request{Pid: core.Pid(99), Resource: ResourceFile, Action: CapFileRead, Path: "/data/x"})
	if d.Allowed {
		t.Fatalf("expected denial when no sandbox is registered")
	}
}

func TestFileReadRequiresAllowedPrefix(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(FileCapability(CapFileRead, ""))
	sb.AllowedPaths = []string{"/data"}

	ok := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/data/x.txt"})
	if !ok.Allowed {
		t.Fatalf("expected allow under /data, got reason=%q", ok.Reason)
	}

	denied := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/etc/passwd"})
	if denied.Allowed {
		t.Fatalf("expected deny outside allowed_paths")
	}
}

func TestBlockedPathTakesPriorityOverAllowed(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(FileCapability(CapFileRead, ""))
	sb.AllowedPaths = []string{"/data"}
	sb.BlockedPaths = []string{"/data/secret"}

	d := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/data/secret/key"})
	if d.Allowed {
		t.Fatalf("expected blocked_paths to override allowed_paths")
	}
}

func TestEmptyAllowedPathsDeniesEverything(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(FileCapability(CapFileRead, ""))

	d := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/data/x"})
	if d.Allowed {
		t.Fatalf("expected an empty allowed_paths list to deny")
	}
}

func TestCapabilityPathPrefixSubsumption(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(FileCapability(CapFileWrite, "/data/project"))
	sb.AllowedPaths = []string{"/data"}

	ok := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileWrite, Path: "/data/project/out.txt"})
	if !ok.Allowed {
		t.Fatalf("expected capability prefix to cover a nested path, reason=%q", ok.Reason)
	}

	denied := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileWrite, Path: "/data/other/out.txt"})
	if denied.Allowed {
		t.Fatalf("expected capability prefix mismatch to deny")
	}
}

func TestBindPortWildcardGrantsAnyPort(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(AnyPort())

	d := m.Check(Request{Pid: sb.Pid, Resource: ResourceSystem, Action: CapBindPort, Port: 8080})
	if !d.Allowed {
		t.Fatalf("expected wildcard BindPort capability to grant any port, reason=%q", d.Reason)
	}
}

func TestNetworkBlockAfterAllowWins(t *testing.T) {
	m, _, sb := newManagerWithSandbox(core.Preset(core.TierStandard))
	sb.Grant(AllowAllNetwork())
	sb.NetworkRules = []NetworkRule{
		{Action: RuleAllowAll},
		{Action: RuleBlockHost, Host: "evil.example.com"},
	}

	allowed := m.Check(Request{
		Pid: sb.Pid, Resource: ResourceNetwork, Action: CapNetworkAccess,
		Network: NetworkRequest{Host: "good.example.com"},
	})
	if !allowed.Allowed {
		t.Fatalf("expected allow for an unrelated host, reason=%q", allowed.Reason)
	}

	blocked := m.Check(Request{
		Pid: sb.Pid, Resource: ResourceNetwork, Action: CapNetworkAccess,
		Network: NetworkRequest{Host: "evil.example.com"},
	})
	if blocked.Allowed {
		t.Fatalf("expected the later block rule to override the earlier allow-all")
	}
}

// TestSymlinkEscapeIsDeniedByCanonicalization exercises spec.md's
// scenario 3: a sandbox allows /tmp and blocks /tmp/sensitive; a real
// symlink living under the allowed directory but pointing at the
// blocked one must still be denied, since WithRoot makes canonicalize
// follow it before the prefix check runs.
func TestSymlinkEscapeIsDeniedByCanonicalization(t *testing.T) {
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "tmp", "sensitive"), 0755); err != nil {
		t.Fatalf("mkdir sensitive: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "tmp", "sensitive", "secret.txt"), []byte("shh"), 0644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "tmp", "data.txt"), []byte("ok"), 0644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := os.Symlink(
		filepath.Join(root, "tmp", "sensitive", "secret.txt"),
		filepath.Join(root, "tmp", "escape"),
	); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	reg := NewRegistry()
	sb := NewSandbox(core.Pid(1), core.Preset(core.TierStandard))
	sb.Grant(FileCapability(CapFileRead, ""))
	sb.AllowedPaths = []string{"/tmp"}
	sb.BlockedPaths = []string{"/tmp/sensitive"}
	reg.Put(sb)

	m := NewPermissionManager(reg).WithRoot(root)

	viaSymlink := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/tmp/sensitive/secret.txt"})
	if viaSymlink.Allowed {
		t.Fatalf("expected direct blocked path to be denied")
	}

	viaIndirection := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/tmp/escape"})
	if viaIndirection.Allowed {
		t.Fatalf("expected symlink escaping into a blocked prefix to be denied")
	}

	direct := m.Check(Request{Pid: sb.Pid, Resource: ResourceFile, Action: CapFileRead, Path: "/tmp/data.txt"})
	if !direct.Allowed {
		t.Fatalf("expected a plain allowed path to succeed, reason=%q", direct.Reason)
	}
}

func TestSpawnBudgetAccounting(t *testing.T) {
	limits := core.ResourceLimits{MaxProcesses: 1}
	_, reg, sb := newManagerWithSandbox(limits)

	if !reg.TryReserveSpawn(sb.Pid) {
		t.Fatalf("expected the first spawn reservation to succeed")
	}
	if reg.TryReserveSpawn(sb.Pid) {
		t.Fatalf("expected the second spawn reservation to fail, budget exhausted")
	}
	reg.ReleaseSpawn(sb.Pid)
	if !reg.TryReserveSpawn(sb.Pid) {
		t.Fatalf("expected a released spawn slot to be reusable")
	}
}
