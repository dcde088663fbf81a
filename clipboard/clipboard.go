// Package clipboard implements the per-session clipboard data model
// and syscalls (SPEC_FULL.md §C, grounded on
// kernel/src/core/clipboard/manager.rs and
// kernel/src/syscalls/impls/clipboard.rs): copy/paste/history/clear
// keyed by EntryId, without a change-notification transport (spec §9
// Open Question leaves that uncommitted).
package clipboard

import (
	"sync"

	"github.com/nestybox/kerneld/core"
	kerr "github.com/nestybox/kerneld/errors"
)

// Entry is one clipboard item, newest first in History.
type Entry struct {
	Id   core.EntryId
	Pid  core.Pid
	Data []byte
}

// Manager owns one clipboard per pid, each capped to maxHistory
// entries (oldest evicted first).
type Manager struct {
	mu         sync.Mutex
	history    map[core.Pid][]Entry
	nextId     uint64
	maxHistory int
}

// NewManager returns a clipboard manager capping each pid's history
// to maxHistory entries.
func NewManager(maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Manager{history: make(map[core.Pid][]Entry), maxHistory: maxHistory}
}

// Copy pushes data onto pid's clipboard, evicting the oldest entry if
// the history cap is exceeded.
func (m *Manager) Copy(pid core.Pid, data []byte) core.EntryId {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextId++
	id := core.EntryId(m.nextId)
	payload := make([]byte, len(data))
	copy(payload, data)

	entries := append([]Entry{{Id: id, Pid: pid, Data: payload}}, m.history[pid]...)
	if len(entries) > m.maxHistory {
		entries = entries[:m.maxHistory]
	}
	m.history[pid] = entries
	return id
}

// Paste returns the most recent entry for pid.
func (m *Manager) Paste(pid core.Pid) ([]byte, *kerr.KernelError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[pid]
	if len(entries) == 0 {
		return nil, kerr.NotFound("clipboard.paste", "clipboard is empty")
	}
	out := make([]byte, len(entries[0].Data))
	copy(out, entries[0].Data)
	return out, nil
}

// History returns every entry for pid, newest first.
func (m *Manager) History(pid core.Pid) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.history[pid]))
	copy(out, m.history[pid])
	return out
}

// Clear empties pid's clipboard history.
func (m *Manager) Clear(pid core.Pid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, pid)
}
