package memory

import (
	"time"

	"github.com/nestybox/kerneld/core"
)

// GcStrategyKind selects how Collect picks its target set (spec §4.3).
type GcStrategyKind int

const (
	GcGlobal GcStrategyKind = iota
	GcThreshold
	GcTargeted
	GcUnreferenced
)

// GcStrategy parameterises a Collect call; Bytes is only consulted for
// GcThreshold, Pid only for GcTargeted.
type GcStrategy struct {
	Kind  GcStrategyKind
	Bytes uint64
	Pid   core.Pid
}

// GcStats is the single output shape every GC strategy reports into
// (spec §4.3).
type GcStats struct {
	FreedBytes       uint64
	FreedBlocks      int
	ProcessesCleaned int
	Duration         time.Duration
}

// Collect runs strategy against the manager's ledger. GcGlobal and
// GcUnreferenced both force-collect every tombstone (the manager
// doesn't track cross-references beyond ownership, so "unreferenced"
// reduces to "tombstoned" here); GcThreshold only collects once usage
// is at or above the given byte count; GcTargeted frees a single pid's
// live memory first, then collects every tombstone in the ledger, not
// only that pid's.
func (m *Manager) Collect(strategy GcStrategy) GcStats {
	start := time.Now()
	var stats GcStats

	switch strategy.Kind {
	case GcThreshold:
		if m.Info().Used < strategy.Bytes {
			stats.Duration = time.Since(start)
			return stats
		}
		stats.FreedBlocks = m.ForceCollect()

	case GcTargeted:
		stats.FreedBytes = m.FreeProcessMemory(strategy.Pid)
		stats.FreedBlocks = m.ForceCollect()
		if stats.FreedBytes > 0 {
			stats.ProcessesCleaned = 1
		}

	default: // GcGlobal, GcUnreferenced
		stats.FreedBlocks = m.ForceCollect()
	}

	m.MarkCollected()
	stats.Duration = time.Since(start)
	return stats
}

// AutoCollect runs a GcGlobal pass only if ShouldCollect reports the
// interval/usage conditions are met (spec §4.3's auto_collect).
func (m *Manager) AutoCollect() (GcStats, bool) {
	if !m.ShouldCollect() {
		return GcStats{}, false
	}
	return m.Collect(GcStrategy{Kind: GcGlobal}), true
}
