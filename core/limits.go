package core

// ResourceLimits bounds what a single sandboxed pid may consume (spec
// §3). A zero field is not filled in from any tier: memory.Manager
// treats a zero memory limit as no per-pid limit, process.Manager
// falls back to its configured FdLimit for a zero descriptor limit,
// and a zero MaxProcesses leaves the sandbox no spawn budget. Use
// Unlimited() for explicit maximums.
type ResourceLimits struct {
	MaxMemoryBytes        uint64
	MaxCpuTimeMs          uint64
	MaxFileDescriptors    uint32
	MaxProcesses          uint32
	MaxNetworkConnections uint32
}

const unlimited = ^uint64(0)

// Unlimited returns a ResourceLimits with every field set to its
// maximum representable value.
func Unlimited() ResourceLimits {
	return ResourceLimits{
		MaxMemoryBytes:        unlimited,
		MaxCpuTimeMs:          unlimited,
		MaxFileDescriptors:    ^uint32(0),
		MaxProcesses:          ^uint32(0),
		MaxNetworkConnections: ^uint32(0),
	}
}

// Tier names the three built-in resource-limit presets (spec §3).
type Tier int

const (
	TierMinimal Tier = iota
	TierStandard
	TierPrivileged
)

// Preset returns the canned ResourceLimits for a tier. Individual
// fields may be superseded per-process afterwards by the caller.
func Preset(t Tier) ResourceLimits {
	switch t {
	case TierMinimal:
		return ResourceLimits{
			MaxMemoryBytes:        64 * 1024 * 1024,
			MaxCpuTimeMs:          5_000,
			MaxFileDescriptors:    16,
			MaxProcesses:          2,
			MaxNetworkConnections: 0,
		}
	case TierPrivileged:
		return ResourceLimits{
			MaxMemoryBytes:        4 * 1024 * 1024 * 1024,
			MaxCpuTimeMs:          unlimited,
			MaxFileDescriptors:    4096,
			MaxProcesses:          256,
			MaxNetworkConnections: 1024,
		}
	default: // TierStandard
		return ResourceLimits{
			MaxMemoryBytes:        512 * 1024 * 1024,
			MaxCpuTimeMs:          60_000,
			MaxFileDescriptors:    256,
			MaxProcesses:          16,
			MaxNetworkConnections: 32,
		}
	}
}

// Global caps that are not per-process but bound the whole kernel
// instance (spec §4.3, §4.4).
const (
	GlobalMemoryLimitBytes = 800 * 1024 * 1024
	GlobalShmLimitBytes    = 500 * 1024 * 1024
	MaxShmSegmentBytes     = 100 * 1024 * 1024
	MaxSegmentsPerProcess  = 10
	MaxPipesPerProcess     = 100
	GlobalPipeLimitBytes   = 50 * 1024 * 1024
	DefaultPipeCapacity    = 64 * 1024
)
