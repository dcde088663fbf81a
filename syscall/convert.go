package syscall

import (
	"github.com/nestybox/kerneld/core"
)

func idAsPipe(id uint32) core.PipeId   { return core.PipeId(id) }
func idAsQueue(id uint32) core.QueueId { return core.QueueId(id) }
func idAsShm(id uint32) core.ShmId     { return core.ShmId(id) }
func idAsMmap(id uint32) core.MmapId   { return core.MmapId(id) }

func asPid(id uint32) core.Pid { return core.Pid(id) }

func asPriority(p uint8) core.Priority { return core.ClampPriority(int(p)) }

// defaultLimits is the resource-limit tier new processes get when a
// handler doesn't carry its own sandbox-provisioning payload (the RPC
// surface's process-spawn request is expected to specify a tier; this
// is the fallback a bare ProcessCreate call without one gets).
func defaultLimits() core.ResourceLimits { return core.Preset(core.TierStandard) }
