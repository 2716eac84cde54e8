package inference

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
)

const gib = float64(1 << 30)

// MemorySnapshot is the subset of host memory statistics selection needs.
type MemorySnapshot struct {
	Total     uint64
	Available uint64
	Buffers   uint64
	Shared    uint64
}

// MemoryProbe reports host memory.
type MemoryProbe interface {
	Snapshot(ctx context.Context) (MemorySnapshot, error)
}

// HostMemory reads /proc/meminfo (or the platform equivalent) through gopsutil.
type HostMemory struct{}

func (HostMemory) Snapshot(ctx context.Context) (MemorySnapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemorySnapshot{}, err
	}
	return MemorySnapshot{
		Total:     vm.Total,
		Available: vm.Available,
		Buffers:   vm.Buffers,
		Shared:    vm.Shared,
	}, nil
}

// AllocatableGiB is available memory minus buffers, shared segments and a
// safety fraction of total memory, clamped at zero.
func AllocatableGiB(s MemorySnapshot, safetyMargin float64) float64 {
	v := float64(s.Available) - float64(s.Buffers) - float64(s.Shared) - safetyMargin*float64(s.Total)
	if v < 0 {
		return 0
	}
	return v / gib
}
