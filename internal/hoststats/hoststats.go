package hoststats

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// DiskUsage describes the filesystem holding the data root
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Snapshot is the host summary reported by /health
type Snapshot struct {
	Disk             *DiskUsage `json:"disk,omitempty"`
	MemoryUsedPct    float64    `json:"memory_used_percent"`
	MemoryAvailBytes uint64     `json:"memory_available_bytes"`
	CPUThreads       int        `json:"cpu_threads"`
}

// LowDiskPercent is the usage above which the data root is reported as degraded
const LowDiskPercent = 95.0

// Disk returns usage of the filesystem containing path
func Disk(ctx context.Context, path string) (*DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", path, err)
	}
	return &DiskUsage{
		Path:        path,
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

// Collect gathers a snapshot. Memory and CPU figures are best effort; a disk
// error is returned because the data root must be readable.
func Collect(ctx context.Context, dataRoot string) (*Snapshot, error) {
	d, err := Disk(ctx, dataRoot)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Disk: d}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryUsedPct = vm.UsedPercent
		snap.MemoryAvailBytes = vm.Available
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUThreads = n
	}
	return snap, nil
}

// Degraded reports whether the data root is close to full
func (s *Snapshot) Degraded() bool {
	return s.Disk != nil && s.Disk.UsedPercent >= LowDiskPercent
}
