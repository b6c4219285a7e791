package ui

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceStats is a snapshot of host load and of the app's process trees.
type ResourceStats struct {
	CPUPercent float64
	MemPercent float64
	// AppCPU and AppRSS sum the app's processes and their descendants.
	AppCPU    float64
	AppRSS    uint64
	Processes int
}

// GetResourceStats samples the host and the trees rooted at pids.
func GetResourceStats(ctx context.Context, pids []int32) ResourceStats {
	var stats ResourceStats
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemPercent = vm.UsedPercent
	}

	seen := make(map[int32]bool)
	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		if seen[p.Pid] {
			return
		}
		seen[p.Pid] = true
		stats.Processes++
		if c, err := p.CPUPercentWithContext(ctx); err == nil {
			stats.AppCPU += c
		}
		if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
			stats.AppRSS += m.RSS
		}
		children, _ := p.ChildrenWithContext(ctx)
		for _, c := range children {
			walk(c)
		}
	}
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		walk(p)
	}
	return stats
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	}
	return fmt.Sprintf("%d B", bytes)
}
