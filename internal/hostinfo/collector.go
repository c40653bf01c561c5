// internal/hostinfo/collector.go
package hostinfo

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// MaxProcesses caps the process list in a snapshot
const MaxProcesses = 100

// WatchedPorts are the well-known ports reported in every snapshot
var WatchedPorts = []int{22, 80, 443, 3000, 3306, 5000, 5432, 6379, 8080, 8443, 27017}

// cpuSample is how long the CPU usage measurement observes the system
const cpuSample = 500 * time.Millisecond

// Collector builds system snapshots from a Host
type Collector struct {
	host *Host
}

// NewCollector creates a snapshot collector
func NewCollector(h *Host) *Collector {
	return &Collector{host: h}
}

// Collect gathers a snapshot. Individual collection failures are logged and
// leave the corresponding fields at their zero value.
func (c *Collector) Collect(ctx context.Context) protocol.SnapshotData {
	snap := protocol.SnapshotData{
		CollectedAt:       time.Now().UTC(),
		Processes:         []protocol.ProcessInfo{},
		OpenPorts:         []int{},
		InstalledSoftware: []protocol.SoftwareInfo{},
	}

	if pct, err := cpu.PercentWithContext(ctx, cpuSample, false); err != nil {
		log.Warn().Err(err).Msg("cpu usage unavailable")
	} else if len(pct) > 0 {
		snap.CPUUsage = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Warn().Err(err).Msg("memory usage unavailable")
	} else {
		snap.MemoryTotal = vm.Total
		snap.MemoryUsed = vm.Used
	}

	snap.DiskTotal, snap.DiskUsed = diskUsage(ctx)

	procs, err := topProcesses(ctx, MaxProcesses)
	if err != nil {
		log.Warn().Err(err).Msg("process list unavailable")
	} else {
		snap.Processes = procs
	}

	for _, port := range WatchedPorts {
		if c.host.PortInUse(port) {
			snap.OpenPorts = append(snap.OpenPorts, port)
		}
	}

	return snap
}

func diskUsage(ctx context.Context) (total, used uint64) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		log.Warn().Err(err).Msg("disk partitions unavailable")
		return 0, 0
	}

	seen := make(map[string]bool)
	for _, p := range parts {
		if seen[p.Device] {
			continue
		}
		seen[p.Device] = true

		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			log.Debug().Err(err).Str("mountpoint", p.Mountpoint).Msg("disk usage unavailable")
			continue
		}
		total += u.Total
		used += u.Used
	}
	return total, used
}

func topProcesses(ctx context.Context, limit int) ([]protocol.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]protocol.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		info := protocol.ProcessInfo{PID: p.Pid, Name: name}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUUsage = pct
		}
		if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
			info.MemoryUsage = m.RSS
		}
		infos = append(infos, info)
	}

	return capProcesses(infos, limit), nil
}

// capProcesses keeps the limit busiest processes, highest CPU first
func capProcesses(infos []protocol.ProcessInfo, limit int) []protocol.ProcessInfo {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CPUUsage > infos[j].CPUUsage
	})
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos
}
