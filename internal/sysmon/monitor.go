// Package sysmon samples host health — disk, RAM, CPU load, uptime —
// and reports a single health verdict.
package sysmon

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/taurus-fleet/taurus/internal/fleeterrors"
)

// Health-verdict thresholds: cross any one of these and Refresh flags
// the snapshot unhealthy.
const (
	ramUnhealthyFraction  = 0.85
	loadUnhealthyPerCore  = 1.0
	diskUnhealthyFraction = 0.9
	minDiskCapacityBytes  = 1 << 30 // ignore tmpfs/pseudo mounts under 1 GiB
)

// DiskUsage is one monitored disk's usage.
type DiskUsage struct {
	Mountpoint   string  `json:"mountpoint"`
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsedFraction float64 `json:"used_fraction"`
}

// Snapshot is the JSON surface exposed by the CHECK command.
type Snapshot struct {
	Disks        []DiskUsage `json:"disks"`
	LoadAverage5 float64     `json:"load_average_5m"`
	LoadPerCore  float64     `json:"load_per_core"`
	RAMUsed      uint64      `json:"ram_used_bytes"`
	RAMTotal     uint64      `json:"ram_total_bytes"`
	UptimeSecs   uint64      `json:"uptime_seconds"`
	Unhealthy    bool        `json:"unhealthy"`
}

// Monitor holds the most recent Snapshot. It is owned by the backup task,
// which calls Refresh; other readers see Snapshot()/Healthy() results
// that are at most one Refresh stale.
type Monitor struct {
	mu   sync.RWMutex
	last Snapshot
}

// New returns a Monitor with an empty snapshot flagged unhealthy;
// callers must Refresh before relying on it.
func New() *Monitor {
	return &Monitor{last: Snapshot{Unhealthy: true}}
}

// Refresh samples disk, memory, load, and uptime, computes the health
// verdict, and stores the result.
func (m *Monitor) Refresh(ctx context.Context) error {
	disks, err := sampleDisks(ctx)
	if err != nil {
		return fleeterrors.New(fleeterrors.Filesystem, "sysmon: sample disks", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fleeterrors.New(fleeterrors.Filesystem, "sysmon: sample memory", err)
	}

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return fleeterrors.New(fleeterrors.Filesystem, "sysmon: sample load", err)
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores == 0 {
		cores = 1
	}

	info, err := host.InfoWithContext(ctx)
	var uptime uint64
	if err == nil {
		uptime = info.Uptime
	}

	perCore := avg.Load5 / float64(cores)

	unhealthy := float64(vm.Used)/float64(vm.Total) > ramUnhealthyFraction || perCore > loadUnhealthyPerCore
	for _, d := range disks {
		if d.UsedFraction > diskUnhealthyFraction {
			unhealthy = true
		}
	}

	snap := Snapshot{
		Disks:        disks,
		LoadAverage5: avg.Load5,
		LoadPerCore:  perCore,
		RAMUsed:      vm.Used,
		RAMTotal:     vm.Total,
		UptimeSecs:   uptime,
		Unhealthy:    unhealthy,
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return nil
}

func sampleDisks(ctx context.Context) ([]DiskUsage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	usages := make([]DiskUsage, 0, len(partitions))
	for _, p := range partitions {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		if u.Total < minDiskCapacityBytes {
			continue
		}
		usages = append(usages, DiskUsage{
			Mountpoint:   p.Mountpoint,
			UsedBytes:    u.Used,
			TotalBytes:   u.Total,
			UsedFraction: u.UsedPercent / 100,
		})
	}
	return usages, nil
}

// Snapshot returns the most recently refreshed sample.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// SnapshotJSON marshals the current Snapshot, for the CHECK command.
func (m *Monitor) SnapshotJSON() ([]byte, error) {
	snap := m.Snapshot()
	return json.Marshal(snap)
}

// Healthy reports the single boolean HEARTBEAT needs: true when no
// unhealthy condition is currently flagged.
func (m *Monitor) Healthy() bool {
	return !m.Snapshot().Unhealthy
}
