package inspect

import (
	"fmt"
	"time"

	gops "github.com/shirou/gopsutil/v3/process"
)

// ProcInfo is a point-in-time resource snapshot of a running service process.
type ProcInfo struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Uptime     string  `json:"uptime,omitempty"`
}

// Collect gathers CPU/memory/uptime for the given PID. Fields that cannot
// be read are left zero; only a missing process is an error.
func Collect(pid int) (ProcInfo, error) {
	if pid <= 0 {
		return ProcInfo{}, fmt.Errorf("invalid pid %d", pid)
	}
	p, err := gops.NewProcess(int32(pid))
	if err != nil {
		return ProcInfo{}, fmt.Errorf("process %d: %w", pid, err)
	}
	info := ProcInfo{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if createMs, err := p.CreateTime(); err == nil && createMs > 0 {
		up := time.Since(time.UnixMilli(createMs)).Truncate(time.Second)
		info.Uptime = up.String()
	}
	return info, nil
}
