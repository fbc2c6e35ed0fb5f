package system

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a snapshot of the process footprint for the performance report.
type Usage struct {
	RSSMB         float64
	CPUPercent    float64
	SystemMemUsed float64
}

func CurrentUsage() (Usage, error) {
	var u Usage
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return u, err
	}
	if mi, err := p.MemoryInfo(); err == nil {
		u.RSSMB = float64(mi.RSS) / 1024 / 1024
	}
	if c, err := p.CPUPercent(); err == nil {
		u.CPUPercent = c
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		u.SystemMemUsed = vm.UsedPercent
	}
	return u, nil
}
