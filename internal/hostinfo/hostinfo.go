package hostinfo

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Info describes the machine a set of timings was taken on
type Info struct {
	Hostname      string  `json:"hostname" yaml:"hostname"`
	OS            string  `json:"os" yaml:"os"`
	Platform      string  `json:"platform,omitempty" yaml:"platform,omitempty"`
	Architecture  string  `json:"architecture" yaml:"architecture"`
	CPUModel      string  `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads    int     `json:"cpu_threads" yaml:"cpu_threads"`
	RAMTotalBytes uint64  `json:"ram_total_bytes" yaml:"ram_total_bytes"`
	GoVersion     string  `json:"go_version" yaml:"go_version"`
	ProcessCPU    float64 `json:"process_cpu_seconds" yaml:"process_cpu_seconds"`
}

// Detect gathers host information. Fields gopsutil cannot read on this
// platform are left at their fallbacks rather than failing the whole call.
func Detect() Info {
	info := Info{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUModel:     "Unknown",
		CPUThreads:   runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.Platform = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
	} else if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 && cpus[0].ModelName != "" {
		info.CPUModel = cpus[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.CPUThreads = n
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		info.RAMTotalBytes = vmem.Total
	}

	info.ProcessCPU = ProcessCPUSeconds()
	return info
}

// ProcessCPUSeconds returns user+system CPU time consumed by this process,
// or 0 if it cannot be read.
func ProcessCPUSeconds() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	times, err := p.Times()
	if err != nil {
		return 0
	}
	return times.User + times.System
}

// FormatRAM formats a byte count as GB
func FormatRAM(bytes uint64) string {
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}
