package monitor

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSampler reports process resource usage as fractions in [0, 1].
type ResourceSampler interface {
	Usage() (memory, cpu float64, err error)
}

// ProcessSampler measures the current process with gopsutil.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler attaches to the running process.
func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	// Prime the CPU counter so the first sample has a baseline.
	_, _ = p.Percent(0)
	return &ProcessSampler{proc: p}, nil
}

// Usage returns resident memory as a fraction of system memory and CPU time
// since the previous call as a fraction of all cores.
func (s *ProcessSampler) Usage() (memory, cpu float64, err error) {
	mem, err := s.proc.MemoryPercent()
	if err != nil {
		return 0, 0, err
	}
	pct, err := s.proc.Percent(0)
	if err != nil {
		return 0, 0, err
	}
	return float64(mem) / 100, pct / 100 / float64(runtime.NumCPU()), nil
}
