package perf

import "github.com/prometheus/procfs"

func defaultProbe() Probe { return ProbeFunc(procUsage) }

// procUsage reads /proc/self/stat. When procfs is unavailable (restricted
// containers) it falls back to getrusage.
func procUsage() (Usage, error) {
	proc, err := procfs.Self()
	if err != nil {
		return rusageUsage()
	}
	stat, err := proc.Stat()
	if err != nil {
		return rusageUsage()
	}
	return Usage{
		RSSBytes:   int64(stat.ResidentMemory()),
		CPUSeconds: stat.CPUTime(),
	}, nil
}
