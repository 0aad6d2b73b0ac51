package perf

import "runtime/metrics"

// Usage is a point-in-time reading of process resources.
type Usage struct {
	RSSBytes   int64
	CPUSeconds float64
}

// Probe reads process resource usage.
type Probe interface {
	Usage() (Usage, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() (Usage, error)

func (f ProbeFunc) Usage() (Usage, error) { return f() }

// DefaultProbe returns the best probe for the platform: procfs on Linux,
// getrusage on other Unix systems and the Go runtime elsewhere.
func DefaultProbe() Probe { return defaultProbe() }

// runtimeUsage estimates usage from the Go runtime alone. Memory is the
// runtime's mapped total, not the OS resident set.
func runtimeUsage() (Usage, error) {
	samples := []metrics.Sample{
		{Name: "/memory/classes/total:bytes"},
		{Name: "/cpu/classes/total:cpu-seconds"},
	}
	metrics.Read(samples)

	var u Usage
	if samples[0].Value.Kind() == metrics.KindUint64 {
		u.RSSBytes = int64(samples[0].Value.Uint64())
	}
	if samples[1].Value.Kind() == metrics.KindFloat64 {
		u.CPUSeconds = samples[1].Value.Float64()
	}
	return u, nil
}
