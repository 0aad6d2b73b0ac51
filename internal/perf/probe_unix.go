//go:build unix && !linux

package perf

func defaultProbe() Probe { return ProbeFunc(rusageUsage) }
