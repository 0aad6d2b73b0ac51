//go:build !unix

package perf

func defaultProbe() Probe { return ProbeFunc(runtimeUsage) }
