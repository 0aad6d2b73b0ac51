//go:build unix

package perf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// rusageUsage takes CPU time from getrusage. getrusage only reports peak
// RSS, so memory comes from the Go runtime.
func rusageUsage() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{}, fmt.Errorf("getrusage: %w", err)
	}
	u, _ := runtimeUsage()
	u.CPUSeconds = float64(ru.Utime.Nano()+ru.Stime.Nano()) / 1e9
	return u, nil
}
