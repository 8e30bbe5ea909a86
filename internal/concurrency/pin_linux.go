//go:build linux
// +build linux

// hioload-net/internal/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation of thread pinning via sched_setaffinity(2).

package concurrency

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpuID. The goroutine stays locked even if binding fails.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 || cpuID >= NumCPUs() {
		return fmt.Errorf("pin: cpu %d out of range [0,%d)", cpuID, NumCPUs())
	}
	var set unix.CPUSet
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin: sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}

// UnpinCurrentThread allows the calling thread on every CPU and releases
// the goroutine lock taken by PinCurrentThread.
func UnpinCurrentThread() error {
	defer runtime.UnlockOSThread()
	var set unix.CPUSet
	for i := 0; i < NumCPUs(); i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}

// CurrentCPUs returns the CPUs the calling thread may run on.
func CurrentCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var cpus []int
	for i := 0; i < len(set)*64; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
