// File: internal/concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity helpers for loop threads.

package concurrency

import (
	"runtime"
)

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}

// CPUForIndex spreads loop indexes over the available CPUs.
func CPUForIndex(i int) int {
	n := NumCPUs()
	if n <= 0 || i < 0 {
		return 0
	}
	return i % n
}
