//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux platform probes.

package control

import (
	"runtime"

	"github.com/momentics/hioload-net/internal/concurrency"
	"github.com/momentics/hioload-net/pool"
)

// RegisterPlatformProbes adds CPU, scheduler and read-scratch probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return concurrency.NumCPUs()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
	dp.RegisterProbe("platform.gomaxprocs", func() any {
		return runtime.GOMAXPROCS(0)
	})
	dp.RegisterProbe("pool.scratch_outstanding", func() any {
		return pool.ScratchOutstanding()
	})
	dp.RegisterProbe("platform.affinity", func() any {
		cpus, err := concurrency.CurrentCPUs()
		if err != nil {
			return err.Error()
		}
		return cpus
	})
}
