package main

import (
	"fmt"

	proc "github.com/c9s/goprocinfo/linux"

	"github.com/minipart/hvcore/hvlog"
)

// discoverCPUCount reads the host's /proc/cpuinfo to seed a demo
// SystemConfig's CPU count, so the interactive shell starts with a root
// cell sized to the machine it's actually running on rather than a
// hardcoded guess.
func discoverCPUCount() int {
	info, err := proc.ReadCPUInfo("/proc/cpuinfo")
	if err != nil {
		hvlog.Warn("cpuinfo discovery failed, defaulting to 4 cpus: %v", err)
		return 4
	}
	n := info.NumCPU()
	if n <= 0 {
		return 4
	}
	return n
}

// rootCPUSetBytes returns the byte-length CPU bitmap needed to represent n
// CPUs, all set, for seeding the root cell's configuration.
func rootCPUSetBytes(n int) []byte {
	bytes := (n + 7) / 8
	buf := make([]byte, bytes)
	for id := 0; id < n; id++ {
		buf[id/8] |= 1 << uint(id%8)
	}
	return buf
}

func describeHost(n int) string {
	return fmt.Sprintf("discovered %d host cpus", n)
}
