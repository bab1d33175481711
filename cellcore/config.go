package cellcore

import "fmt"

// CellFlags are cell-level flags carried in a CellConfig (spec §3).
type CellFlags uint32

const (
	// FlagUnmanagedExit opts the cell out of the cooperative shutdown
	// protocol (spec §4.6): cell_shutdown_ok returns true immediately.
	FlagUnmanagedExit CellFlags = 1 << iota
)

// CellConfig is an immutable descriptor for a cell: its name, requested CPU
// bitmap, memory regions and flags (spec §3). The byte layout of a real
// configuration blob is out of scope (spec §1); this type is the parsed,
// in-memory result a caller builds directly or that a (not-modeled) config
// blob parser would produce.
type CellConfig struct {
	Name string

	// CPUSetBytes is the requested CPU bitmap, exactly as it would arrive
	// in a configuration blob: its length drives the inline-vs-frame
	// storage decision in NewCpuSet.
	CPUSetBytes []byte

	MemoryRegions []MemoryRegion

	Flags CellFlags
}

// Copy returns a deep copy of cfg, so that a Cell's stored configuration
// never aliases a caller's mutable buffers (spec §4.5.1 step 4: "Copy the
// configuration inline so subsequent operations do not depend on the
// caller's mapping").
func (cfg CellConfig) Copy() CellConfig {
	out := cfg
	out.CPUSetBytes = append([]byte(nil), cfg.CPUSetBytes...)
	out.MemoryRegions = append([]MemoryRegion(nil), cfg.MemoryRegions...)
	return out
}

// HasUnmanagedExit reports whether the cell opted out of cooperative
// shutdown.
func (cfg CellConfig) HasUnmanagedExit() bool {
	return cfg.Flags&FlagUnmanagedExit != 0
}

// validateMemoryRegions checks every region's alignment and flags, matching
// check_mem_regions() in the original control.c.
func (cfg CellConfig) validateMemoryRegions() error {
	for i, r := range cfg.MemoryRegions {
		if err := r.Validate(); err != nil {
			return newErr(ErrInvalid, "region %d: %v", i, err)
		}
	}
	return nil
}

func (cfg CellConfig) String() string {
	return fmt.Sprintf("CellConfig{name=%q cpuSetBytes=%d regions=%d flags=%#x}",
		cfg.Name, len(cfg.CPUSetBytes), len(cfg.MemoryRegions), uint32(cfg.Flags))
}
