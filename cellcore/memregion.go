package cellcore

import (
	"fmt"

	"github.com/minipart/hvcore/hvlog"
)

// MemFlags are the bits of a MemoryRegion's flags word (spec §3).
type MemFlags uint32

const (
	MemRead MemFlags = 1 << iota
	MemWrite
	MemExecute
	// MemCommRegion marks the single region that is not backed by host
	// memory but by the cell's comm page (spec §3's COMM_REGION flag).
	MemCommRegion
)

// ValidMemFlags is the fixed valid-flags mask; a region's flags must lie
// entirely within it (spec §3).
const ValidMemFlags = MemRead | MemWrite | MemExecute | MemCommRegion

// MemoryRegion is (phys_start, virt_start, size, flags) as spec §3
// describes it. All three addresses/sizes must be frame-aligned.
type MemoryRegion struct {
	PhysStart uint64
	VirtStart uint64
	Size      uint64
	Flags     MemFlags
}

// IsCommRegion reports whether this region is the cell's comm page.
func (r MemoryRegion) IsCommRegion() bool {
	return r.Flags&MemCommRegion != 0
}

// End returns the exclusive end of the region's physical range.
func (r MemoryRegion) End() uint64 {
	return r.PhysStart + r.Size
}

func frameAligned(v uint64) bool {
	return v%FrameSize == 0
}

// Validate checks frame alignment of all three addresses/sizes and that
// flags lie within ValidMemFlags, matching check_mem_regions() in the
// original control.c.
func (r MemoryRegion) Validate() error {
	if !frameAligned(r.PhysStart) || !frameAligned(r.VirtStart) || !frameAligned(r.Size) {
		return newErr(ErrInvalid, "memory region not frame-aligned: phys=%#x virt=%#x size=%#x",
			r.PhysStart, r.VirtStart, r.Size)
	}
	if r.Flags&^ValidMemFlags != 0 {
		return newErr(ErrInvalid, "memory region has invalid flags %#x", uint32(r.Flags))
	}
	return nil
}

func addressInRegion(addr uint64, r MemoryRegion) bool {
	return addr >= r.PhysStart && addr < r.End()
}

// overlap computes the physical-address intersection of mem and root,
// returning (overlap, true) if they intersect. Grounded on
// remap_to_root_cell()'s per-candidate overlap computation in control.c,
// and spec §4.3's remap-to-root algorithm.
func overlap(mem, root MemoryRegion) (MemoryRegion, bool) {
	var o MemoryRegion

	switch {
	case addressInRegion(mem.PhysStart, root):
		o.PhysStart = mem.PhysStart
		o.Size = root.Size - (o.PhysStart - root.PhysStart)
		if o.Size > mem.Size {
			o.Size = mem.Size
		}
	case addressInRegion(root.PhysStart, mem):
		o.PhysStart = root.PhysStart
		o.Size = mem.Size - (o.PhysStart - mem.PhysStart)
		if o.Size > root.Size {
			o.Size = root.Size
		}
	default:
		return MemoryRegion{}, false
	}

	o.VirtStart = root.VirtStart + (o.PhysStart - root.PhysStart)
	o.Flags = root.Flags

	return o, true
}

// Mapper is the arch-layer seam for installing/removing guest-physical to
// host-physical mappings (spec §4.3, out of scope per spec §1). Tests and
// cmd/hvctl use internal/simarch's in-memory implementation.
type Mapper interface {
	MapMemoryRegion(cell *Cell, region MemoryRegion) error
	UnmapMemoryRegion(cell *Cell, region MemoryRegion) error
}

// remapToRoot reinstates region's overlap with each of the root cell's
// configured memory regions back into the root cell's address space. A
// mapping failure is logged and skipped -- per spec §4.3 the system cannot
// do better and panicking would be worse.
func remapToRoot(mapper Mapper, root *Cell, region MemoryRegion) {
	for _, rootRegion := range root.Config.MemoryRegions {
		o, ok := overlap(region, rootRegion)
		if !ok {
			continue
		}

		if err := mapper.MapMemoryRegion(root, o); err != nil {
			hvlog.Warn("remap to root cell %q failed for region %#x/%#x: %v",
				root.Name(), o.PhysStart, o.Size, err)
		}
	}
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("MemoryRegion{phys=%#x virt=%#x size=%#x flags=%#x}",
		r.PhysStart, r.VirtStart, r.Size, uint32(r.Flags))
}
