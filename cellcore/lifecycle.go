package cellcore

import (
	"context"

	"github.com/minipart/hvcore/hvlog"
)

// cellHeaderBytes is the fixed, architecture-independent overhead this
// simulation charges against the mem pool for a cell record, standing in
// for the real struct cell plus bookkeeping fields (spec §3's "bookkeeping
// for how many frames the cell record occupies"). The real byte layout of
// a cell record is out of scope (spec §1); only its accounting matters
// here.
const cellHeaderBytes = 128

// regionDescriptorBytes is the accounted size of one MemoryRegion
// descriptor inside a cell's configuration copy.
const regionDescriptorBytes = 32

// configFootprint is the byte size this simulation charges for cfg: its cpu
// bitmap plus regionDescriptorBytes per memory region; the name and flags
// are not counted. Used for the too_big/out_of_memory accounting in create.
func configFootprint(cfg CellConfig) int {
	return len(cfg.CPUSetBytes) + len(cfg.MemoryRegions)*regionDescriptorBytes
}

// requireRootInitiator enforces that every lifecycle entry point is only
// reachable from the root cell (spec §4.5: "All lifecycle entry points
// require the initiator's current cell to be the root").
func (h *Hypervisor) requireRootInitiator(initiatorCPU int) error {
	p := h.PerCPU.Get(initiatorCPU)
	if p.Cell() == nil || !p.Cell().IsRoot() {
		return newErr(ErrPermissionDenied, "initiator cpu %d is not in the root cell", initiatorCPU)
	}
	return nil
}

// CreateCell implements the CELL_CREATE hypercall: partitions cfg's
// requested CPUs and memory regions out of the root cell into a freshly
// started cell, with full rollback on any failure (spec §4.5.1).
func (h *Hypervisor) CreateCell(ctx context.Context, initiatorCPU int, cfg CellConfig) (int, error) {
	if err := h.requireRootInitiator(initiatorCPU); err != nil {
		return 0, err
	}

	// Stage 1: suspend root.
	if err := SuspendCells(ctx, h.Arch, h.root, initiatorCPU); err != nil {
		return 0, err
	}
	defer ResumeCells(h.Arch, h.root, initiatorCPU)

	// Stage 2: "map configuration" into the temporary-mapping window,
	// modeled here as a remap-pool reservation for cfg's serialized byte
	// footprint (cfg is already resident, parsed Go data -- there is no
	// guest-physical blob to map in this simulation). The window is
	// released once the cell record has been built, win or lose.
	footprint := configFootprint(cfg)
	if footprint > h.remapPoolSize {
		return 0, newErr(ErrTooBig, "configuration footprint %d exceeds temporary window %d", footprint, h.remapPoolSize)
	}
	if err := h.reserveRemapPool(footprint); err != nil {
		return 0, err
	}
	defer h.releaseRemapPool(footprint)

	// Stage 3: validate.
	if _, exists := h.Registry.LookupByName(cfg.Name); exists {
		return 0, newErr(ErrExists, "cell %q already exists", cfg.Name)
	}
	if err := cfg.validateMemoryRegions(); err != nil {
		return 0, err
	}

	// Stage 4: allocate the cell record (cell struct + config copy).
	recordBytes := cellHeaderBytes + footprint
	if err := h.reserveMemPool(recordBytes); err != nil {
		return 0, err
	}

	// Stage 5: initialise CpuSet.
	cpus, err := NewCpuSet(len(cfg.CPUSetBytes))
	if err != nil {
		h.releaseMemPool(recordBytes)
		return 0, err
	}
	cpus.CopyBitmap(cfg.CPUSetBytes)
	if cpus.IsFrameBacked() {
		if err := h.reserveMemPool(FrameSize); err != nil {
			h.releaseMemPool(recordBytes)
			return 0, err
		}
	}

	rollbackCpuSet := func() {
		if cpus.IsFrameBacked() {
			h.releaseMemPool(FrameSize)
		}
		h.releaseMemPool(recordBytes)
	}

	// Stage 6: disjointness checks.
	if cpus.Test(initiatorCPU) {
		rollbackCpuSet()
		return 0, newErr(ErrBusy, "new cell's cpu set includes the initiator cpu %d", initiatorCPU)
	}
	if h.root.CPUs.MaxCpuID() < cpus.MaxCpuID() {
		rollbackCpuSet()
		return 0, newErr(ErrBusy, "new cell's cpu set exceeds the root's capacity")
	}
	for _, id := range cpus.Iter() {
		if !h.root.CPUs.Test(id) {
			rollbackCpuSet()
			return 0, newErr(ErrBusy, "cpu %d is not owned by the root cell", id)
		}
	}

	id := h.Registry.Reserve()
	cell := &Cell{
		ID:     id,
		Config: cfg.Copy(),
		CPUs:   cpus,
		state:  StateStarting,
	}
	if !cfg.HasUnmanagedExit() {
		cell.comm = NewCommRegion()
	}

	// Stage 7: shrink the root.
	for _, cpuID := range cpus.Iter() {
		h.root.CPUs.Clear(cpuID)
	}

	restoreRootCpus := func() {
		for _, cpuID := range cpus.Iter() {
			h.root.CPUs.Set(cpuID)
		}
	}

	// Stage 8: unmap the new cell's regions from the root.
	var unmapped []MemoryRegion
	for _, region := range cell.Config.MemoryRegions {
		if region.IsCommRegion() {
			continue
		}
		rootView := region
		rootView.VirtStart = region.PhysStart
		if err := h.Arch.UnmapMemoryRegion(h.root, rootView); err != nil {
			for _, u := range unmapped {
				remapToRoot(h.Arch, h.root, u)
			}
			restoreRootCpus()
			rollbackCpuSet()
			h.Registry.Release(id)
			return 0, newErr(ErrInvalid, "unmap region from root: %v", err)
		}
		unmapped = append(unmapped, region)
	}

	// Stage 9: arch create.
	if err := h.Arch.CellArchCreate(cell); err != nil {
		for _, u := range unmapped {
			remapToRoot(h.Arch, h.root, u)
		}
		restoreRootCpus()
		rollbackCpuSet()
		h.Registry.Release(id)
		return 0, newErr(ErrInvalid, "arch create: %v", err)
	}

	// Stage 10: publish.
	h.Registry.Insert(cell)
	for _, cpuID := range cpus.Iter() {
		h.PerCPU.Reassign(cpuID, cell)
		if err := h.Arch.ResetCPU(cpuID); err != nil {
			hvlog.Warn("reset cpu %d for new cell %q failed: %v", cpuID, cell.Name(), err)
		}
	}
	cell.state = StateRunning

	hvlog.Info("created cell %q (id %d) with cpus %v", cell.Name(), cell.ID, cpus.Iter())
	hvlog.Debug("pool usage after create: mem %d/%d, remap %d/%d",
		h.Info(InfoMemPoolUsed), h.Info(InfoMemPoolSize), h.Info(InfoRemapPoolUsed), h.Info(InfoRemapPoolSize))

	// Stage 11: resume root happens via the deferred ResumeCells above.
	return id, nil
}

// DestroyCell implements the CELL_DESTROY hypercall (spec §4.5.2).
func (h *Hypervisor) DestroyCell(ctx context.Context, initiatorCPU int, id int) error {
	if err := h.requireRootInitiator(initiatorCPU); err != nil {
		return err
	}

	// Stage 1: suspend root.
	if err := SuspendCells(ctx, h.Arch, h.root, initiatorCPU); err != nil {
		return err
	}
	defer ResumeCells(h.Arch, h.root, initiatorCPU)

	// Stage 2: find the cell.
	cell, ok := h.Registry.Lookup(id)
	if !ok {
		return newErr(ErrNotFound, "no cell with id %d", id)
	}
	if cell.IsRoot() {
		return newErr(ErrInvalid, "cannot destroy the root cell")
	}

	// Stage 3: cooperative shutdown check.
	if !ShutdownOK(cell) {
		return newErr(ErrPermissionDenied, "cell %q refused shutdown", cell.Name())
	}

	// Stage 4: suspend the target cell.
	if err := SuspendCells(ctx, h.Arch, cell, -1); err != nil {
		return err
	}

	// Stage 5: park CPUs, reassign to root.
	for _, cpuID := range cell.CPUs.Iter() {
		if err := h.Arch.ParkCPU(cpuID); err != nil {
			hvlog.Warn("park cpu %d of cell %q failed: %v", cpuID, cell.Name(), err)
		}
		h.root.CPUs.Set(cpuID)
		h.PerCPU.Reassign(cpuID, h.root)
	}

	// Stage 6: unmap and remap regions.
	for _, region := range cell.Config.MemoryRegions {
		if err := h.Arch.UnmapMemoryRegion(cell, region); err != nil {
			hvlog.Warn("unmap region from cell %q failed: %v", cell.Name(), err)
		}
		if !region.IsCommRegion() {
			remapToRoot(h.Arch, h.root, region)
		}
	}

	// Stage 7: arch destroy.
	if err := h.Arch.CellArchDestroy(cell); err != nil {
		hvlog.Warn("arch destroy of cell %q failed: %v", cell.Name(), err)
	}

	// Stage 8: unlink.
	h.Registry.Remove(id)

	// Stage 9: free the cell record's accounted frames.
	recordBytes := cellHeaderBytes + configFootprint(cell.Config)
	h.releaseMemPool(recordBytes)
	if cell.CPUs.IsFrameBacked() {
		h.releaseMemPool(FrameSize)
	}

	cell.state = StateShutdown
	hvlog.Info("destroyed cell %q (id %d)", cell.Name(), id)
	hvlog.Debug("pool usage after destroy: mem %d/%d, remap %d/%d",
		h.Info(InfoMemPoolUsed), h.Info(InfoMemPoolSize), h.Info(InfoRemapPoolUsed), h.Info(InfoRemapPoolSize))

	// Stage 10: resume root happens via the deferred ResumeCells above.
	return nil
}

// GetCellState implements the CELL_GET_STATE hypercall (spec §4.5.3): a
// linear search by id followed by a read of the cell's comm_region.cell_state,
// returned only if it is one of the three known values. A cell with no comm
// region (the root, or an UNMANAGED_EXIT cell) has no guest-writable state
// to observe and reports its hypervisor-side state directly.
func (h *Hypervisor) GetCellState(initiatorCPU int, id int) (State, error) {
	if err := h.requireRootInitiator(initiatorCPU); err != nil {
		return 0, err
	}
	cell, ok := h.Registry.Lookup(id)
	if !ok {
		return 0, newErr(ErrNotFound, "no cell with id %d", id)
	}

	if cell.comm == nil {
		return cell.state, nil
	}

	switch cell.comm.CellState() {
	case CommStateRunning:
		return StateRunning, nil
	case CommStateShutDown:
		return StateShutdown, nil
	case CommStateFailed:
		return StateFailed, nil
	default:
		return 0, newErr(ErrInvalid, "cell %q has no observable state", cell.Name())
	}
}
