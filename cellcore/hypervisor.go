package cellcore

import "sync"

// SystemConfig describes the machine-wide resources a Hypervisor is
// configured with at boot: the root cell's own configuration plus the
// fixed capacity of the two pools create/destroy account against (spec §3,
// §6's MEM_POOL/REMAP_POOL counters).
type SystemConfig struct {
	Root SystemRootConfig

	// MemPoolSize and RemapPoolSize are the fixed capacities, in bytes, of
	// the general allocator and the temporary-mapping window create/destroy
	// draw from (spec §4.5.1 step "reserve remap pool window", §6).
	MemPoolSize   int
	RemapPoolSize int
}

// SystemRootConfig is the root cell's configuration, using the same shape
// as any other cell's (spec §4.2: "the root cell ... is itself just a cell
// with a reserved id").
type SystemRootConfig struct {
	CPUSetBytes   []byte
	MemoryRegions []MemoryRegion
}

// Hypervisor is the top-level context wiring the cell registry, the
// configured architecture seam, and the two pool counters every lifecycle
// operation accounts against. One Hypervisor corresponds to one physical
// machine (spec §1: out of scope are any multi-host or networked
// concerns).
type Hypervisor struct {
	Registry *Registry
	Arch     Arch
	PerCPU   *PerCpuTable

	root *Cell

	// shutdownMu is the global lock the two-phase SHUTDOWN hypercall uses
	// to let exactly one CPU drive the handshake to completion (spec §4.8).
	shutdownMu sync.Mutex

	memPoolSize, memPoolUsed     int
	remapPoolSize, remapPoolUsed int

	poolMu sync.Mutex

	// systemCPUs is the system-wide admissible cpu set fixed at boot
	// (spec §9's cpu_id_valid, distinct from any single cell's CpuSet):
	// ids never enter or leave it, they only move between cells.
	systemCPUs map[int]bool
}

// NewHypervisor constructs a Hypervisor with its root cell already created
// from cfg.Root, owning every CPU and memory region the configuration
// grants it. Grounded on the boot-time root cell setup implied by spec §4.2
// (register_cell / root cell never going through cell_create's full path).
func NewHypervisor(cfg SystemConfig, arch Arch) (*Hypervisor, error) {
	cpus, err := NewCpuSet(len(cfg.Root.CPUSetBytes))
	if err != nil {
		return nil, err
	}
	cpus.CopyBitmap(cfg.Root.CPUSetBytes)

	root := &Cell{
		ID: RootCellID,
		Config: CellConfig{
			Name:          "root",
			CPUSetBytes:   append([]byte(nil), cfg.Root.CPUSetBytes...),
			MemoryRegions: append([]MemoryRegion(nil), cfg.Root.MemoryRegions...),
		},
		CPUs:  cpus,
		state: StateRunning,
	}

	// The root cell's regions are mapped 1:1 by construction on real
	// hardware (spec §4.5.1 step 8's premise); since this core builds the
	// root in software, that mapping has to be installed explicitly so a
	// later create's "unmap from root" stage has something to remove.
	for _, region := range root.Config.MemoryRegions {
		if region.IsCommRegion() {
			continue
		}
		rootView := region
		rootView.VirtStart = region.PhysStart
		if err := arch.MapMemoryRegion(root, rootView); err != nil {
			return nil, newErr(ErrInvalid, "map root region: %v", err)
		}
	}

	reg := NewRegistry()
	reg.cells[RootCellID] = root

	systemCPUs := make(map[int]bool)
	for _, id := range cpus.Iter() {
		systemCPUs[id] = true
	}

	return &Hypervisor{
		Registry:      reg,
		Arch:          arch,
		PerCPU:        NewPerCpuTable(root),
		root:          root,
		memPoolSize:   cfg.MemPoolSize,
		remapPoolSize: cfg.RemapPoolSize,
		systemCPUs:    systemCPUs,
	}, nil
}

// CPUIDValid reports whether id names a physical CPU the system was
// configured with at boot, matching cpu_id_valid() in the original
// control.c: an id can migrate between cells over time but the system-wide
// admissible set itself is fixed.
func (h *Hypervisor) CPUIDValid(id int) bool {
	return h.systemCPUs[id]
}

// CPUGetState implements the CPU_GET_STATE hypercall (spec §6), including
// the permission check the distilled spec.md doesn't restate in §4.5: a
// non-root-cell initiator may only query CPU ids within its own cell.
func (h *Hypervisor) CPUGetState(initiatorCPU, queriedCPU int) (State, error) {
	if !h.CPUIDValid(queriedCPU) {
		return 0, newErr(ErrInvalid, "cpu %d is not a valid system cpu id", queriedCPU)
	}

	initiator := h.PerCPU.Get(initiatorCPU)
	if initiator.Cell() == nil || !initiator.Cell().IsRoot() {
		if initiator.Cell() == nil || !initiator.Cell().CPUs.Test(queriedCPU) {
			return 0, newErr(ErrPermissionDenied, "cpu %d may only query cpus in its own cell", initiatorCPU)
		}
	}

	return h.CPUState(queriedCPU), nil
}

// Root returns the hypervisor's root cell.
func (h *Hypervisor) Root() *Cell {
	return h.root
}

// reservePool deducts n bytes from the named pool, returning an
// ErrOutOfMemory failure if the pool cannot satisfy it. Used by
// create (mem pool, remap pool window) and undone on rollback via
// releasePool.
func (h *Hypervisor) reservePool(usedPtr, sizePtr *int, n int) error {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	if *usedPtr+n > *sizePtr {
		return newErr(ErrOutOfMemory, "pool exhausted: requested %d, %d/%d in use", n, *usedPtr, *sizePtr)
	}
	*usedPtr += n
	return nil
}

func (h *Hypervisor) releasePool(usedPtr *int, n int) {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	*usedPtr -= n
}

func (h *Hypervisor) reserveMemPool(frames int) error {
	return h.reservePool(&h.memPoolUsed, &h.memPoolSize, frames)
}

func (h *Hypervisor) releaseMemPool(frames int) {
	h.releasePool(&h.memPoolUsed, frames)
}

func (h *Hypervisor) reserveRemapPool(frames int) error {
	return h.reservePool(&h.remapPoolUsed, &h.remapPoolSize, frames)
}

func (h *Hypervisor) releaseRemapPool(frames int) {
	h.releasePool(&h.remapPoolUsed, frames)
}

// Info answers a HYPERVISOR_GET_INFO selector (spec §6).
func (h *Hypervisor) Info(selector int) int64 {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	switch selector {
	case InfoMemPoolSize:
		return int64(h.memPoolSize)
	case InfoMemPoolUsed:
		return int64(h.memPoolUsed)
	case InfoRemapPoolSize:
		return int64(h.remapPoolSize)
	case InfoRemapPoolUsed:
		return int64(h.remapPoolUsed)
	case InfoNumCells:
		return int64(h.Registry.Count())
	}
	return errCode(ErrInvalid)
}
