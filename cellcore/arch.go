package cellcore

// Arch is the seam separating this core from the per-architecture SMP and
// page-table primitives spec §1 declares out of scope: parking and
// resetting physical CPUs, and building/tearing down a cell's page tables.
// internal/simarch provides an in-memory implementation for tests and
// cmd/hvctl; a real port would back this with IPI and page-table code.
type Arch interface {
	Mapper
	SuspendResume

	// ParkCPU removes cpu from guest execution and parks it in the
	// hypervisor, used when a cell releases a CPU back to the root cell
	// (spec §4.5.2 destroy, step "park CPUs").
	ParkCPU(cpu int) error

	// ResetCPU resets cpu to its architectural power-on state before handing
	// it to a newly created cell (spec §4.5.1 create).
	ResetCPU(cpu int) error

	// ShutdownCPU powers cpu down entirely, used by the SHUTDOWN hypercall
	// path (spec §4.8).
	ShutdownCPU(cpu int) error

	// CellArchCreate and CellArchDestroy perform the architecture-specific
	// parts of creating/destroying a cell's address space: e.g. allocating
	// and freeing its page tables (spec §4.5.1 step "arch_cell_create",
	// §4.5.2 step "arch_cell_destroy").
	CellArchCreate(cell *Cell) error
	CellArchDestroy(cell *Cell) error

	// ArchShutdown performs the architecture-specific teardown of the root
	// cell itself, the last step of the global SHUTDOWN handshake (spec
	// §4.5.4).
	ArchShutdown() error
}

// SuspendResume is the seam for the cross-CPU quiesce primitive the
// Suspend/Resume coordinator drives (spec §4.4): send every CPU in a set to
// a quiescent point and later release it, abstracting the IPI-based
// mechanism of a real hypervisor.
type SuspendResume interface {
	// SuspendCPU blocks until cpu has reached a quiescent point, or returns
	// an error if it cannot be reached (e.g. already failed).
	SuspendCPU(cpu int) error
	// ResumeCPU releases a previously suspended cpu.
	ResumeCPU(cpu int) error
}
