package cellcore_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/minipart/hvcore/cellcore"
	"github.com/minipart/hvcore/internal/simarch"
)

// awaitShutdownRequest simulates a cooperative guest: it blocks until the
// hypervisor posts MsgShutdownRequest to comm, then runs reply.
func awaitShutdownRequest(comm *cellcore.CommRegion, reply func()) {
	go func() {
		for comm.ReadMessage() != cellcore.MsgShutdownRequest {
			runtime.Gosched()
		}
		reply()
	}()
}

func rootBitmap(ids ...int) []byte {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	buf := make([]byte, max/8+1)
	for _, id := range ids {
		buf[id/8] |= 1 << uint(id%8)
	}
	return buf
}

func newTestHypervisor(t *testing.T) (*cellcore.Hypervisor, *simarch.Machine) {
	t.Helper()
	machine := simarch.NewMachine()
	hv, err := cellcore.NewHypervisor(cellcore.SystemConfig{
		Root: cellcore.SystemRootConfig{
			CPUSetBytes: rootBitmap(0, 1, 2, 3),
			MemoryRegions: []cellcore.MemoryRegion{
				{PhysStart: 0, VirtStart: 0, Size: 0x1000_0000, Flags: cellcore.MemRead | cellcore.MemWrite},
			},
		},
		MemPoolSize:   1 << 20,
		RemapPoolSize: 1 << 16,
	}, machine)
	if err != nil {
		t.Fatalf("NewHypervisor: %v", err)
	}
	return hv, machine
}

func guestAConfig() cellcore.CellConfig {
	return cellcore.CellConfig{
		Name:        "guestA",
		CPUSetBytes: rootBitmap(2, 3),
		MemoryRegions: []cellcore.MemoryRegion{
			{PhysStart: 0x0800_0000, VirtStart: 0x0800_0000, Size: 0x0100_0000, Flags: cellcore.MemRead | cellcore.MemWrite},
		},
	}
}

// Scenario 1: create happy path.
func TestCreateHappyPath(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	id, err := hv.CreateCell(ctx, 0, guestAConfig())
	if err != nil {
		t.Fatalf("CreateCell: %v", err)
	}
	if id != 1 {
		t.Fatalf("new cell id = %d, want 1", id)
	}

	root := hv.Root()
	if got := root.CPUs.Iter(); !intsEqual(got, []int{0, 1}) {
		t.Fatalf("root cpu set = %v, want [0 1]", got)
	}

	cell, ok := hv.Registry.Lookup(id)
	if !ok {
		t.Fatal("created cell not found in registry")
	}
	if got := cell.CPUs.Iter(); !intsEqual(got, []int{2, 3}) {
		t.Fatalf("guestA cpu set = %v, want [2 3]", got)
	}

	if hv.PerCPU.Get(2).Cell() != cell || hv.PerCPU.Get(3).Cell() != cell {
		t.Fatal("expected cpus 2 and 3 reassigned to the new cell")
	}
}

// Scenario 2: create name collision.
func TestCreateNameCollision(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	cfg := guestAConfig()
	cfg.Name = "root"

	before := hv.Root().CPUs.Iter()
	if _, err := hv.CreateCell(ctx, 0, cfg); cellcore.KindOf(err) != cellcore.ErrExists {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	after := hv.Root().CPUs.Iter()
	if !intsEqual(before, after) {
		t.Fatalf("root cpu set mutated on failed create: before=%v after=%v", before, after)
	}
}

// Scenario 3: create includes initiator.
func TestCreateIncludesInitiator(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	cfg := guestAConfig()
	cfg.CPUSetBytes = rootBitmap(0, 2)

	before := hv.Root().CPUs.Iter()
	if _, err := hv.CreateCell(ctx, 0, cfg); cellcore.KindOf(err) != cellcore.ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	after := hv.Root().CPUs.Iter()
	if !intsEqual(before, after) {
		t.Fatalf("root cpu set mutated on failed create: before=%v after=%v", before, after)
	}
}

// Scenario 4: destroy with guest consent.
func TestDestroyWithGuestConsent(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	id, err := hv.CreateCell(ctx, 0, guestAConfig())
	if err != nil {
		t.Fatalf("CreateCell: %v", err)
	}
	cell, _ := hv.Registry.Lookup(id)
	awaitShutdownRequest(cell.Comm(), func() {
		cell.Comm().PostReply(cellcore.ReplyShutdownOK)
	})

	if err := hv.DestroyCell(ctx, 0, id); err != nil {
		t.Fatalf("DestroyCell: %v", err)
	}

	if got := hv.Root().CPUs.Iter(); !intsEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("root cpu set after destroy = %v, want [0 1 2 3]", got)
	}
	if hv.Registry.Count() != 1 {
		t.Fatalf("registry count after destroy = %d, want 1", hv.Registry.Count())
	}
}

// Scenario 5: destroy refused.
func TestDestroyRefused(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	id, err := hv.CreateCell(ctx, 0, guestAConfig())
	if err != nil {
		t.Fatalf("CreateCell: %v", err)
	}
	cell, _ := hv.Registry.Lookup(id)
	awaitShutdownRequest(cell.Comm(), func() {
		cell.Comm().PostReply(cellcore.ReplyShutdownDenied)
	})

	if err := hv.DestroyCell(ctx, 0, id); cellcore.KindOf(err) != cellcore.ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if _, ok := hv.Registry.Lookup(id); !ok {
		t.Fatal("cell should remain live after refused destroy")
	}
}

// Scenario 6: panic propagation.
func TestPanicPropagation(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	id, err := hv.CreateCell(ctx, 0, guestAConfig())
	if err != nil {
		t.Fatalf("CreateCell: %v", err)
	}
	cell, _ := hv.Registry.Lookup(id)

	hv.PanicHalt(2)
	if cell.State() != cellcore.StateRunning {
		t.Fatalf("cell state after first cpu halt = %v, want running", cell.State())
	}

	hv.PanicHalt(3)
	if cell.State() != cellcore.StateFailed {
		t.Fatalf("cell state after second cpu halt = %v, want failed", cell.State())
	}
	if hv.CPUState(2) != cellcore.StateFailed || hv.CPUState(3) != cellcore.StateFailed {
		t.Fatal("expected both cpus to report failed state")
	}
}

func TestCPUGetStatePermission(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	if _, err := hv.CreateCell(ctx, 0, guestAConfig()); err != nil {
		t.Fatalf("CreateCell: %v", err)
	}

	// cpu 2 now belongs to guestA; it may query itself...
	if _, err := hv.CPUGetState(2, 2); err != nil {
		t.Fatalf("expected cpu 2 to query its own state, got %v", err)
	}
	// ...but not cpu 0, which belongs to the root cell.
	if _, err := hv.CPUGetState(2, 0); cellcore.KindOf(err) != cellcore.ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	// the root initiator may query any valid cpu.
	if _, err := hv.CPUGetState(0, 2); err != nil {
		t.Fatalf("expected root initiator to query any cpu, got %v", err)
	}
	// an unknown cpu id is rejected regardless of initiator.
	if _, err := hv.CPUGetState(0, 999); cellcore.KindOf(err) != cellcore.ErrInvalid {
		t.Fatalf("expected ErrInvalid for unknown cpu id, got %v", err)
	}
}

func TestGetCellStateUnknownID(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	if _, err := hv.GetCellState(0, 99); cellcore.KindOf(err) != cellcore.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShutdownHandshake(t *testing.T) {
	hv, _ := newTestHypervisor(t)
	ctx := context.Background()

	if _, err := hv.CreateCell(ctx, 0, func() cellcore.CellConfig {
		cfg := guestAConfig()
		cfg.Flags = cellcore.FlagUnmanagedExit
		return cfg
	}()); err != nil {
		t.Fatalf("CreateCell: %v", err)
	}

	if err := hv.Shutdown(ctx, 0); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := hv.Shutdown(ctx, 1); err != nil {
		t.Fatalf("Shutdown from second root cpu: %v", err)
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
