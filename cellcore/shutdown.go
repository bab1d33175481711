package cellcore

import (
	"context"

	"github.com/minipart/hvcore/hvlog"
)

// Shutdown implements the SHUTDOWN hypercall: a two-phase all-CPU handshake
// under a global spinlock (spec §4.5.4). The first CPU to arrive with a
// clear shutdown_state drives the actual teardown of every non-root cell
// and propagates the outcome to every root-cell CPU; every arrival
// (including the first) then reads its own slot and clears it before
// releasing the lock.
func (h *Hypervisor) Shutdown(ctx context.Context, initiatorCPU int) error {
	p := h.PerCPU.Get(initiatorCPU)
	if p.Cell() == nil || !p.Cell().IsRoot() {
		return newErr(ErrPermissionDenied, "initiator cpu %d is not in the root cell", initiatorCPU)
	}

	h.shutdownMu.Lock()
	defer h.shutdownMu.Unlock()

	if p.shutdownState == shutdownNone {
		h.driveShutdown(ctx)
	}

	state := p.shutdownState
	p.shutdownState = shutdownNone

	if state == shutdownStarted {
		hvlog.Info("cpu %d released from shutdown", initiatorCPU)
		return nil
	}
	return newErr(ErrPermissionDenied, "shutdown refused by a cell")
}

// driveShutdown runs the first-arriver path: checks every non-root cell's
// cooperative shutdown consent and, only if every one consents, tears all
// non-root cells down; a single refusal leaves every cell running. It then
// propagates the chosen outcome to every root-cell CPU's shutdown_state.
// Caller must hold shutdownMu.
func (h *Hypervisor) driveShutdown(ctx context.Context) {
	chosen := shutdownStarted

	// Every non-root cell's cooperative consent check is independent of the
	// others, so fan it out the way the teacher's vmlist.go apply() does
	// rather than polling each cell's comm region in series.
	consentErrs := h.Registry.apply(func(cell *Cell) error {
		if cell.IsRoot() {
			return nil
		}
		if !ShutdownOK(cell) {
			return newErr(ErrPermissionDenied, "cell %q refused shutdown", cell.Name())
		}
		return nil
	})
	if len(consentErrs) > 0 {
		chosen = shutdownDenied
	}

	if chosen == shutdownStarted {
		for _, cell := range h.Registry.All() {
			if cell.IsRoot() {
				continue
			}
			if err := SuspendCells(ctx, h.Arch, cell, -1); err != nil {
				hvlog.Warn("suspend cell %q during shutdown failed: %v", cell.Name(), err)
				continue
			}
			for _, cpuID := range cell.CPUs.Iter() {
				if err := h.Arch.ShutdownCPU(cpuID); err != nil {
					hvlog.Warn("shutdown cpu %d of cell %q failed: %v", cpuID, cell.Name(), err)
				}
			}
		}
		if err := h.Arch.ArchShutdown(); err != nil {
			hvlog.Warn("arch shutdown of root failed: %v", err)
		}
	}

	for _, cpuID := range h.root.CPUs.Iter() {
		h.PerCPU.Get(cpuID).shutdownState = chosen
	}
}
