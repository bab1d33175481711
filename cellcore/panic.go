package cellcore

import "github.com/minipart/hvcore/hvlog"

// PanicStop records that cpu has been stopped, with no implication that it
// or its cell has failed. Mirrors panic_stop() in control.c, which sets only
// cpu_stopped -- panic_halt() is what marks a CPU failed (the arch-specific
// halt-and-never-return tail is out of scope; this core only owns the
// bookkeeping).
func (h *Hypervisor) PanicStop(cpu int) {
	p := h.PerCPU.Get(cpu)
	h.PerCPU.mu.Lock()
	p.stopped = true
	h.PerCPU.mu.Unlock()
	hvlog.Error("cpu %d stopped", cpu)
}

// PanicHalt marks cpu failed and, if every CPU owned by its cell has now
// failed, transitions the cell itself to StateFailed. Mirrors panic_halt()
// in control.c.
func (h *Hypervisor) PanicHalt(cpu int) {
	p := h.PerCPU.Get(cpu)
	h.PerCPU.mu.Lock()
	p.failed = true
	cell := p.cell
	h.PerCPU.mu.Unlock()

	hvlog.Error("cpu %d failed", cpu)

	if cell == nil {
		return
	}

	allFailed := true
	for _, id := range cell.CPUs.Iter() {
		if !h.PerCPU.Get(id).Failed() {
			allFailed = false
			break
		}
	}
	if allFailed {
		cell.state = StateFailed
		if cell.comm != nil {
			cell.comm.SetCellState(CommStateFailed)
		}
		hvlog.Error("cell %q has no surviving cpus, marking failed", cell.Name())
	}
}

// CPUState reports a CPU's observable state for the CPU_GET_STATE
// hypercall (spec §6): RUNNING unless panic_halt has marked it failed.
func (h *Hypervisor) CPUState(cpu int) State {
	if h.PerCPU.Get(cpu).Failed() {
		return StateFailed
	}
	return StateRunning
}
