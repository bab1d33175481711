package cellcore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SuspendCells quiesces every CPU owned by cell (except exceptCPU, the
// caller's own CPU, if it belongs to the set) before a lifecycle operation
// mutates shared state, and reports the first failure. Grounded on
// cell_suspend() in the original control.c; the all-CPUs-in-parallel fan-out
// follows the teacher's apply()/errgroup-style concurrency (minimega's
// apply helper, golang.org/x/sync/errgroup as used across the retrieved
// pack for bounded parallel fan-out with first-error propagation).
func SuspendCells(ctx context.Context, arch SuspendResume, cell *Cell, exceptCPU int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, cpu := range cell.CPUs.IterExcept(exceptCPU) {
		cpu := cpu
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return arch.SuspendCPU(cpu)
		})
	}
	if err := g.Wait(); err != nil {
		return newErr(ErrBusy, "suspend cell %q: %v", cell.Name(), err)
	}
	return nil
}

// ResumeCells releases every CPU owned by cell (except exceptCPU) that a
// prior SuspendCells quiesced. Mirrors cell_resume() in control.c: resume is
// best-effort and does not abort early on a single CPU's failure, since by
// this point the critical section it guards has already completed.
func ResumeCells(arch SuspendResume, cell *Cell, exceptCPU int) []error {
	var errs []error
	for _, cpu := range cell.CPUs.IterExcept(exceptCPU) {
		if err := arch.ResumeCPU(cpu); err != nil {
			errs = append(errs, newErr(ErrBusy, "resume cpu %d of cell %q: %v", cpu, cell.Name(), err))
		}
	}
	return errs
}
