// Package sched implements the round-robin scheduler. Transferring control
// to a process is the single primitive by which any process ever begins or
// resumes execution.
package sched

import (
	"fmt"

	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/hal"
	"github.com/KingOth/systems-programming/kernel/kfmt"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/proc"
)

// Scheduler selects the next runnable process and hands control to it.
type Scheduler struct {
	procs *proc.Table

	// activateFn, resumeFn, idleFn and panicFn are swapped by tests.
	activateFn func(mm.Frame)
	resumeFn   func(*cpu.Regs)
	idleFn     func()
	panicFn    func(interface{})
}

// New returns a Scheduler over the given process table, wired to the
// platform's address-space and context-restore primitives.
func New(procs *proc.Table) *Scheduler {
	return &Scheduler{
		procs:      procs,
		activateFn: hal.ActivateAddressSpace,
		resumeFn:   func(regs *cpu.Regs) { hal.ResumeContext(regs) },
		idleFn:     func() {},
		panicFn:    kfmt.Panic,
	}
}

// Next returns the pid of the first Runnable process found scanning forward
// (wrapping) from the slot after `from`. It reports false when a full scan of
// the table finds nothing runnable.
func (s *Scheduler) Next(from proc.PID) (proc.PID, bool) {
	capacity := proc.PID(s.procs.Capacity())

	pid := from
	for i := proc.PID(0); i < capacity; i++ {
		pid = (pid + 1) % capacity
		if s.procs.Get(pid).State == proc.Runnable {
			return pid, true
		}
	}

	return 0, false
}

// Schedule picks the next runnable process starting after the current one
// and transfers control to it. If no process is runnable the kernel is
// halted: Schedule spins, invoking the idle hook on every empty scan.
// Schedule never returns.
func (s *Scheduler) Schedule() {
	for {
		if pid, ok := s.Next(s.procs.CurrentPID()); ok {
			s.Run(s.procs.Get(pid))
		}
		s.idleFn()
	}
}

// Run transfers control to p: it records p as the current process,
// activates p's address space and restores p's saved register context.
// Run never returns; the only way back into the kernel is the next trap.
func (s *Scheduler) Run(p *proc.Process) {
	if p.State != proc.Runnable {
		s.panicFn(&kernel.Error{
			Module:  "sched",
			Message: fmt.Sprintf("attempt to run process %d in state %s", p.PID, p.State),
		})
		return
	}

	s.procs.SetCurrent(p.PID)
	s.activateFn(p.Space.Root())
	s.resumeFn(&p.Regs)
}
