// Package irq implements the trap dispatcher: the single entry point into
// kernel logic. Hardware interrupts stay disabled for as long as a handler
// runs, so everything the dispatcher touches is effectively single-threaded.
package irq

import (
	"fmt"

	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/hal"
	"github.com/KingOth/systems-programming/kernel/kfmt"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
	"github.com/KingOth/systems-programming/kernel/proc"
	"github.com/KingOth/systems-programming/kernel/sched"
)

// InvariantChecker audits global kernel state. A non-nil result is fatal.
type InvariantChecker interface {
	Check() *kernel.Error
}

// Dispatcher decodes trap numbers and executes the matching syscall or fault
// handler.
type Dispatcher struct {
	procs   *proc.Table
	vm      *vmm.Manager
	sched   *sched.Scheduler
	checker InvariantChecker
	ticks   uint64

	// activateFn, faultAddrFn and panicFn are swapped by tests.
	activateFn  func(mm.Frame)
	faultAddrFn func() uintptr
	panicFn     func(interface{})
}

// New returns a Dispatcher over the given tables and scheduler.
func New(procs *proc.Table, vm *vmm.Manager, s *sched.Scheduler, checker InvariantChecker) *Dispatcher {
	return &Dispatcher{
		procs:       procs,
		vm:          vm,
		sched:       s,
		checker:     checker,
		activateFn:  hal.ActivateAddressSpace,
		faultAddrFn: hal.FaultAddress,
		panicFn:     kfmt.Panic,
	}
}

// Ticks returns the number of timer interrupts seen so far. The memory
// visualizer uses it to drive its animation cadence.
func (d *Dispatcher) Ticks() uint64 {
	return d.ticks
}

// Interrupt handles one trap. The supplied register snapshot is saved into
// the current process descriptor and the kernel's own address space is made
// active, so handler code runs with kernel mappings no matter which process
// trapped. After handling, the current process resumes directly if it is
// still runnable; otherwise the scheduler picks somebody else. The diverging
// paths (yield, timer, scheduling after a fault) never return here.
func (d *Dispatcher) Interrupt(regs *cpu.Regs) {
	cur := d.procs.Current()
	cur.Regs = *regs
	d.activateFn(d.procs.KernelSpace().Root())

	if err := d.checker.Check(); err != nil {
		d.panicFn(err)
		return
	}

	switch regs.IntNo {
	case cpu.TrapPanic:
		// The panic argument is a pointer to a user string, read through
		// the kernel's identity mapping.
		msg := d.procs.KernelSpace().ReadString(uintptr(cur.Regs.EAX))
		d.panicFn(&kernel.Error{Module: "user", Message: msg})
		return

	case cpu.TrapGetPID:
		cur.Regs.EAX = uint32(cur.PID)

	case cpu.TrapYield:
		d.sched.Schedule()
		return

	case cpu.TrapPageAlloc:
		addr := uintptr(cur.Regs.EAX)
		if err := d.vm.GrantPage(cur.Space, addr, mm.Owner(cur.PID)); err != nil {
			cur.Regs.EAX = cpu.SysFailure
		} else {
			cur.Regs.EAX = 0
		}

	case cpu.TrapFork:
		if childPID, err := d.procs.Fork(); err != nil {
			cur.Regs.EAX = cpu.SysFailure
		} else {
			cur.Regs.EAX = uint32(childPID)
		}

	case cpu.TrapTimer:
		d.ticks++
		d.sched.Schedule()
		return

	case cpu.TrapPageFault:
		d.pageFault(cur)

	default:
		d.panicFn(&kernel.Error{
			Module:  "irq",
			Message: fmt.Sprintf("unexpected interrupt %d", regs.IntNo),
		})
		return
	}

	if cur.State == proc.Runnable {
		d.sched.Run(cur)
	} else {
		d.sched.Schedule()
	}
}

// pageFault analyzes the faulting address and the fault's write/present
// bits. A fault raised in kernel mode is a kernel bug and halts the system;
// a user-mode fault breaks only the offending process.
func (d *Dispatcher) pageFault(cur *proc.Process) {
	addr := d.faultAddrFn()

	operation := "read"
	if cur.Regs.Err&cpu.PFErrWrite != 0 {
		operation = "write"
	}
	problem := "missing page"
	if cur.Regs.Err&cpu.PFErrPresent != 0 {
		problem = "protection problem"
	}

	if cur.Regs.Err&cpu.PFErrUser == 0 {
		d.panicFn(&kernel.Error{
			Module:  "irq",
			Message: fmt.Sprintf("kernel page fault for %#08x (%s %s, eip=%#x)", addr, operation, problem, cur.Regs.EIP),
		})
		return
	}

	kfmt.Printf("Process %d page fault for %#08x (%s %s, eip=%#x)!\n",
		cur.PID, addr, operation, problem, cur.Regs.EIP)
	cur.State = proc.Broken
}
