// Package kmain wires the kernel together at boot: physical memory and its
// frame records, the kernel address space, the process table with the
// boot-time process set, the scheduler, the trap dispatcher and the
// invariant checker.
package kmain

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/audit"
	"github.com/KingOth/systems-programming/kernel/hal"
	"github.com/KingOth/systems-programming/kernel/irq"
	"github.com/KingOth/systems-programming/kernel/kfmt"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/pmm"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
	"github.com/KingOth/systems-programming/kernel/proc"
	"github.com/KingOth/systems-programming/kernel/sched"
)

// NProc is the process table capacity, including reserved slot 0.
const NProc = 16

// Kernel holds all kernel state. It is constructed once at boot and passed
// by reference into every component; there are no ambient globals.
type Kernel struct {
	Mem        *mm.Memory
	Alloc      *pmm.Allocator
	VM         *vmm.Manager
	Procs      *proc.Table
	Sched      *sched.Scheduler
	Dispatcher *irq.Dispatcher
	Checker    *audit.Checker
}

// Boot initializes all kernel state and creates the boot-time process set
// selected by the command string: "fork" and "forkexit" run a single
// process with the matching test program, anything else runs the default
// quartet of programs as pids 1 through 4.
func Boot(command string) (*Kernel, *kernel.Error) {
	k := &Kernel{
		Mem:   mm.NewMemory(),
		Alloc: pmm.NewAllocator(),
	}
	k.VM = vmm.NewManager(k.Mem, k.Alloc)

	kernelSpace, err := k.VM.NewSpace(mm.OwnerKernel)
	if err != nil {
		return nil, err
	}

	// Identity-map physical memory, then take the kernel region away from
	// user mode. The console page is the one reserved page processes may
	// write to.
	if err := kernelSpace.MapRange(0, 0, mm.MemSizePhysical, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagUser); err != nil {
		return nil, err
	}
	if err := kernelSpace.MapRange(0, 0, mm.ProcStartAddr, vmm.FlagPresent|vmm.FlagWritable); err != nil {
		return nil, err
	}
	if err := kernelSpace.MapRange(mm.ConsoleAddr, mm.ConsoleAddr, mm.PageSize, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagUser); err != nil {
		return nil, err
	}

	k.Procs = proc.NewTable(NProc, k.VM, kernelSpace, k.loadImage)
	k.Sched = sched.New(k.Procs)
	k.Checker = &audit.Checker{Procs: k.Procs, Alloc: k.Alloc}
	k.Dispatcher = irq.New(k.Procs, k.VM, k.Sched, k.Checker)

	switch command {
	case "fork":
		err = k.Procs.Setup(1, 4)
	case "forkexit":
		err = k.Procs.Setup(1, 5)
	default:
		for pid := proc.PID(1); pid <= 4; pid++ {
			if err = k.Procs.Setup(pid, int(pid-1)); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	hal.ActivateAddressSpace(kernelSpace.Root())
	return k, nil
}

// Start transfers control to the first process. It never returns.
func (k *Kernel) Start() {
	k.Sched.Run(k.Procs.Get(1))
}

// Kmain boots the kernel with the given boot command and starts running.
func Kmain(command string) {
	k, err := Boot(command)
	if err != nil {
		kfmt.Panic(err)
		return
	}

	k.Start()
}
