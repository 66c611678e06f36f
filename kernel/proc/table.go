package proc

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
)

var errNoFreeSlot = &kernel.Error{Module: "proc", Message: "process table is full"}

// LoadImageFn loads the program image with the given id into a process's
// mapped memory. It is supplied by the program-loading collaborator.
type LoadImageFn func(p *Process, program int) *kernel.Error

// Table is the process descriptor table. All mutation happens from
// kernel-mode handler context, so no locking discipline is required.
type Table struct {
	procs       []Process
	mgr         *vmm.Manager
	kernelSpace vmm.AddressSpace
	loadImage   LoadImageFn
	current     PID
}

// NewTable returns a process table with the given capacity. Slot 0 is
// reserved and stays Free forever.
func NewTable(capacity int, mgr *vmm.Manager, kernelSpace vmm.AddressSpace, loadImage LoadImageFn) *Table {
	t := &Table{
		procs:       make([]Process, capacity),
		mgr:         mgr,
		kernelSpace: kernelSpace,
		loadImage:   loadImage,
	}

	for pid := range t.procs {
		t.procs[pid].PID = PID(pid)
		t.procs[pid].State = Free
	}

	return t
}

// Capacity returns the number of descriptor slots, including reserved
// slot 0.
func (t *Table) Capacity() int {
	return len(t.procs)
}

// Get returns the descriptor for the given pid.
func (t *Table) Get(pid PID) *Process {
	return &t.procs[pid]
}

// Current returns the descriptor of the process whose context is live.
func (t *Table) Current() *Process {
	return &t.procs[t.current]
}

// CurrentPID returns the pid of the live process.
func (t *Table) CurrentPID() PID {
	return t.current
}

// SetCurrent records pid as the live process. It is called by the scheduler
// right before control is transferred.
func (t *Table) SetCurrent(pid PID) {
	t.current = pid
}

// KernelSpace returns the kernel's address space.
func (t *Table) KernelSpace() vmm.AddressSpace {
	return t.kernelSpace
}

// Each invokes fn with a copy of every descriptor in pid order. It is the
// read-only view consumed by the memory visualizer.
func (t *Table) Each(fn func(Process)) {
	for pid := range t.procs {
		fn(t.procs[pid])
	}
}

// Setup creates the process with the given pid from a program image and
// leaves it Runnable. The process receives a private copy of the kernel's
// page tables; if cloning fails it runs on the kernel's own tables, whose
// refcount is raised accordingly. With private tables, everything from the
// process region up is protected from user access and only the pid's own
// code/data window is opened before the image is loaded. The initial stack
// is one page at the very top of virtual memory.
func (t *Table) Setup(pid PID, program int) *kernel.Error {
	p := &t.procs[pid]
	p.Regs = cpu.Regs{}

	space, err := t.mgr.Clone(t.kernelSpace, mm.Owner(pid))
	if err != nil {
		p.Space = t.kernelSpace
		t.mgr.Alloc.Retain(t.kernelSpace.Root())
	} else {
		p.Space = space

		// Processes cannot touch anything from the process region up
		// until their own window is opened.
		if err := p.Space.MapRange(mm.ProcStartAddr, mm.ProcStartAddr, mm.MemSizePhysical-mm.ProcStartAddr, 0); err != nil {
			return err
		}

		imageBase := mm.ProcStartAddr + uintptr(pid-1)*mm.ProcImageSize
		if err := p.Space.MapRange(imageBase, imageBase, 2*mm.PageSize, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagUser); err != nil {
			return err
		}
	}

	p.State = Runnable

	if err := t.loadImage(p, program); err != nil {
		return err
	}

	p.Regs.ESP = uint32(mm.MemSizeVirtual)
	stackPage := mm.MemSizeVirtual - mm.PageSize
	return t.mgr.GrantPage(p.Space, stackPage, mm.Owner(pid))
}

// Fork duplicates the current process into the first Free slot. The scan
// bound is the table's actual capacity, never a constant. The child gets its
// own page tables; every page in the process region that the parent owns
// with write permission is copied into a fresh child-owned frame, while
// owner pages the parent cannot write are shared with a refcount bump.
// Pages the parent does not own are not propagated. The child's saved
// context is the parent's with the return-value register cleared; the
// parent's return value is written by the fork syscall handler.
//
// On failure the error is surfaced to the requesting syscall. If no frame
// can be allocated mid-copy the half-built child is marked Broken: its slot
// and frames stay occupied, since no reclaim path exists.
func (t *Table) Fork() (PID, *kernel.Error) {
	parent := t.Current()

	var child *Process
	for pid := PID(1); int(pid) < t.Capacity(); pid++ {
		if t.procs[pid].State == Free {
			child = &t.procs[pid]
			break
		}
	}
	if child == nil {
		return 0, errNoFreeSlot
	}

	space, err := t.mgr.Clone(parent.Space, mm.Owner(child.PID))
	if err != nil {
		return 0, err
	}

	child.Space = space
	child.State = Runnable

	for va := mm.ProcStartAddr; va < mm.MemSizeVirtual; va += mm.PageSize {
		mapping := parent.Space.Lookup(va)
		if !mapping.Mapped() {
			continue
		}

		if t.mgr.Alloc.Info(mapping.Frame).Owner != mm.Owner(parent.PID) {
			continue
		}

		if mapping.Perm&vmm.FlagWritable != 0 {
			// Private copy-on-fork, not copy-on-write.
			frame, err := t.mgr.Alloc.AllocFrame(mm.Owner(child.PID))
			if err != nil {
				child.State = Broken
				return 0, err
			}
			t.mgr.Mem.CopyFrame(frame, mapping.Frame)
			if err := child.Space.MapRange(va, frame.Address(), mm.PageSize, mapping.Perm); err != nil {
				child.State = Broken
				return 0, err
			}
		} else {
			if err := child.Space.MapRange(va, mapping.Frame.Address(), mm.PageSize, mapping.Perm); err != nil {
				child.State = Broken
				return 0, err
			}
			t.mgr.Alloc.Share(mapping.Frame)
		}
	}

	child.Regs = parent.Regs
	child.Regs.EAX = 0
	return child.PID, nil
}
