// Package audit implements the read-only invariant checker that runs after
// every interrupt. It recomputes the expected reference counts from the
// process table and walks every address space's tables; any mismatch means
// the allocator or the address-space manager has already corrupted global
// state, so a violation is fatal for the kernel.
package audit

import (
	"fmt"

	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/pmm"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
	"github.com/KingOth/systems-programming/kernel/proc"
)

// Checker audits the frame records, page tables and process table. It only
// ever reads; the first violation found is returned as an error that callers
// must treat as fatal.
type Checker struct {
	Procs *proc.Table
	Alloc *pmm.Allocator
}

// Check verifies all cross-table invariants and returns the first violation.
func (c *Checker) Check() *kernel.Error {
	if got := c.Procs.Get(0).State; got != proc.Free {
		return violation("process 0 must never be used; found state %s", got)
	}

	if err := c.checkFrameRecords(); err != nil {
		return err
	}

	kernelSpace := c.Procs.KernelSpace()

	// The kernel table's refcount is 1 plus the number of non-Free
	// processes that run on the kernel's page tables instead of their own.
	expectedKernelRefs := int32(1)
	c.Procs.Each(func(p proc.Process) {
		if p.State != proc.Free && p.Space.Equal(kernelSpace) {
			expectedKernelRefs++
		}
	})

	for pid := -1; pid < c.Procs.Capacity(); pid++ {
		if pid >= 0 && c.Procs.Get(proc.PID(pid)).State == proc.Free {
			continue
		}

		var (
			space       vmm.AddressSpace
			expOwner    mm.Owner
			expRefCount int32
		)
		if pid < 0 || c.Procs.Get(proc.PID(pid)).Space.Equal(kernelSpace) {
			space = kernelSpace
			expOwner = mm.OwnerKernel
			expRefCount = expectedKernelRefs
		} else {
			space = c.Procs.Get(proc.PID(pid)).Space
			expOwner = mm.Owner(pid)
			expRefCount = 1
		}

		if err := c.checkTable(space, expOwner, expRefCount); err != nil {
			return err
		}

		if expOwner.IsProcess() {
			if err := c.checkLeaves(space, expOwner); err != nil {
				return err
			}
		}
	}

	return c.checkOwnersAlive()
}

// checkFrameRecords verifies the basic consistency of every frame record:
// a frame is referenced if and only if it has an owner.
func (c *Checker) checkFrameRecords() *kernel.Error {
	var err *kernel.Error
	c.Alloc.Each(func(frame mm.Frame, info pmm.PageInfo) {
		if err != nil {
			return
		}
		if (info.RefCount == 0) != (info.Owner == mm.OwnerFree) {
			err = violation("frame %d: refcount %d is inconsistent with owner %d", frame, info.RefCount, info.Owner)
		}
	})
	return err
}

// checkTable verifies the frame records backing one address space's tables:
// the level-1 table must have the expected owner and refcount, and every
// level-2 table it points to must belong to the same owner with refcount 1.
func (c *Checker) checkTable(space vmm.AddressSpace, expOwner mm.Owner, expRefCount int32) *kernel.Error {
	rootInfo := c.Alloc.Info(space.Root())
	if rootInfo.Owner != expOwner {
		return violation("level-1 table frame %d: expected owner %d; found %d", space.Root(), expOwner, rootInfo.Owner)
	}
	if rootInfo.RefCount != expRefCount {
		return violation("level-1 table frame %d: expected refcount %d; found %d", space.Root(), expRefCount, rootInfo.RefCount)
	}

	l1 := space.L1()
	for index := 0; index < vmm.TableEntries; index++ {
		entry := l1.Entry(index)
		if !entry.HasFlags(vmm.FlagPresent) {
			continue
		}

		info := c.Alloc.Info(entry.Frame())
		if info.Owner != expOwner {
			return violation("level-2 table frame %d: expected owner %d; found %d", entry.Frame(), expOwner, info.Owner)
		}
		if info.RefCount != 1 {
			return violation("level-2 table frame %d: expected refcount 1; found %d", entry.Frame(), info.RefCount)
		}
	}

	return nil
}

// checkLeaves verifies the process-region leaf mappings of a process-owned
// address space. A process-owned leaf frame is either private (owned by this
// process, refcount exactly 1) or fork-shared (refcount above 1).
func (c *Checker) checkLeaves(space vmm.AddressSpace, owner mm.Owner) *kernel.Error {
	for va := mm.ProcStartAddr; va < mm.MemSizeVirtual; va += mm.PageSize {
		mapping := space.Lookup(va)
		if !mapping.Mapped() {
			continue
		}

		info := c.Alloc.Info(mapping.Frame)
		if !info.Owner.IsProcess() {
			continue
		}

		if info.Shared {
			if info.RefCount < 2 {
				return violation("fork-shared frame %d mapped at %#x: expected refcount above 1; found %d", mapping.Frame, va, info.RefCount)
			}
			continue
		}

		if info.Owner != owner {
			return violation("private frame %d mapped at %#x: expected owner %d; found %d", mapping.Frame, va, owner, info.Owner)
		}
		if info.RefCount != 1 {
			return violation("private frame %d mapped at %#x: expected refcount 1; found %d", mapping.Frame, va, info.RefCount)
		}
	}

	return nil
}

// checkOwnersAlive verifies that every referenced frame with a process owner
// refers to a process slot that exists and is not Free.
func (c *Checker) checkOwnersAlive() *kernel.Error {
	var err *kernel.Error
	c.Alloc.Each(func(frame mm.Frame, info pmm.PageInfo) {
		if err != nil || info.RefCount <= 0 || !info.Owner.IsProcess() {
			return
		}
		if int(info.Owner) >= c.Procs.Capacity() {
			err = violation("frame %d is owned by process %d, which is outside the table", frame, info.Owner)
			return
		}
		if c.Procs.Get(proc.PID(info.Owner)).State == proc.Free {
			err = violation("frame %d is owned by process %d, which is free", frame, info.Owner)
		}
	})
	return err
}

func violation(format string, args ...interface{}) *kernel.Error {
	return &kernel.Error{Module: "audit", Message: fmt.Sprintf(format, args...)}
}
