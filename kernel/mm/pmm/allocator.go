// Package pmm implements the physical frame allocator. It owns one PageInfo
// record per physical frame and hands out frames first-fit in increasing
// frame-number order. There is no free path: once a frame is allocated it
// stays with its owner for the lifetime of the kernel, so callers must treat
// exhaustion as a real operating condition.
package pmm

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/mm"
)

var (
	errOutOfMemory      = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errFrameUnavailable = &kernel.Error{Module: "pmm", Message: "frame is reserved or already allocated"}
)

// PageInfo keeps track of the allocation state of one physical frame.
type PageInfo struct {
	// Owner indicates who holds the frame. A frame with RefCount == 0
	// always has OwnerFree.
	Owner mm.Owner

	// RefCount is the number of address spaces referencing the frame.
	// A value above 1 means the frame is shared and must never be
	// owner-mutated in place.
	RefCount int32

	// Shared is set when the frame's refcount was raised by sharing a
	// data page across a fork. The invariant checker treats such frames
	// differently from privately owned ones.
	Shared bool
}

// Allocator tracks the allocation state of every physical frame.
type Allocator struct {
	pages []PageInfo
}

// NewAllocator returns an Allocator with the boot-time frame ownership
// already recorded: the zero frame and the I/O hole are reserved, the kernel
// image and the page below the kernel stack top belong to the kernel, and
// every other frame is free.
func NewAllocator() *Allocator {
	alloc := &Allocator{pages: make([]PageInfo, mm.NumFrames)}

	for addr := uintptr(0); addr < mm.MemSizePhysical; addr += mm.PageSize {
		var owner mm.Owner
		switch {
		case addressIsReserved(addr):
			owner = mm.OwnerReserved
		case (addr >= mm.KernelStartAddr && addr < mm.KernelEndAddr) || addr == mm.KernelStackTop-mm.PageSize:
			owner = mm.OwnerKernel
		default:
			owner = mm.OwnerFree
		}

		info := &alloc.pages[mm.FrameFromAddress(addr)]
		info.Owner = owner
		if owner != mm.OwnerFree {
			info.RefCount = 1
		}
	}

	return alloc
}

// addressIsReserved reports whether the physical address falls into memory
// the kernel must never hand out: the zero page and the memory-mapped I/O
// hole.
func addressIsReserved(addr uintptr) bool {
	return addr == 0 || (addr >= mm.ReservedIOStart && addr < mm.ReservedIOEnd)
}

// AllocFrame reserves the first free frame for the given owner and returns
// it. If no free frame exists it fails without retrying or compacting;
// exactly one PageInfo record is mutated on success and none on failure.
func (alloc *Allocator) AllocFrame(owner mm.Owner) (mm.Frame, *kernel.Error) {
	for frame := mm.Frame(0); frame < mm.Frame(mm.NumFrames); frame++ {
		if alloc.pages[frame].RefCount == 0 {
			if err := alloc.AllocFrameAt(frame.Address(), owner); err != nil {
				return mm.InvalidFrame, err
			}
			return frame, nil
		}
	}

	return mm.InvalidFrame, errOutOfMemory
}

// AllocFrameAt reserves the frame at the given physical address for owner.
// It fails without mutating anything if the address is not page-aligned, is
// out of range, or the target frame is already referenced.
func (alloc *Allocator) AllocFrameAt(addr uintptr, owner mm.Owner) *kernel.Error {
	if addr&(mm.PageSize-1) != 0 || addr >= mm.MemSizePhysical {
		return errFrameUnavailable
	}

	info := &alloc.pages[mm.FrameFromAddress(addr)]
	if info.RefCount != 0 {
		return errFrameUnavailable
	}

	info.Owner = owner
	info.RefCount = 1
	return nil
}

// Share raises the refcount of a frame that a second address space was just
// given a mapping to. The frame is recorded as fork-shared.
func (alloc *Allocator) Share(frame mm.Frame) {
	alloc.pages[frame].RefCount++
	alloc.pages[frame].Shared = true
}

// Retain raises the refcount of a frame without marking it as shared data.
// It is used when a process falls back to aliasing the kernel's page table.
func (alloc *Allocator) Retain(frame mm.Frame) {
	alloc.pages[frame].RefCount++
}

// Info returns a copy of the PageInfo record for the given frame.
func (alloc *Allocator) Info(frame mm.Frame) PageInfo {
	return alloc.pages[frame]
}

// Each invokes fn for every physical frame in increasing frame order. It is
// the read-only view consumed by the memory visualizer.
func (alloc *Allocator) Each(fn func(mm.Frame, PageInfo)) {
	for frame := range alloc.pages {
		fn(mm.Frame(frame), alloc.pages[frame])
	}
}
