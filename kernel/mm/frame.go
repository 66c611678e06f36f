// Package mm provides the page-frame arithmetic and the simulated physical
// memory arena that all memory-management subsystems operate on.
package mm

import "math"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators and address-space
	// lookups when no frame backs the request.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address where this Frame begins.
func (f Frame) Address() uintptr {
	return uintptr(f) << PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down to the frame
// that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address where this Page begins.
func (p Page) Address() uintptr {
	return uintptr(p) << PageShift
}

// PageFromAddress returns the Page that contains the given virtual address.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(virtAddr >> PageShift)
}

// Owner identifies who holds a physical frame: the kernel, the reserved
// memory region, nobody (the frame is free), or a process. Process owners are
// positive values equal to the owning process id.
type Owner int16

const (
	// OwnerFree marks a frame that belongs to nobody.
	OwnerFree Owner = 0

	// OwnerReserved marks reserved memory such as the I/O hole.
	OwnerReserved Owner = -1

	// OwnerKernel marks memory used by the kernel itself.
	OwnerKernel Owner = -2
)

// IsProcess returns true if the owner is a process id.
func (o Owner) IsProcess() bool {
	return o > 0
}
