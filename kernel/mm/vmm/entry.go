// Package vmm implements the virtual address-space manager: typed views over
// the two-level page tables stored in physical memory, the map and lookup
// primitives, and the address-space clone used by process creation and fork.
package vmm

import "github.com/KingOth/systems-programming/kernel/mm"

// Flag describes the permission bits of a page-table entry.
type Flag uint32

const (
	// FlagPresent marks an entry as backed by a frame.
	FlagPresent Flag = 1 << 0

	// FlagWritable allows writes through the mapping.
	FlagWritable Flag = 1 << 1

	// FlagUser allows user-mode accesses through the mapping.
	FlagUser Flag = 1 << 2

	// flagMask covers all permission bits of an entry.
	flagMask = FlagPresent | FlagWritable | FlagUser
)

// Entry is one page-table entry: a physical frame address in the high bits
// plus permission flags in the low bits. The same layout is used for entries
// of level-1 tables (pointing at level-2 tables) and entries of level-2
// tables (pointing at leaf frames).
type Entry uint32

// NewEntry returns an Entry mapping the given frame with the given flags.
func NewEntry(frame mm.Frame, flags Flag) Entry {
	return Entry(uint32(frame.Address()) | uint32(flags&flagMask))
}

// Frame returns the physical frame this entry points to.
func (e Entry) Frame() mm.Frame {
	return mm.FrameFromAddress(uintptr(e) & ^(mm.PageSize - 1))
}

// Flags returns the permission bits of this entry.
func (e Entry) Flags() Flag {
	return Flag(e) & flagMask
}

// HasFlags returns true if this entry has all the supplied flags set.
func (e Entry) HasFlags(flags Flag) bool {
	return (Flag(e) & flags) == flags
}
