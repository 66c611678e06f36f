package vmm

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/mm"
)

var errNoL2Table = &kernel.Error{Module: "vmm", Message: "no level-2 table covers the virtual address"}

// AddressSpace is a process's (or the kernel's) two-level page-table
// structure, identified by the frame of its level-1 table. Two AddressSpace
// values with the same root frame describe the same address space; a process
// whose private tables could not be allocated aliases the kernel's space.
type AddressSpace struct {
	mem  *mm.Memory
	root mm.Frame
}

// SpaceFromRoot returns the AddressSpace rooted at the given level-1 table
// frame.
func SpaceFromRoot(mem *mm.Memory, root mm.Frame) AddressSpace {
	return AddressSpace{mem: mem, root: root}
}

// Root returns the frame of this space's level-1 table.
func (s AddressSpace) Root() mm.Frame {
	return s.root
}

// L1 returns the typed view over this space's level-1 table.
func (s AddressSpace) L1() L1Table {
	return L1Table{view: tableView{mem: s.mem, frame: s.root}}
}

// Equal reports whether two AddressSpace values describe the same set of
// page tables.
func (s AddressSpace) Equal(other AddressSpace) bool {
	return s.root == other.root
}

// Mapping describes the result of translating one virtual address.
type Mapping struct {
	// Frame backing the page; mm.InvalidFrame when the page is unmapped.
	Frame mm.Frame

	// Addr is the physical address the virtual address translates to.
	Addr uintptr

	// Perm holds the permission flags of the leaf entry.
	Perm Flag
}

// Mapped returns true if the lookup found a present mapping.
func (m Mapping) Mapped() bool {
	return m.Frame.Valid()
}

// MapRange maps the virtual address range [virtAddr, virtAddr+length) to the
// physical range starting at physAddr with the given permission flags,
// overwriting any entries already covering the range. Addresses and length
// must be page-aligned. MapRange is not idempotent with respect to frame
// refcounts: callers map each freshly claimed frame exactly once and account
// for sharing through the frame allocator.
//
// The level-2 tables covering the range must already exist; an absent table
// is a kernel bug, not a user-visible condition.
func (s AddressSpace) MapRange(virtAddr, physAddr, length uintptr, flags Flag) *kernel.Error {
	l1 := s.L1()
	for off := uintptr(0); off < length; off += mm.PageSize {
		va := virtAddr + off

		l1Entry := l1.Entry(l1Index(va))
		if !l1Entry.HasFlags(FlagPresent) {
			return errNoL2Table
		}

		l2 := l1.L2(l1Index(va))
		l2.SetEntry(l2Index(va), NewEntry(mm.FrameFromAddress(physAddr+off), flags))
	}

	return nil
}

// Lookup translates a virtual address through this space's tables. The
// returned mapping has Frame == mm.InvalidFrame when no present leaf entry
// covers the address.
func (s AddressSpace) Lookup(virtAddr uintptr) Mapping {
	unmapped := Mapping{Frame: mm.InvalidFrame}

	l1Entry := s.L1().Entry(l1Index(virtAddr))
	if !l1Entry.HasFlags(FlagPresent) {
		return unmapped
	}

	leaf := s.L1().L2(l1Index(virtAddr)).Entry(l2Index(virtAddr))
	if !leaf.HasFlags(FlagPresent) {
		return unmapped
	}

	return Mapping{
		Frame: leaf.Frame(),
		Addr:  leaf.Frame().Address() + (virtAddr & (mm.PageSize - 1)),
		Perm:  leaf.Flags(),
	}
}

// ReadString reads a NUL-terminated string starting at the given virtual
// address, translating page by page through this space. Reading stops at the
// terminator or at the first unmapped page.
func (s AddressSpace) ReadString(virtAddr uintptr) string {
	var out []byte
	for {
		mapping := s.Lookup(virtAddr)
		if !mapping.Mapped() {
			return string(out)
		}

		b := s.mem.FrameBytes(mapping.Frame)[virtAddr&(mm.PageSize-1)]
		if b == 0 {
			return string(out)
		}

		out = append(out, b)
		virtAddr++
	}
}
