package vmm

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/pmm"
)

// Manager builds and copies address spaces. It owns no table state itself;
// every table lives in arena frames tracked by the frame allocator.
type Manager struct {
	Mem   *mm.Memory
	Alloc *pmm.Allocator
}

// NewManager returns a Manager operating on the given arena and allocator.
func NewManager(mem *mm.Memory, alloc *pmm.Allocator) *Manager {
	return &Manager{Mem: mem, Alloc: alloc}
}

// NewSpace allocates a fresh, empty address space for the given owner: a
// zeroed level-1 table whose entry zero points at a zeroed level-2 table.
func (m *Manager) NewSpace(owner mm.Owner) (AddressSpace, *kernel.Error) {
	l1Frame, err := m.Alloc.AllocFrame(owner)
	if err != nil {
		return AddressSpace{}, err
	}

	l2Frame, err := m.Alloc.AllocFrame(owner)
	if err != nil {
		return AddressSpace{}, err
	}

	m.Mem.ZeroFrame(l1Frame)
	m.Mem.ZeroFrame(l2Frame)

	space := SpaceFromRoot(m.Mem, l1Frame)
	space.L1().SetEntry(0, NewEntry(l2Frame, FlagPresent|FlagWritable|FlagUser))
	return space, nil
}

// Clone allocates a new address space for owner initialized as a copy of
// src: the level-1 table is copied verbatim, entry zero is then redirected
// to a fresh level-2 table holding a copy of src's first level-2 table.
//
// This assumes every live mapping of src lives in the level-2 table at
// level-1 entry zero, which holds for every address space in this kernel
// because virtual memory is smaller than the span of a single level-2
// table. Clone is scoped to that layout; it is not a general multi-table
// page-table copier.
//
// On allocation failure Clone returns an error and src is left unchanged.
// Callers that can continue without private tables fall back to aliasing
// the kernel's address space and must raise its table refcount themselves.
// A first frame claimed before the second allocation fails stays allocated;
// there is no frame free path.
func (m *Manager) Clone(src AddressSpace, owner mm.Owner) (AddressSpace, *kernel.Error) {
	srcL1 := src.L1()
	if !srcL1.Entry(0).HasFlags(FlagPresent) {
		return AddressSpace{}, errNoL2Table
	}

	l1Frame, err := m.Alloc.AllocFrame(owner)
	if err != nil {
		return AddressSpace{}, err
	}

	l2Frame, err := m.Alloc.AllocFrame(owner)
	if err != nil {
		return AddressSpace{}, err
	}

	m.Mem.CopyFrame(l1Frame, src.Root())
	m.Mem.CopyFrame(l2Frame, srcL1.L2(0).Frame())

	space := SpaceFromRoot(m.Mem, l1Frame)
	space.L1().SetEntry(0, NewEntry(l2Frame, FlagPresent|FlagWritable|FlagUser))
	return space, nil
}

// GrantPage allocates one frame for owner and maps it into space at the
// given virtual address with full user read/write permission. It surfaces
// allocator exhaustion to the caller.
func (m *Manager) GrantPage(space AddressSpace, virtAddr uintptr, owner mm.Owner) *kernel.Error {
	frame, err := m.Alloc.AllocFrame(owner)
	if err != nil {
		return err
	}

	return space.MapRange(virtAddr, frame.Address(), mm.PageSize, FlagPresent|FlagWritable|FlagUser)
}
