package vmm

import (
	"encoding/binary"

	"github.com/KingOth/systems-programming/kernel/mm"
)

const (
	// TableEntries is the number of entries in a level-1 or level-2 table.
	// Each table occupies exactly one physical frame.
	TableEntries = 1024

	// entrySize is the size of one table entry in bytes.
	entrySize = 4

	// l1Shift extracts the level-1 index from a virtual address;
	// l2IndexMask extracts the level-2 index after shifting by PageShift.
	l1Shift     = 22
	l2IndexMask = TableEntries - 1
)

// tableView reads and writes the entries of a page table stored in one
// arena frame. L1Table and L2Table wrap it as distinct types so that a
// level-1 table can never be passed where a level-2 table is expected.
type tableView struct {
	mem   *mm.Memory
	frame mm.Frame
}

func (v tableView) entry(index int) Entry {
	b := v.mem.FrameBytes(v.frame)
	return Entry(binary.LittleEndian.Uint32(b[index*entrySize:]))
}

func (v tableView) setEntry(index int, e Entry) {
	b := v.mem.FrameBytes(v.frame)
	binary.LittleEndian.PutUint32(b[index*entrySize:], uint32(e))
}

// L1Table is a typed view over the level-1 table of an address space. Each
// present entry points at a level-2 table frame.
type L1Table struct {
	view tableView
}

// Frame returns the physical frame backing this table.
func (t L1Table) Frame() mm.Frame {
	return t.view.frame
}

// Entry returns the entry at the given index.
func (t L1Table) Entry(index int) Entry {
	return t.view.entry(index)
}

// SetEntry overwrites the entry at the given index.
func (t L1Table) SetEntry(index int, e Entry) {
	t.view.setEntry(index, e)
}

// L2 returns the level-2 table the entry at the given index points to. The
// entry must be present.
func (t L1Table) L2(index int) L2Table {
	return L2Table{view: tableView{mem: t.view.mem, frame: t.Entry(index).Frame()}}
}

// L2Table is a typed view over a level-2 table. Each present entry maps one
// virtual page to one leaf frame.
type L2Table struct {
	view tableView
}

// Frame returns the physical frame backing this table.
func (t L2Table) Frame() mm.Frame {
	return t.view.frame
}

// Entry returns the entry at the given index.
func (t L2Table) Entry(index int) Entry {
	return t.view.entry(index)
}

// SetEntry overwrites the entry at the given index.
func (t L2Table) SetEntry(index int, e Entry) {
	t.view.setEntry(index, e)
}

// l1Index returns the level-1 table index for a virtual address.
func l1Index(virtAddr uintptr) int {
	return int(virtAddr >> l1Shift)
}

// l2Index returns the level-2 table index for a virtual address.
func l2Index(virtAddr uintptr) int {
	return int(virtAddr>>mm.PageShift) & l2IndexMask
}
