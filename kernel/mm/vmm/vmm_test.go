package vmm

import (
	"testing"

	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/pmm"
)

func newTestManager() *Manager {
	return NewManager(mm.NewMemory(), pmm.NewAllocator())
}

func TestEntryFrameAndFlags(t *testing.T) {
	specs := []struct {
		frame mm.Frame
		flags Flag
	}{
		{mm.Frame(0), FlagPresent},
		{mm.Frame(1), FlagPresent | FlagWritable},
		{mm.Frame(511), FlagPresent | FlagWritable | FlagUser},
		{mm.Frame(42), 0},
	}

	for specIndex, spec := range specs {
		entry := NewEntry(spec.frame, spec.flags)
		if got := entry.Frame(); got != spec.frame {
			t.Errorf("[spec %d] expected entry frame %d; got %d", specIndex, spec.frame, got)
		}
		if got := entry.Flags(); got != spec.flags {
			t.Errorf("[spec %d] expected entry flags %b; got %b", specIndex, spec.flags, got)
		}
	}
}

func TestNewSpaceMapLookup(t *testing.T) {
	mgr := newTestManager()

	space, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	if !space.L1().Entry(0).HasFlags(FlagPresent | FlagWritable | FlagUser) {
		t.Fatal("expected entry 0 of a fresh level-1 table to point at a level-2 table")
	}

	va := mm.ProcStartAddr
	pa := mm.ProcStartAddr + 4*mm.PageSize
	if err := space.MapRange(va, pa, 2*mm.PageSize, FlagPresent|FlagWritable); err != nil {
		t.Fatal(err)
	}

	mapping := space.Lookup(va + mm.PageSize + 123)
	if !mapping.Mapped() {
		t.Fatal("expected lookup of a mapped page to succeed")
	}
	if exp := pa + mm.PageSize + 123; mapping.Addr != exp {
		t.Fatalf("expected physical address %#x; got %#x", exp, mapping.Addr)
	}
	if exp := mm.FrameFromAddress(pa + mm.PageSize); mapping.Frame != exp {
		t.Fatalf("expected frame %d; got %d", exp, mapping.Frame)
	}
	if mapping.Perm != FlagPresent|FlagWritable {
		t.Fatalf("expected permissions %b; got %b", FlagPresent|FlagWritable, mapping.Perm)
	}

	if got := space.Lookup(va + 16*mm.PageSize); got.Mapped() {
		t.Fatalf("expected lookup of an unmapped page to report no frame; got frame %d", got.Frame)
	}
}

func TestMapRangeWithoutL2Table(t *testing.T) {
	mgr := newTestManager()

	space, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	// Level-1 entry 1 is absent; mapping through it must fail.
	beyondL2 := uintptr(1) << l1Shift
	if err := space.MapRange(beyondL2, 0, mm.PageSize, FlagPresent); err != errNoL2Table {
		t.Fatalf("expected errNoL2Table; got %v", err)
	}

	if got := space.Lookup(beyondL2); got.Mapped() {
		t.Fatal("expected lookup through an absent level-1 entry to report no frame")
	}
}

func TestNonPresentMappingKeepsAddress(t *testing.T) {
	mgr := newTestManager()

	space, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	// Protecting a range with zero permissions stores the address but the
	// mapping must not resolve.
	va := mm.ProcStartAddr
	if err := space.MapRange(va, va, mm.PageSize, 0); err != nil {
		t.Fatal(err)
	}

	if got := space.Lookup(va); got.Mapped() {
		t.Fatal("expected a zero-permission mapping not to resolve")
	}

	leaf := space.L1().L2(l1Index(va)).Entry(l2Index(va))
	if got := leaf.Frame(); got != mm.FrameFromAddress(va) {
		t.Fatalf("expected protected entry to keep frame %d; got %d", mm.FrameFromAddress(va), got)
	}
}

func TestClone(t *testing.T) {
	mgr := newTestManager()

	src, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	va := mm.ProcStartAddr
	pa := mm.ProcStartAddr + 8*mm.PageSize
	if err := src.MapRange(va, pa, mm.PageSize, FlagPresent|FlagWritable|FlagUser); err != nil {
		t.Fatal(err)
	}

	clone, err := mgr.Clone(src, mm.Owner(1))
	if err != nil {
		t.Fatal(err)
	}

	if clone.Equal(src) {
		t.Fatal("expected clone to have its own level-1 table")
	}

	if got := clone.L1().L2(0).Frame(); got == src.L1().L2(0).Frame() {
		t.Fatal("expected clone to have its own level-2 table")
	}

	// The clone sees the same leaf mappings as the source.
	mapping := clone.Lookup(va)
	if !mapping.Mapped() || mapping.Frame != mm.FrameFromAddress(pa) {
		t.Fatalf("expected cloned mapping to resolve to frame %d; got %v", mm.FrameFromAddress(pa), mapping.Frame)
	}

	// Remapping the source afterwards must not alter the clone.
	if err := src.MapRange(va, pa+mm.PageSize, mm.PageSize, FlagPresent|FlagUser); err != nil {
		t.Fatal(err)
	}
	if got := clone.Lookup(va).Frame; got != mm.FrameFromAddress(pa) {
		t.Fatalf("expected clone to keep frame %d after source remap; got %d", mm.FrameFromAddress(pa), got)
	}

	// Both table frames belong to the new owner with refcount 1.
	for _, frame := range []mm.Frame{clone.Root(), clone.L1().L2(0).Frame()} {
		info := mgr.Alloc.Info(frame)
		if info.Owner != mm.Owner(1) || info.RefCount != 1 {
			t.Fatalf("expected table frame %d to be owned by process 1 with refcount 1; got owner %d refcount %d", frame, info.Owner, info.RefCount)
		}
	}
}

func TestCloneExhaustion(t *testing.T) {
	mgr := newTestManager()

	src, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	for {
		if _, err := mgr.Alloc.AllocFrame(mm.OwnerKernel); err != nil {
			break
		}
	}

	if _, err := mgr.Clone(src, mm.Owner(1)); err == nil {
		t.Fatal("expected Clone to fail when no frames are available")
	}

	// The source tables must be untouched by the failed clone.
	if !src.L1().Entry(0).HasFlags(FlagPresent) {
		t.Fatal("expected failed clone to leave the source level-1 table unchanged")
	}
}

func TestGrantPage(t *testing.T) {
	mgr := newTestManager()

	space, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	va := mm.MemSizeVirtual - mm.PageSize
	if err := mgr.GrantPage(space, va, mm.Owner(2)); err != nil {
		t.Fatal(err)
	}

	mapping := space.Lookup(va)
	if !mapping.Mapped() {
		t.Fatal("expected granted page to be mapped")
	}
	if mapping.Perm != FlagPresent|FlagWritable|FlagUser {
		t.Fatalf("expected granted page permissions %b; got %b", FlagPresent|FlagWritable|FlagUser, mapping.Perm)
	}

	info := mgr.Alloc.Info(mapping.Frame)
	if info.Owner != mm.Owner(2) || info.RefCount != 1 {
		t.Fatalf("expected granted frame to be owned by process 2 with refcount 1; got owner %d refcount %d", info.Owner, info.RefCount)
	}
}

func TestReadString(t *testing.T) {
	mgr := newTestManager()

	space, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	va := mm.ProcStartAddr
	pa := mm.ProcStartAddr
	if err := space.MapRange(va, pa, mm.PageSize, FlagPresent|FlagWritable|FlagUser); err != nil {
		t.Fatal(err)
	}

	msg := "user process failed an assertion"
	copy(mgr.Mem.FrameBytes(mm.FrameFromAddress(pa)), append([]byte(msg), 0))

	if got := space.ReadString(va); got != msg {
		t.Fatalf("expected to read %q; got %q", msg, got)
	}

	// Reading from an unmapped address yields an empty string.
	if got := space.ReadString(va + 32*mm.PageSize); got != "" {
		t.Fatalf("expected empty string from unmapped address; got %q", got)
	}
}
