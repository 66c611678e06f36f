// Package hal holds the platform primitives the kernel core consumes but
// does not implement: activating an address space, restoring a saved context
// and the fault-cause register. The simulated platform models them as
// package state plus a swappable context-restore hook; a real port would
// back them with privileged instructions.
package hal

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/kfmt"
	"github.com/KingOth/systems-programming/kernel/mm"
)

var (
	// activeRoot is the level-1 table frame the simulated MMU currently
	// translates through.
	activeRoot = mm.InvalidFrame

	// faultAddr models the register that latches the faulting virtual
	// address when a page fault is delivered.
	faultAddr uintptr

	errNoCPU = &kernel.Error{Module: "hal", Message: "no context-restore primitive attached"}
)

// ActivateAddressSpace points the simulated MMU at the address space rooted
// at the given level-1 table frame.
func ActivateAddressSpace(root mm.Frame) {
	activeRoot = root
}

// ActiveAddressSpace returns the root frame of the currently active address
// space.
func ActiveAddressSpace() mm.Frame {
	return activeRoot
}

// SetFaultAddress latches the faulting virtual address. It is called by
// whatever injects a page-fault trap, before the dispatcher runs.
func SetFaultAddress(addr uintptr) {
	faultAddr = addr
}

// FaultAddress reads the latched faulting virtual address.
func FaultAddress() uintptr {
	return faultAddr
}

// ResumeContext loads the supplied saved register context and transfers
// control to it. It never returns; the only way back into kernel logic is a
// subsequent trap. The simulated platform installs its own implementation at
// boot; the default halts, since there is no CPU to hand control to.
var ResumeContext = func(regs *cpu.Regs) {
	kfmt.Panic(errNoCPU)
}
