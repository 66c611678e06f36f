// Package proc owns the process descriptor table and the process lifecycle:
// boot-time creation, fork and the transition to Broken on an unrecoverable
// user fault. Descriptors never return to the Free state and the frames of a
// Broken process are never reclaimed.
package proc

import (
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
)

// PID identifies a process by its stable index into the process table.
// PID 0 is reserved and never used.
type PID int

// State describes the lifecycle state of a process descriptor.
type State uint8

const (
	// Free marks an unused descriptor slot.
	Free State = iota

	// Runnable marks a process the scheduler may select.
	Runnable

	// Broken marks a process that hit an unrecoverable user-mode fault.
	// It keeps its slot and its frames but is never scheduled again.
	Broken
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Runnable:
		return "runnable"
	case Broken:
		return "broken"
	}
	return "unknown"
}

// Process is one process descriptor.
type Process struct {
	// PID is the descriptor's index in the process table.
	PID PID

	// State is the lifecycle state of this descriptor.
	State State

	// Regs is the full CPU context saved at the last trap. The kernel
	// treats it as opaque except for the syscall argument and
	// return-value register.
	Regs cpu.Regs

	// Space is the process's address space. It aliases the kernel's
	// address space when private tables could not be allocated.
	Space vmm.AddressSpace
}
