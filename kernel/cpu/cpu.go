// Package cpu models the CPU state the kernel manipulates: the register
// snapshot that traps push into the current process descriptor, the trap
// vector numbers the dispatcher decodes, and the page-fault error bits.
package cpu

// Trap vector numbers delivered to the interrupt dispatcher.
const (
	TrapPageFault = 14
	TrapTimer     = 32
	TrapPanic     = 48
	TrapGetPID    = 49
	TrapYield     = 50
	TrapPageAlloc = 51
	TrapFork      = 52
)

// Page-fault error code bits.
const (
	PFErrPresent = 1 << 0
	PFErrWrite   = 1 << 1
	PFErrUser    = 1 << 2
)

// SysFailure is the value a syscall handler stores in the return-value
// register to report failure to the caller (-1 as an unsigned register).
const SysFailure = ^uint32(0)

// Regs contains a snapshot of the register values at the time a trap was
// delivered. EAX doubles as the syscall argument and return-value register.
type Regs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	ESP uint32
	EIP uint32

	EFlags uint32

	// IntNo holds the trap vector number; Err holds the error code pushed
	// for faults (page-fault error bits for TrapPageFault).
	IntNo uint32
	Err   uint32
}

// Halt stops the simulated CPU. It never returns.
func Halt() {
	select {}
}
