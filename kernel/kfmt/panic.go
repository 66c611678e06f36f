package kfmt

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
)

// cpuHaltFn is mocked by tests.
var cpuHaltFn = cpu.Halt

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return.
func Panic(e interface{}) {
	err := panicError(e)

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// panicError normalizes a panic cause into a kernel error. Causes that are
// not kernel errors already are attributed to the runtime.
func panicError(e interface{}) *kernel.Error {
	switch t := e.(type) {
	case *kernel.Error:
		return t
	case error:
		return &kernel.Error{Module: "rt", Message: t.Error()}
	case string:
		return &kernel.Error{Module: "rt", Message: t}
	}

	return nil
}
