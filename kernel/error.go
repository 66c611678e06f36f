// Package kernel provides the error type shared by all kernel subsystems.
package kernel

// Error describes a kernel error. Fixed error conditions (for example
// allocator exhaustion) are defined as global variables pointing to an Error
// value so that callers can compare them by identity; errors that carry
// per-occurrence detail populate Message at the raise site.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
