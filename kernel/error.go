// Package kernel holds the types shared by every kernel subsystem.
package kernel

// Error is the error type returned by kernel code. Errors are declared as
// package level *Error values so that reporting a failure never allocates,
// which matters on paths that run while the frame allocator is exhausted.
type Error struct {
	// Module names the subsystem that raised the error, e.g. "kalloc".
	Module string

	// Message is a short lower-case description of the failure.
	Message string
}

// Error implements the error interface. The module is used as a prefix when
// it is set.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}
	return e.Module + ": " + e.Message
}
