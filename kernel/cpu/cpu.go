// Package cpu exposes the processor operations the memory manager depends on.
// The kernel runs as a simulated machine hosted by a Go process so the
// operations are implemented in terms of that process.
package cpu

import "os"

// HaltExitCode is the status reported by the hosting process when the
// simulated machine halts.
const HaltExitCode = 2

var (
	// exitFn is mocked by tests and is automatically inlined by the compiler.
	exitFn = os.Exit
)

// Halt stops instruction execution. Halting the simulated machine terminates
// the hosting process; Halt never returns.
func Halt() {
	exitFn(HaltExitCode)
}
