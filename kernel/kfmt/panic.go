package kfmt

import (
	"kmem/kernel"
	"kmem/kernel/cpu"
)

const panicRule = "\n-----------------------------------\n"

var (
	// cpuHaltFn is replaced by tests so that Panic returns.
	cpuHaltFn = cpu.Halt

	// runtimeModule tags panics raised with a plain string or Go error.
	runtimeModule = "rt"
)

// Panic writes a crash banner describing e to the console and halts the CPU.
// e may be a *kernel.Error, a Go error, a string or nil. Panic never returns
// unless cpuHaltFn has been replaced.
func Panic(e interface{}) {
	module, msg := panicCause(e)

	Printf(panicRule)
	if msg != "" {
		Printf("[%s] unrecoverable error: %s\n", module, msg)
	}
	Printf("*** kernel panic: system halted ***")
	Printf(panicRule)

	cpuHaltFn()
}

func panicCause(e interface{}) (module, msg string) {
	switch cause := e.(type) {
	case *kernel.Error:
		if cause != nil {
			return cause.Module, cause.Message
		}
	case error:
		return runtimeModule, cause.Error()
	case string:
		return runtimeModule, cause
	}
	return "", ""
}
