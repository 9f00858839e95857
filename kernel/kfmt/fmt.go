// Package kfmt implements the kernel console: formatted output that is
// buffered until a sink is attached, and the fatal panic path.
package kfmt

import (
	"fmt"
	"io"

	"kmem/kernel/sync"
)

var (
	// consoleLock serializes console output coming from concurrently
	// executing tasks.
	consoleLock sync.Spinlock

	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// an output sink has been attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	consoleLock.Acquire()
	defer consoleLock.Release()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes the result to the
// attached output sink. If no sink is attached, the output is buffered into a
// ring-buffer and replayed once SetOutputSink is called.
func Printf(format string, args ...interface{}) {
	consoleLock.Acquire()
	defer consoleLock.Release()

	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. Passing a nil writer targets the early print
// buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}

	// Console write errors cannot be reported anywhere.
	_, _ = fmt.Fprintf(w, format, args...)
}
