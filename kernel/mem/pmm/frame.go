// Package pmm contains the physical frame type shared by the memory
// management packages.
package pmm

import (
	"strconv"

	"kmem/kernel/mem"
)

// Frame is a physical page frame number.
type Frame uintptr

// InvalidFrame is returned by page allocators when they fail to reserve a
// frame. It also marks unset frame links.
const InvalidFrame = ^Frame(0)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of the frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	if !f.Valid() {
		return "invalid"
	}
	return "#" + strconv.FormatUint(uint64(f), 10)
}

// FrameFromAddress returns the Frame that contains the given physical address.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}
