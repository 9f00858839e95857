package mem

// Layout describes where the kernel lives in the virtual address space and
// how much physical memory the machine has. Physical memory [0, PhysTop) is
// mapped linearly at KernBase so that a kernel virtual address and the
// physical address backing it differ by KernBase.
type Layout struct {
	// KernBase is the first kernel virtual address.
	KernBase uintptr

	// KernelEnd is the first kernel virtual address after the kernel
	// image (text, data and bss).
	KernelEnd uintptr

	// PhysTop is the top of managed physical memory.
	PhysTop uintptr
}

// V2P converts a kernel virtual address to a physical address.
func (l Layout) V2P(virtAddr uintptr) uintptr {
	return virtAddr - l.KernBase
}

// P2V converts a physical address to a kernel virtual address.
func (l Layout) P2V(physAddr uintptr) uintptr {
	return physAddr + l.KernBase
}

// FrameCount returns the number of page frames in [0, PhysTop).
func (l Layout) FrameCount() uint64 {
	return uint64(l.PhysTop >> PageShift)
}

// PageRoundUp rounds addr up to the nearest page boundary.
func PageRoundUp(addr uintptr) uintptr {
	return (addr + uintptr(PageSize-1)) &^ uintptr(PageSize-1)
}

// PageRoundDown rounds addr down to the nearest page boundary.
func PageRoundDown(addr uintptr) uintptr {
	return addr &^ uintptr(PageSize-1)
}

// PageAligned returns true if addr is a multiple of PageSize.
func PageAligned(addr uintptr) bool {
	return addr&uintptr(PageSize-1) == 0
}
