package allocator

import (
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
)

// frameDesc is the metadata kept for one physical frame. Frames refer to each
// other by frame number so the free pool and the eviction ring are relations
// over the table rather than pointer graphs.
type frameDesc struct {
	// ringNext and ringPrev link the frame into the eviction ring. Both
	// are pmm.InvalidFrame while the frame is not a ring member.
	ringNext, ringPrev pmm.Frame

	// freeNext links the frame into the free pool stack.
	freeNext pmm.Frame

	// free is set while the frame sits in the free pool.
	free bool

	// owner is the page directory that maps this frame into user space
	// or pmm.InvalidFrame if the frame is not a user page.
	owner pmm.Frame

	// vaddr is the user virtual address of the mapping. It is only
	// meaningful while owner is valid.
	vaddr uintptr
}

// canonicalVaddr returns the address a descriptor carries while its frame is
// not mapped into user space.
func canonicalVaddr(frame pmm.Frame) uintptr {
	return frame.Address()
}

// initFrameTable allocates one descriptor for every frame in
// [0, PhysTop) and resets it.
func initFrameTable(layout mem.Layout) []frameDesc {
	table := make([]frameDesc, layout.FrameCount())
	for i := range table {
		frame := pmm.Frame(i)
		table[i] = frameDesc{
			ringNext: pmm.InvalidFrame,
			ringPrev: pmm.InvalidFrame,
			freeNext: pmm.InvalidFrame,
			owner:    pmm.InvalidFrame,
			vaddr:    canonicalVaddr(frame),
		}
	}

	return table
}

// clearOwner marks the frame as no longer mapped into user space.
func (d *frameDesc) clearOwner(frame pmm.Frame) {
	d.owner = pmm.InvalidFrame
	d.vaddr = canonicalVaddr(frame)
}
