package vmm

import (
	"kmem/kernel"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
)

var errTestOutOfFrames = &kernel.Error{Module: "test", Message: "out of frames"}

// testWalker returns a walker over frameCount pages of physical memory whose
// frame allocator hands out frames in ascending order starting at frame 1.
// The returned pointer tracks the number of allocations.
func testWalker(frameCount int) (*Walker, *int) {
	var (
		next       = pmm.Frame(1)
		allocCount int
	)

	w := &Walker{Mem: mem.NewPhysMem(mem.Size(frameCount) * mem.PageSize)}
	w.AllocFrame = func() (pmm.Frame, *kernel.Error) {
		if int(next) >= frameCount {
			return pmm.InvalidFrame, errTestOutOfFrames
		}

		// Fill with junk so tests can verify that tables are cleared
		mem.Memset(w.Mem.Page(next.Address()), 0xFE)
		allocCount++
		next++
		return next - 1, nil
	}

	return w, &allocCount
}
