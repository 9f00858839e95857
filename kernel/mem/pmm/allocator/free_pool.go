package allocator

import "kmem/kernel/mem/pmm"

// pushFree places frame on top of the free pool. The caller must hold the
// allocator lock and guarantee the frame is not already free.
func (a *ClockAllocator) pushFree(frame pmm.Frame) {
	d := &a.frames[frame]
	d.free = true
	d.freeNext = a.freeHead
	a.freeHead = frame
	a.freeCount++
}

// popFree removes the most recently freed frame from the pool. It returns
// pmm.InvalidFrame if the pool is empty. The caller must hold the allocator
// lock.
func (a *ClockAllocator) popFree() pmm.Frame {
	frame := a.freeHead
	if !frame.Valid() {
		return pmm.InvalidFrame
	}

	d := &a.frames[frame]
	a.freeHead = d.freeNext
	d.free = false
	d.freeNext = pmm.InvalidFrame
	a.freeCount--
	return frame
}
