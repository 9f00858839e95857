package allocator

import (
	"kmem/kernel"
	"kmem/kernel/mem/pmm"
)

var (
	errRingBrokenLink = &kernel.Error{Module: "pmm", Message: "eviction ring link mismatch"}
	errRingCount      = &kernel.Error{Module: "pmm", Message: "eviction ring count mismatch"}
)

// inRing returns true if frame is a member of the eviction ring.
func (a *ClockAllocator) inRing(frame pmm.Frame) bool {
	return a.frames[frame].ringNext.Valid()
}

// ringInsertTail links frame just before the ring head so it is the last
// frame visited by a sweep that starts at the head. An empty ring becomes a
// single self-linked frame. The caller must hold the allocator lock and the
// frame must not be a ring member.
func (a *ClockAllocator) ringInsertTail(frame pmm.Frame) {
	d := &a.frames[frame]

	if !a.ringHead.Valid() {
		d.ringNext, d.ringPrev = frame, frame
		a.ringHead = frame
		a.ringCount++
		return
	}

	head := a.ringHead
	tail := a.frames[head].ringPrev

	d.ringNext, d.ringPrev = head, tail
	a.frames[tail].ringNext = frame
	a.frames[head].ringPrev = frame
	a.ringCount++
}

// ringRemove unlinks frame from the eviction ring. If frame is the head, the
// head advances to its successor; removing the last member empties the ring.
// The caller must hold the allocator lock.
func (a *ClockAllocator) ringRemove(frame pmm.Frame) {
	d := &a.frames[frame]

	if d.ringNext == frame {
		a.ringHead = pmm.InvalidFrame
	} else {
		a.frames[d.ringPrev].ringNext = d.ringNext
		a.frames[d.ringNext].ringPrev = d.ringPrev
		if a.ringHead == frame {
			a.ringHead = d.ringNext
		}
	}

	d.ringNext, d.ringPrev = pmm.InvalidFrame, pmm.InvalidFrame
	a.ringCount--
}

// ringMoveToTail re-links a ring member (or links a non-member) at the tail.
func (a *ClockAllocator) ringMoveToTail(frame pmm.Frame) {
	if a.inRing(frame) {
		a.ringRemove(frame)
	}
	a.ringInsertTail(frame)
}

// checkRing verifies that the ring is either empty or a well formed circular
// list whose length matches ringCount. The caller must hold the allocator
// lock.
func (a *ClockAllocator) checkRing() *kernel.Error {
	if !a.ringHead.Valid() {
		if a.ringCount != 0 {
			return errRingCount
		}
		return nil
	}

	var count uint32
	frame := a.ringHead
	for {
		d := &a.frames[frame]
		if a.frames[d.ringNext].ringPrev != frame || a.frames[d.ringPrev].ringNext != frame {
			return errRingBrokenLink
		}

		count++
		if count > a.ringCount {
			return errRingCount
		}

		if frame = d.ringNext; frame == a.ringHead {
			break
		}
	}

	if count != a.ringCount {
		return errRingCount
	}

	return nil
}
