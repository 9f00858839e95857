package allocator

import (
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
	"kmem/kernel/mem/vmm"
	"kmem/kernel/swap"
)

// reclaimLaps bounds a sweep. The first lap may only clear accessed bits so
// a second lap is needed before concluding that no victim exists.
const reclaimLaps = 2

// reclaim runs one clock sweep over the eviction ring starting at the ring
// head. Frames that back a user mapping with the accessed bit set get a
// second chance: the bit is cleared and the sweep moves on. The first user
// mapping found with the bit clear is written to swap, its page table entry
// is rewritten to reference the swap block and the frame is handed to the
// free pool.
//
// reclaim returns false if no victim was found. The caller must hold the
// allocator lock; the lock is dropped while the page is written out and is
// held again when reclaim returns.
func (a *ClockAllocator) reclaim() bool {
	a.reclaimRuns++

	victim, entry := a.selectVictim()
	if !victim.Valid() {
		return false
	}

	if a.swap == nil {
		panicFn(errNoSwapSpace)
		return false
	}

	block, err := a.swap.AllocBlock()
	if err != nil {
		panicFn(errNoSwapSpace)
		return false
	}

	a.ringRemove(victim)
	entry.Store(vmm.SwappedEntry(uintptr(block)))
	a.frames[victim].clearOwner(victim)
	a.inflight[block] = struct{}{}

	page := a.mem.Page(victim.Address())
	a.release()
	err = a.swap.WritePage(page, block)
	if err == nil {
		mem.Memset(page, mem.JunkByte)
	}
	a.acquire()

	delete(a.inflight, block)
	if err != nil {
		panicFn(err)
		return false
	}

	a.pushFree(victim)
	a.evictions++
	return true
}

// selectVictim scans at most reclaimLaps revolutions of the ring and returns
// the first frame whose user mapping has a clear accessed bit together with
// the page table entry that maps it. It returns pmm.InvalidFrame if the ring
// holds no such frame.
func (a *ClockAllocator) selectVictim() (pmm.Frame, vmm.Entry) {
	start := a.ringHead
	if !start.Valid() {
		return pmm.InvalidFrame, vmm.Entry{}
	}

	for frame, laps := start, 0; laps < reclaimLaps; {
		if entry, ok := a.userEntry(frame); ok {
			if old := entry.ClearFlags(vmm.FlagAccessed); !old.HasFlags(vmm.FlagAccessed) {
				return frame, entry
			}
		}

		if frame = a.frames[frame].ringNext; frame == start {
			laps++
		}
	}

	return pmm.InvalidFrame, vmm.Entry{}
}

// userEntry returns the page table entry through which the owner of frame
// maps it into user space. The second result is false if the frame has no
// owner or the entry no longer maps the frame as a present user page.
func (a *ClockAllocator) userEntry(frame pmm.Frame) (vmm.Entry, bool) {
	d := &a.frames[frame]
	if !d.owner.Valid() || a.walker == nil {
		return vmm.Entry{}, false
	}

	entry, err := a.walker.LookupEntry(d.owner, d.vaddr, false)
	if err != nil || !entry.Valid() {
		return vmm.Entry{}, false
	}

	pte := entry.Load()
	if !pte.HasFlags(vmm.FlagPresent|vmm.FlagUserAccessible) || pte.Frame() != frame {
		return vmm.Entry{}, false
	}

	return entry, true
}

// inflightBlock reports whether a page is still being written to block.
func (a *ClockAllocator) inflightBlock(block swap.Block) bool {
	_, busy := a.inflight[block]
	return busy
}
