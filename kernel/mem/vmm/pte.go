package vmm

import (
	"sync/atomic"

	"kmem/kernel"
	"kmem/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint32

// PageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags.
type PageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte PageTableEntry) Frame() pmm.Frame {
	return pmm.FrameFromAddress(uintptr(pte) & ptePhysPageMask)
}

// SetFrame updates the page table entry to point the the given physical frame .
func (pte *PageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (PageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// SwapBlock returns the swap block number stored in a swapped-out entry.
func (pte PageTableEntry) SwapBlock() uintptr {
	return uintptr(pte) >> pteSwapShift
}

// SwappedEntry returns the entry for a page whose contents were written to
// the given swap block. The entry is not present so any access faults.
func SwappedEntry(block uintptr) PageTableEntry {
	return PageTableEntry(block<<pteSwapShift) | PageTableEntry(FlagSwapped)
}

// Entry references a page table entry stored in physical memory. Entries may
// be updated concurrently by the MMU (accessed/dirty bits) so every access is
// atomic.
type Entry struct {
	ptr *uint32
}

// Valid returns true if the entry references a page table slot.
func (e Entry) Valid() bool {
	return e.ptr != nil
}

// Load returns the current value of the entry.
func (e Entry) Load() PageTableEntry {
	return PageTableEntry(atomic.LoadUint32(e.ptr))
}

// Store overwrites the entry.
func (e Entry) Store(pte PageTableEntry) {
	atomic.StoreUint32(e.ptr, uint32(pte))
}

// SetFlags atomically sets flags on the entry.
func (e Entry) SetFlags(flags PageTableEntryFlag) {
	for {
		old := atomic.LoadUint32(e.ptr)
		if atomic.CompareAndSwapUint32(e.ptr, old, old|uint32(flags)) {
			return
		}
	}
}

// SetFlagsIfPresent atomically sets flags on the entry as long as it maps a
// present page. It returns false, leaving the entry untouched, otherwise.
func (e Entry) SetFlagsIfPresent(flags PageTableEntryFlag) bool {
	for {
		old := atomic.LoadUint32(e.ptr)
		if !PageTableEntry(old).HasFlags(FlagPresent) {
			return false
		}
		if atomic.CompareAndSwapUint32(e.ptr, old, old|uint32(flags)) {
			return true
		}
	}
}

// ClearFlags atomically clears flags from the entry and returns the value
// the entry had before the update.
func (e Entry) ClearFlags(flags PageTableEntryFlag) PageTableEntry {
	for {
		old := atomic.LoadUint32(e.ptr)
		if atomic.CompareAndSwapUint32(e.ptr, old, old&^uint32(flags)) {
			return PageTableEntry(old)
		}
	}
}
