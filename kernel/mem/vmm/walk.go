package vmm

import (
	"unsafe"

	"kmem/kernel"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
)

var (
	errPageDirOutOfRange = &kernel.Error{Module: "vmm", Message: "page directory frame outside physical memory"}
	errNoFrameAllocator  = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte Entry) bool

// Walker resolves virtual addresses against page tables that live inside
// physical memory. A page directory is identified by the frame that holds
// its top-level table.
type Walker struct {
	// Mem is the physical memory holding the page tables.
	Mem mem.PhysMem

	// AllocFrame supplies frames for missing page tables. It is only
	// used by lookups that request allocation.
	AllocFrame FrameAllocatorFn
}

// entryAt returns a reference to the page table entry stored at physAddr.
func (w *Walker) entryAt(physAddr uintptr) Entry {
	return Entry{ptr: (*uint32)(unsafe.Pointer(&w.Mem[physAddr]))}
}

// walk performs a page table walk for the given virtual address starting at
// the page directory stored in pgdir. It calls the supplied walkFn with the
// page table entry that corresponds to each page table level. If walkFn
// returns false then the walk is aborted. A table that would lie outside
// physical memory ends the walk with ErrInvalidMapping.
func (w *Walker) walk(pgdir pmm.Frame, virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	var (
		level                 uint8
		tableAddr, entryIndex uintptr
		entry                 Entry
	)

	for level, tableAddr = uint8(0), pgdir.Address(); level < pageLevels; level++ {
		if tableAddr+uintptr(mem.PageSize) > uintptr(len(w.Mem)) {
			return ErrInvalidMapping
		}

		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entry = w.entryAt(tableAddr + entryIndex*entrySize)

		if !walkFn(level, entry) {
			return nil
		}

		// Follow the entry to the next level table
		tableAddr = entry.Load().Frame().Address()
	}

	return nil
}

// LookupEntry returns the last-level page table entry for virtAddr in the
// address space rooted at pgdir. The returned entry may be empty (not
// present). If an intermediate table is missing, LookupEntry returns
// ErrInvalidMapping unless alloc is true, in which case a zeroed table is
// allocated and installed.
func (w *Walker) LookupEntry(pgdir pmm.Frame, virtAddr uintptr, alloc bool) (Entry, *kernel.Error) {
	if !pgdir.Valid() || pgdir.Address() >= uintptr(len(w.Mem)) {
		return Entry{}, errPageDirOutOfRange
	}

	var (
		err    *kernel.Error
		result Entry
	)

	walkErr := w.walk(pgdir, virtAddr, func(pteLevel uint8, pte Entry) bool {
		if pteLevel == pageLevels-1 {
			result = pte
			return true
		}

		if pte.Load().HasFlags(FlagPresent) {
			return true
		}

		if !alloc {
			err = ErrInvalidMapping
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		var tableFrame pmm.Frame
		if tableFrame, err = w.allocTable(); err != nil {
			return false
		}

		var pde PageTableEntry
		pde.SetFrame(tableFrame)
		pde.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
		pte.Store(pde)
		return true
	})

	if err == nil {
		err = walkErr
	}
	if err != nil {
		return Entry{}, err
	}

	return result, nil
}

// allocTable reserves and clears a frame for a page table.
func (w *Walker) allocTable() (pmm.Frame, *kernel.Error) {
	if w.AllocFrame == nil {
		return pmm.InvalidFrame, errNoFrameAllocator
	}

	frame, err := w.AllocFrame()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	mem.Memset(w.Mem.Page(frame.Address()), 0)
	return frame, nil
}
