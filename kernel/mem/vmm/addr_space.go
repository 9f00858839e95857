package vmm

import (
	"kmem/kernel"
	"kmem/kernel/mem/pmm"
)

// NewPageDirectory allocates an empty top-level page table and returns the
// frame that holds it. The frame identifies the new address space.
func (w *Walker) NewPageDirectory() (pmm.Frame, *kernel.Error) {
	return w.allocTable()
}

// Map establishes a mapping between virtAddr and frame in the address space
// rooted at pgdir, allocating any missing page tables. The entry is flagged
// as present in addition to the supplied flags.
func (w *Walker) Map(pgdir pmm.Frame, virtAddr uintptr, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	entry, err := w.LookupEntry(pgdir, virtAddr, true)
	if err != nil {
		return err
	}

	var pte PageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags | FlagPresent)
	entry.Store(pte)
	return nil
}

// Unmap removes the mapping for virtAddr and returns the entry value it
// held. Unmapping an address without a page table returns ErrInvalidMapping.
func (w *Walker) Unmap(pgdir pmm.Frame, virtAddr uintptr) (PageTableEntry, *kernel.Error) {
	entry, err := w.LookupEntry(pgdir, virtAddr, false)
	if err != nil {
		return 0, err
	}

	old := entry.Load()
	entry.Store(0)
	return old, nil
}

// Touch emulates the MMU referencing virtAddr: it sets the accessed bit of
// the mapping. Touching a page that is not present returns ErrInvalidMapping.
func (w *Walker) Touch(pgdir pmm.Frame, virtAddr uintptr) *kernel.Error {
	entry, err := w.LookupEntry(pgdir, virtAddr, false)
	if err != nil {
		return err
	}

	if !entry.SetFlagsIfPresent(FlagAccessed) {
		return ErrInvalidMapping
	}

	return nil
}

// ReleasePageDirectory passes every page table referenced by pgdir and then
// pgdir itself to freeFn. User mappings must have been removed beforehand;
// the frames they point to are not released.
func (w *Walker) ReleasePageDirectory(pgdir pmm.Frame, freeFn func(pmm.Frame)) *kernel.Error {
	if !pgdir.Valid() || pgdir.Address() >= uintptr(len(w.Mem)) {
		return errPageDirOutOfRange
	}

	for index := uintptr(0); index < 1<<pageLevelBits[0]; index++ {
		pde := w.entryAt(pgdir.Address() + index*entrySize)
		if entry := pde.Load(); entry.HasFlags(FlagPresent) {
			pde.Store(0)
			freeFn(entry.Frame())
		}
	}

	freeFn(pgdir)
	return nil
}
