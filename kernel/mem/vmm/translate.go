package vmm

import (
	"kmem/kernel"
	"kmem/kernel/mem/pmm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address in the address space rooted at pgdir or ErrInvalidMapping
// if the virtual address does not correspond to a resident physical page.
func (w *Walker) Translate(pgdir pmm.Frame, virtAddr uintptr) (uintptr, *kernel.Error) {
	entry, err := w.LookupEntry(pgdir, virtAddr, false)
	if err != nil {
		return 0, err
	}

	pte := entry.Load()
	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}
