package vmm

const (
	// pageLevels indicates the number of page levels supported by the
	// two-level (non-PAE) x86 paging scheme.
	pageLevels = 2

	// ptePhysPageMask is a mask that allows us to extract the physical
	// memory address pointed to by a page table entry.
	ptePhysPageMask = uintptr(0xfffff000)

	// pteSwapShift is the bit position of the swap block number stored in
	// a swapped-out entry.
	pteSwapShift = 12

	// entrySize is the size in bytes of a page table entry.
	entrySize = 4
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. For the x86 two-level scheme each page
	// level uses 10 bits which amounts to 1024 entries for each page level.
	pageLevelBits = [pageLevels]uint8{
		10,
		10,
	}

	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		22,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set if when using 4Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagSwapped uses the first software-available bit to mark an entry
	// whose page contents live in a swap block. The block number replaces
	// the physical frame address.
	FlagSwapped
)
