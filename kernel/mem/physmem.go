package mem

// PhysMem is the machine's RAM: byte i is physical address i.
type PhysMem []byte

// NewPhysMem allocates size bytes of zeroed physical memory. size is rounded
// down to a whole number of pages.
func NewPhysMem(size Size) PhysMem {
	return make(PhysMem, size&^(PageSize-1))
}

// Size returns the amount of physical memory.
func (m PhysMem) Size() Size {
	return Size(len(m))
}

// Page returns the page that starts at physAddr. The returned slice aliases
// physical memory and is capped at the page boundary.
func (m PhysMem) Page(physAddr uintptr) []byte {
	physAddr = PageRoundDown(physAddr)
	return m[physAddr : physAddr+uintptr(PageSize) : physAddr+uintptr(PageSize)]
}
