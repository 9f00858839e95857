package allocator

import (
	"runtime"

	"kmem/kernel"
	"kmem/kernel/kfmt"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
	"kmem/kernel/mem/vmm"
	"kmem/kernel/swap"
	"kmem/kernel/sync"
)

var (
	// FrameAllocator is the ClockAllocator instance that serves as the
	// primary allocator for reserving pages.
	FrameAllocator *ClockAllocator

	// The following functions are used by tests to mock calls to
	// kfmt.Panic and runtime.Gosched.
	panicFn = kfmt.Panic
	yieldFn = runtime.Gosched

	// ErrOutOfMemory is returned by AllocFrame when neither the free pool
	// nor a reclaim sweep could supply a frame.
	ErrOutOfMemory = &kernel.Error{Module: "kalloc", Message: "out of memory"}

	errNotInitialized   = &kernel.Error{Module: "kalloc", Message: "allocator used before initialization"}
	errInitOrder        = &kernel.Error{Module: "kinit", Message: "initialization phases invoked out of order"}
	errLayout           = &kernel.Error{Module: "kinit", Message: "physical memory smaller than layout PhysTop"}
	errFreeMisaligned   = &kernel.Error{Module: "kfree", Message: "frame address is not page aligned"}
	errFreeBelowKernel  = &kernel.Error{Module: "kfree", Message: "frame address below kernel end"}
	errFreeAbovePhysTop = &kernel.Error{Module: "kfree", Message: "frame address beyond top of physical memory"}
	errDoubleFree       = &kernel.Error{Module: "kfree", Message: "frame is already free"}
	errNoSwapSpace      = &kernel.Error{Module: "reclaim", Message: "no swap space available for victim page"}
	errAlreadyMapped    = &kernel.Error{Module: "kalloc", Message: "user address is already mapped"}
	errUserMisaligned   = &kernel.Error{Module: "kalloc", Message: "user address is not page aligned"}
)

// PageTableWalker resolves the last-level page table entry for a user
// virtual address in the address space rooted at pgdir.
type PageTableWalker interface {
	LookupEntry(pgdir pmm.Frame, virtAddr uintptr, alloc bool) (vmm.Entry, *kernel.Error)
}

// SwapSpace reserves swap blocks and persists evicted page contents.
type SwapSpace interface {
	AllocBlock() (swap.Block, *kernel.Error)
	WritePage(page []byte, b swap.Block) *kernel.Error
}

// Config describes the collaborators of a ClockAllocator.
type Config struct {
	// Mem is the physical memory managed by the allocator.
	Mem mem.PhysMem

	// Layout locates the kernel image and the top of physical memory.
	Layout mem.Layout

	// Walker resolves page table entries of user mappings. It is
	// consulted by reclaim and by the user page helpers.
	Walker PageTableWalker

	// Swap receives evicted pages. A nil Swap makes every eviction
	// attempt fatal.
	Swap SwapSpace
}

// Stats is a point in time snapshot of the allocator counters.
type Stats struct {
	TotalFrames   uint32
	FreeFrames    uint32
	RingFrames    uint32
	Evictions     uint64
	ReclaimRuns   uint64
	AllocFailures uint64
}

// ClockAllocator manages the physical frames of a machine. Free frames are
// kept on a stack; frames that back user pages are additionally linked into
// a circular eviction ring that a clock sweep scans for victims when the
// free pool runs dry.
type ClockAllocator struct {
	mu   sync.Spinlock
	mode lockMode

	mem    mem.PhysMem
	layout mem.Layout
	walker PageTableWalker
	swap   SwapSpace

	frames   []frameDesc
	freeHead pmm.Frame
	ringHead pmm.Frame

	freeCount uint32
	ringCount uint32

	// inflight holds the swap blocks whose page write is still running.
	inflight map[swap.Block]struct{}

	evictions     uint64
	reclaimRuns   uint64
	allocFailures uint64
}

// New returns an allocator bound to the supplied collaborators. The
// allocator must be initialized with InitPhaseOne before use.
func New(cfg Config) *ClockAllocator {
	return &ClockAllocator{
		mem:      cfg.Mem,
		layout:   cfg.Layout,
		walker:   cfg.Walker,
		swap:     cfg.Swap,
		freeHead: pmm.InvalidFrame,
		ringHead: pmm.InvalidFrame,
		inflight: make(map[swap.Block]struct{}),
	}
}

func (a *ClockAllocator) acquire() {
	if a.mode == modeMultiThreaded {
		a.mu.Acquire()
	}
}

func (a *ClockAllocator) release() {
	if a.mode == modeMultiThreaded {
		a.mu.Release()
	}
}

// InitPhaseOne builds the frame metadata table and seeds the free pool with
// the frames in [vstart, vend). It runs while a single processor is active
// so the allocator lock stays disabled. Frames seeded here are not linked
// into the eviction ring.
func (a *ClockAllocator) InitPhaseOne(vstart, vend uintptr) *kernel.Error {
	if a.mode != modeUninitialized {
		panicFn(errInitOrder)
		return errInitOrder
	}

	if uintptr(len(a.mem)) < a.layout.PhysTop {
		panicFn(errLayout)
		return errLayout
	}

	a.frames = initFrameTable(a.layout)
	a.freeHead, a.ringHead = pmm.InvalidFrame, pmm.InvalidFrame
	a.freeCount, a.ringCount = 0, 0
	a.mode.advance(modeSingleThreaded)

	if err := a.freeRange(vstart, vend, false); err != nil {
		return err
	}

	kfmt.Printf("[kinit] phase one: %d/%d frames free\n", a.freeCount, len(a.frames))
	return nil
}

// InitPhaseTwo releases the frames in [vstart, vend) into the free pool and
// the eviction ring and then enables the allocator lock. It must follow
// InitPhaseOne.
func (a *ClockAllocator) InitPhaseTwo(vstart, vend uintptr) *kernel.Error {
	if a.mode != modeSingleThreaded {
		panicFn(errInitOrder)
		return errInitOrder
	}

	if err := a.freeRange(vstart, vend, true); err != nil {
		return err
	}

	a.mode.advance(modeMultiThreaded)
	kfmt.Printf("[kinit] phase two: %d/%d frames free, %d in eviction ring\n", a.freeCount, len(a.frames), a.ringCount)
	return nil
}

// freeRange releases every whole page inside [vstart, vend).
func (a *ClockAllocator) freeRange(vstart, vend uintptr, linkRing bool) *kernel.Error {
	for kva := mem.PageRoundUp(vstart); kva+uintptr(mem.PageSize) <= vend; kva += uintptr(mem.PageSize) {
		if err := a.checkHandle(kva); err != nil {
			panicFn(err)
			return err
		}

		mem.Memset(a.page(kva), mem.JunkByte)
		if err := a.releaseLocked(a.frameOf(kva), linkRing); err != nil {
			return err
		}
	}

	return nil
}

// AllocFrame reserves a frame and returns its kernel virtual address. The
// frame contents are the junk left by the last release and must be
// initialized by the caller. When the free pool is empty AllocFrame runs the
// reclaim sweep once and retries; if that fails too it logs the condition and
// returns an error.
func (a *ClockAllocator) AllocFrame() (uintptr, *kernel.Error) {
	if a.mode == modeUninitialized {
		panicFn(errNotInitialized)
		return 0, errNotInitialized
	}

	a.acquire()
	for reclaimed := false; ; reclaimed = true {
		if frame := a.popFree(); frame.Valid() {
			a.release()
			return a.layout.P2V(frame.Address()), nil
		}

		if reclaimed || !a.reclaim() {
			break
		}
	}
	a.allocFailures++
	a.release()

	kfmt.Printf("kalloc: out of memory\n")
	return 0, ErrOutOfMemory
}

// FreeFrame returns the frame at kva to the free pool and appends it to the
// tail of the eviction ring. The frame is filled with junk to catch dangling
// references. Releasing a misaligned, out of range or already free frame is
// fatal.
func (a *ClockAllocator) FreeFrame(kva uintptr) {
	if a.mode == modeUninitialized {
		panicFn(errNotInitialized)
		return
	}

	if err := a.checkHandle(kva); err != nil {
		panicFn(err)
		return
	}

	mem.Memset(a.page(kva), mem.JunkByte)

	a.acquire()
	_ = a.releaseLocked(a.frameOf(kva), true)
	a.release()
}

// releaseLocked pushes frame on the free pool, forgets its user mapping and,
// if linkRing is set, moves it to the ring tail. The caller must hold the
// allocator lock.
func (a *ClockAllocator) releaseLocked(frame pmm.Frame, linkRing bool) *kernel.Error {
	d := &a.frames[frame]
	if d.free {
		panicFn(errDoubleFree)
		return errDoubleFree
	}

	d.clearOwner(frame)
	a.pushFree(frame)
	if linkRing {
		a.ringMoveToTail(frame)
	}

	return nil
}

// checkHandle validates a frame handle passed in by a caller.
func (a *ClockAllocator) checkHandle(kva uintptr) *kernel.Error {
	switch {
	case !mem.PageAligned(kva):
		return errFreeMisaligned
	case kva < a.layout.KernelEnd:
		return errFreeBelowKernel
	case a.layout.V2P(kva) >= a.layout.PhysTop:
		return errFreeAbovePhysTop
	}

	return nil
}

func (a *ClockAllocator) frameOf(kva uintptr) pmm.Frame {
	return pmm.FrameFromAddress(a.layout.V2P(kva))
}

func (a *ClockAllocator) page(kva uintptr) []byte {
	return a.mem.Page(a.layout.V2P(kva))
}

// PageTableFrame reserves a frame for a page table. It adapts AllocFrame to
// the vmm.FrameAllocatorFn signature.
func (a *ClockAllocator) PageTableFrame() (pmm.Frame, *kernel.Error) {
	kva, err := a.AllocFrame()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	return a.frameOf(kva), nil
}

// MapUserPage allocates a frame and maps it at uva in the address space
// rooted at pgdir with the supplied flags plus the present and user bits. The
// frame becomes an eviction candidate. It returns the kernel virtual address
// of the frame so the caller can fill it.
func (a *ClockAllocator) MapUserPage(pgdir pmm.Frame, uva uintptr, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error) {
	if !mem.PageAligned(uva) {
		return 0, errUserMisaligned
	}

	// Missing page tables are allocated through AllocFrame so the lookup
	// must not run with the lock held.
	entry, err := a.walker.LookupEntry(pgdir, uva, true)
	if err != nil {
		return 0, err
	}

	kva, err := a.AllocFrame()
	if err != nil {
		return 0, err
	}
	frame := a.frameOf(kva)

	a.acquire()
	if entry.Load().HasAnyFlag(vmm.FlagPresent | vmm.FlagSwapped) {
		a.release()
		a.FreeFrame(kva)
		return 0, errAlreadyMapped
	}

	var pte vmm.PageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags | vmm.FlagPresent | vmm.FlagUserAccessible)
	entry.Store(pte)

	d := &a.frames[frame]
	d.owner, d.vaddr = pgdir, uva
	if !a.inRing(frame) {
		a.ringInsertTail(frame)
	}
	a.release()

	return kva, nil
}

// UnmapUserPage removes the mapping for uva from the address space rooted at
// pgdir. A resident page is released back to the allocator. For a page that
// was swapped out, UnmapUserPage returns its swap block and true; the caller
// owns the block from then on.
func (a *ClockAllocator) UnmapUserPage(pgdir pmm.Frame, uva uintptr) (swap.Block, bool, *kernel.Error) {
	entry, err := a.walker.LookupEntry(pgdir, uva, false)
	if err != nil {
		return swap.InvalidBlock, false, err
	}

	for {
		a.acquire()
		pte := entry.Load()

		switch {
		case pte.HasFlags(vmm.FlagSwapped):
			block := swap.Block(pte.SwapBlock())
			if a.inflightBlock(block) {
				// The page is still being written out.
				a.release()
				yieldFn()
				continue
			}

			entry.Store(0)
			a.release()
			return block, true, nil

		case pte.HasFlags(vmm.FlagPresent):
			frame := pte.Frame()
			entry.Store(0)
			if uint64(frame) < uint64(len(a.frames)) {
				a.frames[frame].clearOwner(frame)
			}
			a.release()

			a.FreeFrame(a.layout.P2V(frame.Address()))
			return swap.InvalidBlock, false, nil

		default:
			a.release()
			return swap.InvalidBlock, false, vmm.ErrInvalidMapping
		}
	}
}

// Stats returns a snapshot of the allocator counters.
func (a *ClockAllocator) Stats() Stats {
	a.acquire()
	defer a.release()

	return Stats{
		TotalFrames:   uint32(len(a.frames)),
		FreeFrames:    a.freeCount,
		RingFrames:    a.ringCount,
		Evictions:     a.evictions,
		ReclaimRuns:   a.reclaimRuns,
		AllocFailures: a.allocFailures,
	}
}

// Init sets up the global FrameAllocator and runs the first initialization
// phase over [vstart, vend).
func Init(cfg Config, vstart, vend uintptr) *kernel.Error {
	FrameAllocator = New(cfg)
	return FrameAllocator.InitPhaseOne(vstart, vend)
}

// InitPhaseTwo runs the second initialization phase of the global
// FrameAllocator.
func InitPhaseTwo(vstart, vend uintptr) *kernel.Error {
	if FrameAllocator == nil {
		panicFn(errInitOrder)
		return errInitOrder
	}
	return FrameAllocator.InitPhaseTwo(vstart, vend)
}

// AllocFrame is a helper that delegates a frame allocation request to the
// global FrameAllocator.
func AllocFrame() (uintptr, *kernel.Error) {
	if FrameAllocator == nil {
		panicFn(errNotInitialized)
		return 0, errNotInitialized
	}
	return FrameAllocator.AllocFrame()
}

// FreeFrame is a helper that returns a frame to the global FrameAllocator.
func FreeFrame(kva uintptr) {
	if FrameAllocator == nil {
		panicFn(errNotInitialized)
		return
	}
	FrameAllocator.FreeFrame(kva)
}
