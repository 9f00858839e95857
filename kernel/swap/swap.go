// Package swap implements the swap backing store used by the page replacement
// code: a block allocator over a block device whose blocks are one page long.
package swap

import (
	"math/bits"

	"kmem/kernel"
	"kmem/kernel/kfmt"
	"kmem/kernel/mem"
	"kmem/kernel/sync"
)

// Block identifies a page-sized block on the swap device.
type Block uint32

// InvalidBlock is returned when no block could be reserved.
const InvalidBlock = ^Block(0)

// BlockSize is the size in bytes of a swap block.
const BlockSize = int(mem.PageSize)

var (
	// ErrNoSwapSpace is returned by AllocBlock when every block is in use.
	ErrNoSwapSpace = &kernel.Error{Module: "swap", Message: "no swap space available"}

	errBlockOutOfRange = &kernel.Error{Module: "swap", Message: "block number outside swap device"}
	errDoubleFree      = &kernel.Error{Module: "swap", Message: "freeing a swap block that is not in use"}
	errShortBuffer     = &kernel.Error{Module: "swap", Message: "page buffer is not one block long"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// Device is a block device that stores swapped-out pages.
type Device interface {
	// BlockCount returns the number of blocks the device can hold.
	BlockCount() uint32

	// ReadBlock copies the contents of block b into dst.
	ReadBlock(b Block, dst []byte) error

	// WriteBlock stores src into block b.
	WriteBlock(b Block, src []byte) error

	// Close releases the resources held by the device.
	Close() error
}

// Manager hands out swap blocks and moves pages between memory and the swap
// device. Block bookkeeping is protected by a spinlock; device I/O runs
// without holding it.
type Manager struct {
	lock sync.Spinlock
	dev  Device

	// usedBitmap has one bit per block; bit set means in use.
	usedBitmap []uint64
	blockCount uint32
	freeCount  uint32

	// nextHint is the bitmap word where the next search starts.
	nextHint int
}

// NewManager creates a Manager for dev. A nil device yields a manager
// without any swap space.
func NewManager(dev Device) *Manager {
	m := &Manager{dev: dev}
	if dev != nil {
		m.blockCount = dev.BlockCount()
	}

	m.freeCount = m.blockCount
	m.usedBitmap = make([]uint64, (m.blockCount+63)>>6)
	return m
}

// TotalBlocks returns the number of blocks managed by m.
func (m *Manager) TotalBlocks() uint32 {
	return m.blockCount
}

// FreeBlocks returns the number of unreserved blocks.
func (m *Manager) FreeBlocks() uint32 {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.freeCount
}

// AllocBlock reserves a free block or returns ErrNoSwapSpace.
func (m *Manager) AllocBlock() (Block, *kernel.Error) {
	m.lock.Acquire()
	defer m.lock.Release()

	if m.freeCount == 0 {
		return InvalidBlock, ErrNoSwapSpace
	}

	words := len(m.usedBitmap)
	for i := 0; i < words; i++ {
		wordIndex := (m.nextHint + i) % words
		word := m.usedBitmap[wordIndex]
		if word == ^uint64(0) {
			continue
		}

		bitIndex := bits.TrailingZeros64(^word)
		block := Block(wordIndex<<6 + bitIndex)
		if uint32(block) >= m.blockCount {
			continue
		}

		m.usedBitmap[wordIndex] |= 1 << uint(bitIndex)
		m.freeCount--
		m.nextHint = wordIndex
		return block, nil
	}

	return InvalidBlock, ErrNoSwapSpace
}

// FreeBlock returns b to the pool of free blocks. Freeing a block that is
// not in use is a kernel bug and halts the machine.
func (m *Manager) FreeBlock(b Block) {
	m.lock.Acquire()
	defer m.lock.Release()

	if uint32(b) >= m.blockCount {
		panicFn(errBlockOutOfRange)
		return
	}

	wordIndex, mask := b>>6, uint64(1)<<(b&63)
	if m.usedBitmap[wordIndex]&mask == 0 {
		panicFn(errDoubleFree)
		return
	}

	m.usedBitmap[wordIndex] &^= mask
	m.freeCount++
}

// WritePage stores a page worth of data into block b.
func (m *Manager) WritePage(page []byte, b Block) *kernel.Error {
	if err := m.checkIO(page, b); err != nil {
		return err
	}

	if err := m.dev.WriteBlock(b, page); err != nil {
		return &kernel.Error{Module: "swap", Message: "write failed: " + err.Error()}
	}

	return nil
}

// ReadPage loads the contents of block b into dst.
func (m *Manager) ReadPage(dst []byte, b Block) *kernel.Error {
	if err := m.checkIO(dst, b); err != nil {
		return err
	}

	if err := m.dev.ReadBlock(b, dst); err != nil {
		return &kernel.Error{Module: "swap", Message: "read failed: " + err.Error()}
	}

	return nil
}

func (m *Manager) checkIO(buf []byte, b Block) *kernel.Error {
	if uint32(b) >= m.blockCount {
		return errBlockOutOfRange
	}

	if len(buf) != BlockSize {
		return errShortBuffer
	}

	return nil
}
