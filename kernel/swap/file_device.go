package swap

import (
	"fmt"
	"os"
)

// FileDevice is a swap device backed by a regular file. Block b lives at
// offset b*BlockSize.
type FileDevice struct {
	f          *os.File
	blockCount uint32
}

// OpenFileDevice creates (or truncates) the file at path and sizes it for
// blockCount blocks.
func OpenFileDevice(path string, blockCount uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap file %s: %w", path, err)
	}

	if err = f.Truncate(int64(blockCount) * int64(BlockSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size swap file %s: %w", path, err)
	}

	return &FileDevice{f: f, blockCount: blockCount}, nil
}

// BlockCount implements Device.
func (d *FileDevice) BlockCount() uint32 {
	return d.blockCount
}

// ReadBlock implements Device.
func (d *FileDevice) ReadBlock(b Block, dst []byte) error {
	if uint32(b) >= d.blockCount {
		return fmt.Errorf("block %d out of range [0, %d)", b, d.blockCount)
	}

	if _, err := d.f.ReadAt(dst[:BlockSize], int64(b)*int64(BlockSize)); err != nil {
		return fmt.Errorf("read block %d: %w", b, err)
	}
	return nil
}

// WriteBlock implements Device.
func (d *FileDevice) WriteBlock(b Block, src []byte) error {
	if uint32(b) >= d.blockCount {
		return fmt.Errorf("block %d out of range [0, %d)", b, d.blockCount)
	}

	if _, err := d.f.WriteAt(src[:BlockSize], int64(b)*int64(BlockSize)); err != nil {
		return fmt.Errorf("write block %d: %w", b, err)
	}
	return nil
}

// Close implements Device.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
