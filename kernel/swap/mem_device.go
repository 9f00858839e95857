package swap

import "fmt"

// MemDevice is a swap device backed by a byte slice.
type MemDevice struct {
	data []byte
}

// NewMemDevice returns an in-memory device with room for blockCount blocks.
func NewMemDevice(blockCount uint32) *MemDevice {
	return &MemDevice{data: make([]byte, int(blockCount)*BlockSize)}
}

// BlockCount implements Device.
func (d *MemDevice) BlockCount() uint32 {
	return uint32(len(d.data) / BlockSize)
}

// ReadBlock implements Device.
func (d *MemDevice) ReadBlock(b Block, dst []byte) error {
	off, err := d.offset(b)
	if err != nil {
		return err
	}
	copy(dst, d.data[off:off+BlockSize])
	return nil
}

// WriteBlock implements Device.
func (d *MemDevice) WriteBlock(b Block, src []byte) error {
	off, err := d.offset(b)
	if err != nil {
		return err
	}
	copy(d.data[off:off+BlockSize], src)
	return nil
}

// Close implements Device.
func (d *MemDevice) Close() error {
	return nil
}

func (d *MemDevice) offset(b Block) (int, error) {
	if uint32(b) >= d.BlockCount() {
		return 0, fmt.Errorf("block %d out of range [0, %d)", b, d.BlockCount())
	}
	return int(b) * BlockSize, nil
}
