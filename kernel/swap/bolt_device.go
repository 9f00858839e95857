package swap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var swapBucket = []byte("swap")

// BoltDevice is a swap device that keeps each block as a value in a bolt
// database keyed by the big-endian block number. Blocks that were never
// written read back as zeroes.
type BoltDevice struct {
	db         *bolt.DB
	blockCount uint32
}

// OpenBoltDevice opens (or creates) the bolt database at path.
func OpenBoltDevice(path string, blockCount uint32) (*BoltDevice, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt swap store at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create swap bucket: %w", err)
	}

	return &BoltDevice{db: db, blockCount: blockCount}, nil
}

// BlockCount implements Device.
func (d *BoltDevice) BlockCount() uint32 {
	return d.blockCount
}

// ReadBlock implements Device.
func (d *BoltDevice) ReadBlock(b Block, dst []byte) error {
	if uint32(b) >= d.blockCount {
		return fmt.Errorf("block %d out of range [0, %d)", b, d.blockCount)
	}

	return d.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(swapBucket).Get(blockKey(b))
		if val == nil {
			for i := range dst[:BlockSize] {
				dst[i] = 0
			}
			return nil
		}

		if len(val) != BlockSize {
			return errors.New("corrupt swap block")
		}

		// val is only valid for the lifetime of the transaction
		copy(dst, val)
		return nil
	})
}

// WriteBlock implements Device.
func (d *BoltDevice) WriteBlock(b Block, src []byte) error {
	if uint32(b) >= d.blockCount {
		return fmt.Errorf("block %d out of range [0, %d)", b, d.blockCount)
	}

	// bolt keeps a reference to the value until the transaction commits
	val := make([]byte, BlockSize)
	copy(val, src)

	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(swapBucket).Put(blockKey(b), val)
	})
}

// Close implements Device.
func (d *BoltDevice) Close() error {
	return d.db.Close()
}

func blockKey(b Block) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(b))
	return key[:]
}
