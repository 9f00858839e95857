package mem

import "testing"

func TestMemset(t *testing.T) {
	// memset with an empty slice should be a no-op
	Memset(nil, 0x00)

	for pageCount := uint32(0); pageCount <= 6; pageCount++ {
		buf := make([]byte, PageSize<<pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		Memset(buf, JunkByte)

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != JunkByte {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x%x; got 0x%x", 1<<pageCount, i, JunkByte, got)
				break
			}
		}
	}

	// Odd sized blocks must be fully covered too
	buf := make([]byte, 1000)
	Memset(buf, 0xAA)
	for i, b := range buf {
		if b != 0xAA {
			t.Fatalf("expected byte %d of odd sized block to be 0xaa; got 0x%x", i, b)
		}
	}
}
