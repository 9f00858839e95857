package kfmt

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRingBufferDrain(t *testing.T) {
	var rb ringBuffer

	if n, err := rb.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Fatalf("expected an empty buffer to return (0, io.EOF); got (%d, %v)", n, err)
	}

	msg := "[kinit] phase one: 16 frames\n"
	if n, _ := rb.Write([]byte(msg)); n != len(msg) {
		t.Fatalf("expected Write to report %d bytes; got %d", len(msg), n)
	}

	if got := rb.Len(); got != len(msg) {
		t.Fatalf("expected Len to be %d; got %d", len(msg), got)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, &rb); err != nil {
		t.Fatal(err)
	}

	if out.String() != msg {
		t.Fatalf("expected to drain %q; got %q", msg, out.String())
	}

	if rb.Len() != 0 {
		t.Fatalf("expected drained buffer to be empty; got %d bytes", rb.Len())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	var rb ringBuffer

	// Move the indices close to the end so the next write wraps.
	rb.rIndex, rb.wIndex = ringBufferSize-3, ringBufferSize-3

	rb.Write([]byte("abcdef"))
	if rb.wIndex != 3 {
		t.Fatalf("expected write index to wrap to 3; got %d", rb.wIndex)
	}

	small := make([]byte, 16)
	n, _ := rb.Read(small)
	if got := string(small[:n]); got != "abc" {
		t.Fatalf("expected first read to stop at the buffer end with %q; got %q", "abc", got)
	}

	n, _ = rb.Read(small)
	if got := string(small[:n]); got != "def" {
		t.Fatalf("expected second read to return %q; got %q", "def", got)
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	var rb ringBuffer

	rb.Write([]byte(strings.Repeat("x", ringBufferSize)))
	rb.Write([]byte("tail"))

	if exp := ringBufferSize - 1; rb.Len() != exp {
		t.Fatalf("expected a full buffer to hold %d bytes; got %d", exp, rb.Len())
	}

	var out bytes.Buffer
	io.Copy(&out, &rb)

	if !strings.HasSuffix(out.String(), "tail") {
		t.Fatal("expected the most recent bytes to survive an overflow")
	}

	if strings.Count(out.String(), "x") != ringBufferSize-1-len("tail") {
		t.Fatalf("expected the oldest bytes to be discarded; got %d", strings.Count(out.String(), "x"))
	}
}
