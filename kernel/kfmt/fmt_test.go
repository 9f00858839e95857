package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0
	}()

	var buf bytes.Buffer
	SetOutputSink(&buf)

	specs := []struct {
		format    string
		args      []interface{}
		expOutput string
	}{
		{"no args", nil, "no args"},
		{"[%s] frame %d", []interface{}{"pmm", 42}, "[pmm] frame 42"},
		{"addr: 0x%x", []interface{}{uintptr(0x80104000)}, "addr: 0x80104000"},
		{"%4d|", []interface{}{7}, "   7|"},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		Printf(spec.format, spec.args...)

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0
	}()

	outputSink = nil
	earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0

	Printf("[boot] %d frames\n", 16)
	Printf("[boot] locking enabled\n")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "[boot] 16 frames\n[boot] locking enabled\n", buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to replay %q; got %q", exp, got)
	}

	// Once replayed, the early buffer must be empty
	buf.Reset()
	SetOutputSink(&buf)
	if buf.Len() != 0 {
		t.Fatalf("expected early buffer to be drained; got %q", buf.String())
	}
}
