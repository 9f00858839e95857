package allocator

import (
	"testing"

	"kmem/kernel/mem/pmm"
)

func ringOrder(a *ClockAllocator) []pmm.Frame {
	var order []pmm.Frame
	if !a.ringHead.Valid() {
		return order
	}

	for frame := a.ringHead; ; {
		order = append(order, frame)
		if frame = a.frames[frame].ringNext; frame == a.ringHead {
			return order
		}
	}
}

func expectRing(t *testing.T, a *ClockAllocator, exp ...pmm.Frame) {
	t.Helper()

	if err := a.checkRing(); err != nil {
		t.Fatalf("eviction ring corrupted: %v", err)
	}

	got := ringOrder(a)
	if len(got) != len(exp) {
		t.Fatalf("expected ring %v; got %v", exp, got)
	}

	for i := range exp {
		if got[i] != exp[i] {
			t.Fatalf("expected ring %v; got %v", exp, got)
		}
	}
}

func TestRingOperations(t *testing.T) {
	a := New(Config{Layout: testLayout()})
	a.frames = initFrameTable(a.layout)

	expectRing(t, a)

	a.ringInsertTail(3)
	expectRing(t, a, 3)
	if d := a.frames[3]; d.ringNext != 3 || d.ringPrev != 3 {
		t.Fatal("expected a single ring member to link to itself")
	}

	a.ringInsertTail(5)
	a.ringInsertTail(7)
	expectRing(t, a, 3, 5, 7)

	// Removing a middle frame keeps the head.
	a.ringRemove(5)
	expectRing(t, a, 3, 7)
	if a.inRing(5) {
		t.Fatal("expected frame 5 to be unlinked")
	}

	// Removing the head advances it.
	a.ringRemove(3)
	expectRing(t, a, 7)

	a.ringMoveToTail(5)
	a.ringMoveToTail(7)
	expectRing(t, a, 5, 7)

	a.ringRemove(5)
	a.ringRemove(7)
	expectRing(t, a)
	if a.ringCount != 0 {
		t.Fatalf("expected empty ring count to be 0; got %d", a.ringCount)
	}
}

func TestCheckRing(t *testing.T) {
	newRing := func() *ClockAllocator {
		a := New(Config{Layout: testLayout()})
		a.frames = initFrameTable(a.layout)
		for _, frame := range []pmm.Frame{1, 2, 3} {
			a.ringInsertTail(frame)
		}
		return a
	}

	t.Run("count mismatch", func(t *testing.T) {
		a := newRing()
		a.ringCount = 2
		if err := a.checkRing(); err != errRingCount {
			t.Fatalf("expected error %v; got %v", errRingCount, err)
		}

		a.ringCount = 4
		if err := a.checkRing(); err != errRingCount {
			t.Fatalf("expected error %v; got %v", errRingCount, err)
		}
	})

	t.Run("broken link", func(t *testing.T) {
		a := newRing()
		a.frames[2].ringPrev = 3
		if err := a.checkRing(); err != errRingBrokenLink {
			t.Fatalf("expected error %v; got %v", errRingBrokenLink, err)
		}
	})

	t.Run("empty ring with members counted", func(t *testing.T) {
		a := New(Config{Layout: testLayout()})
		a.ringCount = 1
		if err := a.checkRing(); err != errRingCount {
			t.Fatalf("expected error %v; got %v", errRingCount, err)
		}
	})
}

func TestLockModeAdvance(t *testing.T) {
	var m lockMode

	if m.advance(modeMultiThreaded) {
		t.Fatal("expected skipping the single-threaded mode to be rejected")
	}

	if !m.advance(modeSingleThreaded) || m != modeSingleThreaded {
		t.Fatalf("expected mode %s; got %s", modeSingleThreaded, m)
	}

	if m.advance(modeSingleThreaded) {
		t.Fatal("expected re-entering the current mode to be rejected")
	}

	if !m.advance(modeMultiThreaded) || m != modeMultiThreaded {
		t.Fatalf("expected mode %s; got %s", modeMultiThreaded, m)
	}

	if m.advance(modeMultiThreaded + 1) {
		t.Fatal("expected advancing past the multi-threaded mode to be rejected")
	}

	if got := lockMode(42).String(); got != "unknown" {
		t.Fatalf("expected unknown mode; got %q", got)
	}
}
