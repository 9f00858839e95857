package vmm

import (
	"testing"

	"kmem/kernel/mem/pmm"
)

func TestMapTranslateUnmap(t *testing.T) {
	w, _ := testWalker(8)
	pgdir, err := w.NewPageDirectory()
	if err != nil {
		t.Fatal(err)
	}

	var (
		virtAddr = uintptr(0x1234000)
		frame    = pmm.Frame(7)
	)

	if err = w.Map(pgdir, virtAddr, frame, FlagRW|FlagUserAccessible); err != nil {
		t.Fatal(err)
	}

	physAddr, err := w.Translate(pgdir, virtAddr+0x10)
	if err != nil {
		t.Fatal(err)
	}

	if exp := frame.Address() + 0x10; physAddr != exp {
		t.Fatalf("expected Translate to return 0x%x; got 0x%x", exp, physAddr)
	}

	old, err := w.Unmap(pgdir, virtAddr)
	if err != nil {
		t.Fatal(err)
	}

	if !old.HasFlags(FlagPresent|FlagRW|FlagUserAccessible) || old.Frame() != frame {
		t.Fatalf("expected Unmap to return the previous mapping; got 0x%x", old)
	}

	if _, err = w.Translate(pgdir, virtAddr); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping after Unmap; got %v", err)
	}
}

func TestTranslateSwappedEntry(t *testing.T) {
	w, _ := testWalker(8)
	pgdir, _ := w.NewPageDirectory()

	entry, err := w.LookupEntry(pgdir, 0x5000, true)
	if err != nil {
		t.Fatal(err)
	}
	entry.Store(SwappedEntry(3))

	if _, err = w.Translate(pgdir, 0x5000); err != ErrInvalidMapping {
		t.Fatalf("expected swapped page not to translate; got %v", err)
	}
}

func TestTouch(t *testing.T) {
	w, _ := testWalker(8)
	pgdir, _ := w.NewPageDirectory()

	if err := w.Touch(pgdir, 0x3000); err != ErrInvalidMapping {
		t.Fatalf("expected touching an unmapped page to fail; got %v", err)
	}

	if err := w.Map(pgdir, 0x3000, pmm.Frame(6), FlagUserAccessible); err != nil {
		t.Fatal(err)
	}

	if err := w.Touch(pgdir, 0x3000); err != nil {
		t.Fatal(err)
	}

	entry, _ := w.LookupEntry(pgdir, 0x3000, false)
	if !entry.Load().HasFlags(FlagAccessed) {
		t.Fatal("expected Touch to set the accessed bit")
	}

	if _, err := w.Unmap(pgdir, 0x3000); err != nil {
		t.Fatal(err)
	}

	if err := w.Touch(pgdir, 0x3000); err != ErrInvalidMapping {
		t.Fatalf("expected touching an unmapped page to fail; got %v", err)
	}
}

func TestPageOffset(t *testing.T) {
	specs := []struct {
		virtAddr  uintptr
		expOffset uintptr
	}{
		{0, 0},
		{0x1fff, 0xfff},
		{0xdeadbeef, 0xeef},
	}

	for specIndex, spec := range specs {
		if got := PageOffset(spec.virtAddr); got != spec.expOffset {
			t.Errorf("[spec %d] expected offset 0x%x; got 0x%x", specIndex, spec.expOffset, got)
		}
	}
}

func TestReleasePageDirectory(t *testing.T) {
	w, allocCount := testWalker(8)
	pgdir, _ := w.NewPageDirectory()

	// Two mappings 4M apart need two page tables.
	for _, virtAddr := range []uintptr{0x1000, 0x401000} {
		if err := w.Map(pgdir, virtAddr, pmm.Frame(7), FlagUserAccessible); err != nil {
			t.Fatal(err)
		}
	}

	if *allocCount != 3 {
		t.Fatalf("expected 3 frames to be allocated; got %d", *allocCount)
	}

	var released []pmm.Frame
	if err := w.ReleasePageDirectory(pgdir, func(f pmm.Frame) { released = append(released, f) }); err != nil {
		t.Fatal(err)
	}

	exp := []pmm.Frame{2, 3, pgdir}
	if len(released) != len(exp) {
		t.Fatalf("expected released frames %v; got %v", exp, released)
	}
	for i := range exp {
		if released[i] != exp[i] {
			t.Fatalf("expected released frames %v; got %v", exp, released)
		}
	}

	if _, err := w.LookupEntry(pgdir, 0x1000, false); err != ErrInvalidMapping {
		t.Fatalf("expected page tables to be detached; got %v", err)
	}

	if err := w.ReleasePageDirectory(pmm.InvalidFrame, nil); err != errPageDirOutOfRange {
		t.Fatalf("expected errPageDirOutOfRange; got %v", err)
	}
}

func TestTouchSwappedEntry(t *testing.T) {
	w, _ := testWalker(8)
	pgdir, _ := w.NewPageDirectory()

	entry, err := w.LookupEntry(pgdir, 0x5000, true)
	if err != nil {
		t.Fatal(err)
	}

	swapped := SwappedEntry(9)
	entry.Store(swapped)

	if err := w.Touch(pgdir, 0x5000); err != ErrInvalidMapping {
		t.Fatalf("expected touching a swapped page to fail; got %v", err)
	}

	if got := entry.Load(); got != swapped {
		t.Fatalf("expected swapped entry 0x%x to be left untouched; got 0x%x", swapped, got)
	}
}
