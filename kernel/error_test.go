package kernel

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	specs := []struct {
		err *Error
		exp string
	}{
		{&Error{Module: "kalloc", Message: "out of memory"}, "kalloc: out of memory"},
		{&Error{Message: "no module"}, "no module"},
	}

	for _, spec := range specs {
		if got := spec.err.Error(); got != spec.exp {
			t.Errorf("expected %q; got %q", spec.exp, got)
		}
	}
}

func TestErrorIdentity(t *testing.T) {
	errFull := &Error{Module: "swap", Message: "no free swap blocks"}
	wrapped := fmt.Errorf("evicting frame: %w", errFull)

	if !errors.Is(wrapped, errFull) {
		t.Fatal("expected errors.Is to match the wrapped kernel error")
	}

	var kerr *Error
	if !errors.As(wrapped, &kerr) || kerr.Module != "swap" {
		t.Fatalf("expected errors.As to recover the kernel error; got %v", kerr)
	}

	if errors.Is(wrapped, &Error{Module: "swap", Message: "no free swap blocks"}) {
		t.Fatal("expected kernel errors to compare by identity")
	}
}
