package compiler

import (
	"testing"
)

func TestBasicAllocation(t *testing.T) {
	ra := NewRegisterAllocator()

	for want := Register(0); want < 3; want++ {
		if got := ra.Alloc(); got != want {
			t.Errorf("Expected register %d, got %d", want, got)
		}
	}
	if ra.MaxRegs() != 3 {
		t.Errorf("Expected MaxRegs 3, got %d", ra.MaxRegs())
	}
}

func TestMarkAndReset(t *testing.T) {
	ra := NewRegisterAllocator()
	ra.Alloc()
	mark := ra.Mark()
	ra.Alloc()
	ra.Alloc()
	ra.Reset(mark)

	if got := ra.Alloc(); got != 1 {
		t.Errorf("Expected register 1 after reset, got %d", got)
	}
	if ra.MaxRegs() != 3 {
		t.Errorf("Expected high-water mark 3, got %d", ra.MaxRegs())
	}
}

func TestAllocContiguous(t *testing.T) {
	ra := NewRegisterAllocator()
	ra.Alloc()
	first := ra.AllocContiguous(4)
	if first != 1 {
		t.Errorf("Expected block to start at 1, got %d", first)
	}
	if ra.InUse() != 5 {
		t.Errorf("Expected 5 registers in use, got %d", ra.InUse())
	}
	if empty := ra.AllocContiguous(0); empty != 5 || ra.InUse() != 5 {
		t.Errorf("Expected empty block at 5 without allocating, got %d (%d in use)", empty, ra.InUse())
	}
}

func TestRegisterOverflow(t *testing.T) {
	ra := NewRegisterAllocator()
	for i := 0; i < MaxRegisters; i++ {
		ra.Alloc()
	}
	if ra.Overflowed() {
		t.Fatalf("Expected %d registers to fit", MaxRegisters)
	}
	if got := ra.Alloc(); got != MaxRegisters-1 {
		t.Errorf("Expected clamped register %d, got %d", MaxRegisters-1, got)
	}
	if !ra.Overflowed() {
		t.Errorf("Expected overflow to be recorded")
	}
	if ra.MaxRegs() != MaxRegisters {
		t.Errorf("Expected MaxRegs to be clamped to %d, got %d", MaxRegisters, ra.MaxRegs())
	}
}
