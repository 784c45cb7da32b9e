package compiler

import "fmt"

// Debug flag for register allocation tracing
const debugRegAlloc = false

// MaxRegisters is the number of registers addressable by one instruction.
const MaxRegisters = 256

// Register represents a virtual machine register index.
type Register uint8

// RegisterAllocator hands out registers in stack order. Temporaries are
// released by resetting to a mark taken before they were allocated, which
// keeps call arguments contiguous above the callee register.
type RegisterAllocator struct {
	next     int // index of the next register to allocate
	max      int // highest number of registers in use at once
	overflow bool
}

// NewRegisterAllocator creates a new allocator for a function.
func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{}
}

// Alloc allocates the next register. Past the last register it keeps
// returning a valid index and records the overflow for the compiler to
// report.
func (ra *RegisterAllocator) Alloc() Register {
	reg := ra.next
	ra.next++
	if ra.next > ra.max {
		ra.max = ra.next
	}
	if reg >= MaxRegisters {
		ra.overflow = true
		reg = MaxRegisters - 1
	}
	if debugRegAlloc {
		fmt.Printf("[REGALLOC] NEW R%d (next %d, max %d)\n", reg, ra.next, ra.max)
	}
	return Register(reg)
}

// AllocContiguous allocates count consecutive registers and returns the
// first.
func (ra *RegisterAllocator) AllocContiguous(count int) Register {
	if count <= 0 {
		return Register(min(ra.next, MaxRegisters-1))
	}
	first := ra.Alloc()
	for i := 1; i < count; i++ {
		ra.Alloc()
	}
	return first
}

// Mark returns the allocation state to hand to Reset.
func (ra *RegisterAllocator) Mark() int { return ra.next }

// Reset releases every register allocated since mark.
func (ra *RegisterAllocator) Reset(mark int) {
	if debugRegAlloc && mark != ra.next {
		fmt.Printf("[REGALLOC] RESET to %d (released %d)\n", mark, ra.next-mark)
	}
	ra.next = mark
}

// MaxRegs returns the frame size needed by the function.
func (ra *RegisterAllocator) MaxRegs() int { return min(ra.max, MaxRegisters) }

// Overflowed reports whether more registers were requested than exist.
func (ra *RegisterAllocator) Overflowed() bool { return ra.overflow }

// InUse returns the number of currently allocated registers.
func (ra *RegisterAllocator) InUse() int { return ra.next }
