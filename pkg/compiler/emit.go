package compiler

import (
	"math"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// --- Bytecode Emission Helpers ---

func (c *Compiler) emitOpCode(op vm.OpCode) {
	c.fs.chunk.WriteOpCode(op, c.line)
}

func (c *Compiler) emitByte(b byte) {
	c.fs.chunk.WriteOperand(b)
}

func (c *Compiler) emitUint16(val uint16) {
	c.fs.chunk.WriteUint16(val)
}

func (c *Compiler) emitLoadConstant(dest Register, v vm.Value) {
	c.emitOpCode(vm.OpLoadConst)
	c.emitByte(byte(dest))
	c.emitUint16(c.constant(v))
}

func (c *Compiler) emitLoadUndefined(dest Register) {
	c.emitOpCode(vm.OpLoadUndefined)
	c.emitByte(byte(dest))
}

func (c *Compiler) emitMove(dest, src Register) {
	c.emitOpCode(vm.OpMove)
	c.emitByte(byte(dest))
	c.emitByte(byte(src))
}

func (c *Compiler) emitReturn(src Register) {
	c.emitOpCode(vm.OpReturn)
	c.emitByte(byte(src))
}

// emitBinary emits a three register instruction.
func (c *Compiler) emitBinary(op vm.OpCode, dest, left, right Register) {
	c.emitOpCode(op)
	c.emitByte(byte(dest))
	c.emitByte(byte(left))
	c.emitByte(byte(right))
}

// emitUnary emits a two register instruction.
func (c *Compiler) emitUnary(op vm.OpCode, dest, src Register) {
	c.emitOpCode(op)
	c.emitByte(byte(dest))
	c.emitByte(byte(src))
}

func (c *Compiler) emitGetProp(dest, obj Register, name string) {
	c.emitOpCode(vm.OpGetProp)
	c.emitByte(byte(dest))
	c.emitByte(byte(obj))
	c.emitUint16(c.nameConstant(name))
}

func (c *Compiler) emitSetProp(obj Register, name string, src Register) {
	c.emitOpCode(vm.OpSetProp)
	c.emitByte(byte(obj))
	c.emitUint16(c.nameConstant(name))
	c.emitByte(byte(src))
}

func (c *Compiler) emitCall(op vm.OpCode, dest, funcReg Register, argCount int) {
	c.emitOpCode(op)
	c.emitByte(byte(dest))
	c.emitByte(byte(funcReg))
	c.emitByte(byte(argCount))
}

func (c *Compiler) emitCallMethod(dest, funcReg, thisReg Register, argCount int) {
	c.emitOpCode(vm.OpCallMethod)
	c.emitByte(byte(dest))
	c.emitByte(byte(funcReg))
	c.emitByte(byte(thisReg))
	c.emitByte(byte(argCount))
}

func (c *Compiler) emitPopWith(n int) {
	for ; n > 0; n-- {
		c.emitOpCode(vm.OpPopWith)
	}
}

// --- Jumps ---

// currentPosition returns the offset of the next instruction.
func (c *Compiler) currentPosition() int {
	return len(c.fs.chunk.Code)
}

// emitPlaceholderJump emits a forward jump and returns the offset of its
// operand for patchJump. Conditional jumps test srcReg.
func (c *Compiler) emitPlaceholderJump(op vm.OpCode, srcReg Register) int {
	c.emitOpCode(op)
	if op != vm.OpJump {
		c.emitByte(byte(srcReg))
	}
	pos := c.currentPosition()
	c.emitUint16(0xFFFF)
	return pos
}

// patchJump points the jump whose operand is at pos to the current
// position.
func (c *Compiler) patchJump(pos int) {
	c.patchJumpTo(pos, c.currentPosition())
}

func (c *Compiler) patchJumpTo(pos, target int) {
	offset := target - (pos + 2)
	if offset > math.MaxInt16 || offset < math.MinInt16 {
		c.addErrorAt(c.line, "jump too large, function body is too long")
		return
	}
	c.fs.chunk.PatchUint16(pos, uint16(int16(offset)))
}

// emitLoop emits a backward jump to target.
func (c *Compiler) emitLoop(target int) {
	pos := c.emitPlaceholderJump(vm.OpJump, 0)
	c.patchJumpTo(pos, target)
}
