package vm

import (
	"fmt"
	"strings"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Register machine opcodes. Operands follow the opcode byte: registers
// and counts are one byte, constant/function/slot indices and jump
// offsets are two bytes (big endian, jumps signed and relative to the
// end of the instruction).
const (
	OpLoadConst     OpCode = iota // Rx ConstIdx: Rx = Constants[ConstIdx]
	OpLoadUndefined               // Rx: Rx = undefined
	OpLoadNull                    // Rx: Rx = null
	OpLoadTrue                    // Rx: Rx = true
	OpLoadFalse                   // Rx: Rx = false
	OpMove                        // Rx Ry: Rx = Ry

	// Arithmetic (Dest, Left, Right)
	OpAdd       // Rx Ry Rz: Rx = Ry + Rz
	OpSubtract  // Rx Ry Rz: Rx = Ry - Rz
	OpMultiply  // Rx Ry Rz: Rx = Ry * Rz
	OpDivide    // Rx Ry Rz: Rx = Ry / Rz
	OpRemainder // Rx Ry Rz: Rx = Ry % Rz

	// Bitwise
	OpBitwiseAnd         // Rx Ry Rz: Rx = Ry & Rz
	OpBitwiseOr          // Rx Ry Rz: Rx = Ry | Rz
	OpBitwiseXor         // Rx Ry Rz: Rx = Ry ^ Rz
	OpShiftLeft          // Rx Ry Rz: Rx = Ry << Rz
	OpShiftRight         // Rx Ry Rz: Rx = Ry >> Rz
	OpUnsignedShiftRight // Rx Ry Rz: Rx = Ry >>> Rz

	// Comparison (Result Dest, Left, Right) -> Result is boolean
	OpEqual          // Rx Ry Rz: Rx = (Ry == Rz)
	OpNotEqual       // Rx Ry Rz: Rx = (Ry != Rz)
	OpStrictEqual    // Rx Ry Rz: Rx = (Ry === Rz)
	OpStrictNotEqual // Rx Ry Rz: Rx = (Ry !== Rz)
	OpLess           // Rx Ry Rz: Rx = (Ry < Rz)
	OpLessEqual      // Rx Ry Rz: Rx = (Ry <= Rz)
	OpGreater        // Rx Ry Rz: Rx = (Ry > Rz)
	OpGreaterEqual   // Rx Ry Rz: Rx = (Ry >= Rz)
	OpIn             // Rx Ry Rz: Rx = (Ry in Rz)
	OpInstanceof     // Rx Ry Rz: Rx = (Ry instanceof Rz)

	// Unary
	OpNegate     // Rx Ry: Rx = -Ry
	OpNot        // Rx Ry: Rx = !Ry
	OpBitwiseNot // Rx Ry: Rx = ~Ry
	OpToNumber   // Rx Ry: Rx = +Ry
	OpTypeof     // Rx Ry: Rx = typeof Ry
	OpTypeofName // Rx NameIdx Mode: Rx = typeof name, "undefined" when unresolvable

	// Variables
	OpGetVar     // Rx Depth Slot: Rx = environment slot, Depth environments up
	OpSetVar     // Rx Depth Slot: environment slot = Rx
	OpGetGlobal  // Rx NameIdx: Rx = global, then QML global, else ReferenceError
	OpSetGlobal  // Rx NameIdx: global (or existing QML global property) = Rx
	OpGetName    // Rx NameIdx: dynamic lookup through with objects and eval scopes
	OpSetName    // Rx NameIdx: dynamic assignment
	OpDeclareVar // NameIdx: declare a var introduced by eval code
	OpDeleteName // Rx NameIdx: Rx = delete name

	// Properties
	OpGetProp    // Rx Ry NameIdx: Rx = Ry.name
	OpSetProp    // Rx NameIdx Ry: Rx.name = Ry
	OpGetIndex   // Rx Ry Rz: Rx = Ry[Rz]
	OpSetIndex   // Rx Ry Rz: Rx[Ry] = Rz
	OpDeleteProp // Rx Ry Rz: Rx = delete Ry[Rz]

	// Literals
	OpMakeArray      // Rx StartReg Count: Rx = [StartReg .. StartReg+Count-1]
	OpArrayAppend    // Rx StartReg Count: push registers onto array Rx
	OpMakeObject     // Rx: Rx = {}
	OpDefineField    // Rx NameIdx Ry: define own data property
	OpDefineAccessor // Rx NameIdx Rget Rset: define own accessor property
	OpMakeRegExp     // Rx PatternIdx FlagsIdx: Rx = new RegExp
	OpClosure        // Rx FuncIdx: Rx = closure over the current scope

	// Calls
	OpCall       // Rx FuncReg ArgCount: args in FuncReg+1.., this undefined
	OpCallMethod // Rx FuncReg ThisReg ArgCount: args in FuncReg+1..
	OpNew        // Rx FuncReg ArgCount: Rx = new FuncReg(args)
	OpDirectEval // Rx FuncReg ArgCount: eval(args) in the caller's scope
	OpReturn     // Rx: return Rx
	OpReturnUndefined

	// Control flow
	OpJump        // Offset
	OpJumpIfFalse // Rx Offset
	OpJumpIfTrue  // Rx Offset
	OpThrow       // Rx

	// Scope and frame state
	OpPushWith      // Rx: push an object environment for Rx
	OpPopWith       //
	OpGetThis       // Rx
	OpLoadArguments // Rx: Rx = arguments object
	OpLoadCallee    // Rx: Rx = the running function

	// for-in
	OpForInPrepare // Rx Ry: Rx = key iterator over Ry
	OpForInNext    // Rx Riter Offset: Rx = next key, jump when exhausted
)

// Operand kinds used by the disassembler.
const (
	opReg   = 'R'
	opConst = 'K'
	opByte  = 'B'
	opSlot  = 'S'
	opJump  = 'J'
	opFunc  = 'F'
)

type opInfo struct {
	name     string
	operands string
}

var opTable = [...]opInfo{
	OpLoadConst:     {"OpLoadConst", "RK"},
	OpLoadUndefined: {"OpLoadUndefined", "R"},
	OpLoadNull:      {"OpLoadNull", "R"},
	OpLoadTrue:      {"OpLoadTrue", "R"},
	OpLoadFalse:     {"OpLoadFalse", "R"},
	OpMove:          {"OpMove", "RR"},

	OpAdd:       {"OpAdd", "RRR"},
	OpSubtract:  {"OpSubtract", "RRR"},
	OpMultiply:  {"OpMultiply", "RRR"},
	OpDivide:    {"OpDivide", "RRR"},
	OpRemainder: {"OpRemainder", "RRR"},

	OpBitwiseAnd:         {"OpBitwiseAnd", "RRR"},
	OpBitwiseOr:          {"OpBitwiseOr", "RRR"},
	OpBitwiseXor:         {"OpBitwiseXor", "RRR"},
	OpShiftLeft:          {"OpShiftLeft", "RRR"},
	OpShiftRight:         {"OpShiftRight", "RRR"},
	OpUnsignedShiftRight: {"OpUnsignedShiftRight", "RRR"},

	OpEqual:          {"OpEqual", "RRR"},
	OpNotEqual:       {"OpNotEqual", "RRR"},
	OpStrictEqual:    {"OpStrictEqual", "RRR"},
	OpStrictNotEqual: {"OpStrictNotEqual", "RRR"},
	OpLess:           {"OpLess", "RRR"},
	OpLessEqual:      {"OpLessEqual", "RRR"},
	OpGreater:        {"OpGreater", "RRR"},
	OpGreaterEqual:   {"OpGreaterEqual", "RRR"},
	OpIn:             {"OpIn", "RRR"},
	OpInstanceof:     {"OpInstanceof", "RRR"},

	OpNegate:     {"OpNegate", "RR"},
	OpNot:        {"OpNot", "RR"},
	OpBitwiseNot: {"OpBitwiseNot", "RR"},
	OpToNumber:   {"OpToNumber", "RR"},
	OpTypeof:     {"OpTypeof", "RR"},
	OpTypeofName: {"OpTypeofName", "RKB"},

	OpGetVar:     {"OpGetVar", "RBS"},
	OpSetVar:     {"OpSetVar", "RBS"},
	OpGetGlobal:  {"OpGetGlobal", "RK"},
	OpSetGlobal:  {"OpSetGlobal", "RK"},
	OpGetName:    {"OpGetName", "RK"},
	OpSetName:    {"OpSetName", "RK"},
	OpDeclareVar: {"OpDeclareVar", "K"},
	OpDeleteName: {"OpDeleteName", "RK"},

	OpGetProp:    {"OpGetProp", "RRK"},
	OpSetProp:    {"OpSetProp", "RKR"},
	OpGetIndex:   {"OpGetIndex", "RRR"},
	OpSetIndex:   {"OpSetIndex", "RRR"},
	OpDeleteProp: {"OpDeleteProp", "RRR"},

	OpMakeArray:      {"OpMakeArray", "RRB"},
	OpArrayAppend:    {"OpArrayAppend", "RRB"},
	OpMakeObject:     {"OpMakeObject", "R"},
	OpDefineField:    {"OpDefineField", "RKR"},
	OpDefineAccessor: {"OpDefineAccessor", "RKRR"},
	OpMakeRegExp:     {"OpMakeRegExp", "RKK"},
	OpClosure:        {"OpClosure", "RF"},

	OpCall:            {"OpCall", "RRB"},
	OpCallMethod:      {"OpCallMethod", "RRRB"},
	OpNew:             {"OpNew", "RRB"},
	OpDirectEval:      {"OpDirectEval", "RRB"},
	OpReturn:          {"OpReturn", "R"},
	OpReturnUndefined: {"OpReturnUndefined", ""},

	OpJump:        {"OpJump", "J"},
	OpJumpIfFalse: {"OpJumpIfFalse", "RJ"},
	OpJumpIfTrue:  {"OpJumpIfTrue", "RJ"},
	OpThrow:       {"OpThrow", "R"},

	OpPushWith:      {"OpPushWith", "R"},
	OpPopWith:       {"OpPopWith", ""},
	OpGetThis:       {"OpGetThis", "R"},
	OpLoadArguments: {"OpLoadArguments", "R"},
	OpLoadCallee:    {"OpLoadCallee", "R"},

	OpForInPrepare: {"OpForInPrepare", "RR"},
	OpForInNext:    {"OpForInNext", "RRJ"},
}

// String returns a human-readable name for the OpCode.
func (op OpCode) String() string {
	if int(op) < len(opTable) && opTable[op].name != "" {
		return opTable[op].name
	}
	return fmt.Sprintf("UnknownOpcode(%d)", op)
}

// Size returns the encoded length of the instruction, opcode included.
func (op OpCode) Size() int {
	n := 1
	if int(op) >= len(opTable) {
		return n
	}
	for _, k := range opTable[op].operands {
		switch k {
		case opReg, opByte:
			n++
		default:
			n += 2
		}
	}
	return n
}

// ExceptionHandler represents an entry in the exception table
type ExceptionHandler struct {
	TryStart  int // PC where the protected range starts (inclusive)
	TryEnd    int // PC where the protected range ends (exclusive)
	HandlerPC int // Where to jump when an exception is caught
	CatchReg  int // Register receiving the exception
	WithDepth int // with-scopes active at the try statement
	IsFinally bool
}

// Chunk represents a sequence of bytecode instructions and associated data.
type Chunk struct {
	Code           []byte             // The bytecode instructions (OpCodes and operands)
	Constants      []Value            // Constant pool
	Functions      []*Function        // Nested functions referenced by OpClosure
	Lines          []int              // Source line of the instruction starting at each offset
	ExceptionTable []ExceptionHandler // Innermost handlers first
}

// NewChunk creates a new, empty Chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// GetLine returns the source line number corresponding to a given bytecode offset.
func (c *Chunk) GetLine(offset int) int {
	for ; offset >= 0; offset-- {
		if offset < len(c.Lines) && c.Lines[offset] > 0 {
			return c.Lines[offset]
		}
	}
	return 0
}

// WriteOpCode adds an opcode to the chunk.
func (c *Chunk) WriteOpCode(op OpCode, line int) {
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
}

// WriteOperand adds a raw byte (operand) to the chunk.
func (c *Chunk) WriteOperand(b byte) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, 0)
}

// WriteUint16 adds a 16-bit operand, encoded big endian.
func (c *Chunk) WriteUint16(val uint16) {
	c.WriteOperand(byte(val >> 8))
	c.WriteOperand(byte(val & 0xff))
}

// PatchUint16 overwrites the 16-bit operand at offset.
func (c *Chunk) PatchUint16(offset int, val uint16) {
	c.Code[offset] = byte(val >> 8)
	c.Code[offset+1] = byte(val & 0xff)
}

// AddConstant adds a value to the chunk's constant pool and returns its
// index. Primitive constants are deduplicated. The second result is false
// when the pool is full.
func (c *Chunk) AddConstant(v Value) (uint16, bool) {
	if v.typ != TypeObject {
		for i, existing := range c.Constants {
			if existing.typ == v.typ && existing.Is(v) {
				return uint16(i), true
			}
		}
	}
	if len(c.Constants) > 0xffff {
		return 0, false
	}
	c.Constants = append(c.Constants, v)
	return uint16(len(c.Constants) - 1), true
}

// AddFunction registers a nested function and returns its index.
func (c *Chunk) AddFunction(fn *Function) (uint16, bool) {
	if len(c.Functions) > 0xffff {
		return 0, false
	}
	c.Functions = append(c.Functions, fn)
	return uint16(len(c.Functions) - 1), true
}

// --- Disassembly ---

// DisassembleChunk returns a human-readable string representation of the chunk.
func (c *Chunk) DisassembleChunk(name string) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("== %s ==\n", name))
	offset := 0
	for offset < len(c.Code) {
		offset = c.disassembleInstruction(&builder, offset)
	}

	if len(c.ExceptionTable) > 0 {
		builder.WriteString("\n=== Exception Table ===\n")
		for i, h := range c.ExceptionTable {
			builder.WriteString(fmt.Sprintf("Handler %d: TryStart=%d, TryEnd=%d, HandlerPC=%d, CatchReg=R%d, IsFinally=%t\n",
				i, h.TryStart, h.TryEnd, h.HandlerPC, h.CatchReg, h.IsFinally))
		}
		builder.WriteString("=======================\n")
	}

	for _, fn := range c.Functions {
		builder.WriteString("\n")
		name := fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		builder.WriteString(fn.Chunk.DisassembleChunk(name))
	}
	return builder.String()
}

// disassembleInstruction appends the string representation of a single
// instruction to the builder and returns the offset of the next one.
func (c *Chunk) disassembleInstruction(builder *strings.Builder, offset int) int {
	builder.WriteString(fmt.Sprintf("%04d %4d ", offset, c.GetLine(offset)))

	op := OpCode(c.Code[offset])
	if int(op) >= len(opTable) || opTable[op].name == "" {
		builder.WriteString(fmt.Sprintf("Unknown opcode %d\n", op))
		return offset + 1
	}
	if offset+op.Size() > len(c.Code) {
		builder.WriteString(fmt.Sprintf("%s (missing operands)\n", op))
		return len(c.Code)
	}

	end := offset + op.Size()
	pos := offset + 1
	var parts []string
	for _, kind := range opTable[op].operands {
		switch kind {
		case opReg:
			parts = append(parts, fmt.Sprintf("R%d", c.Code[pos]))
			pos++
		case opByte:
			parts = append(parts, fmt.Sprintf("%d", c.Code[pos]))
			pos++
		case opSlot:
			parts = append(parts, fmt.Sprintf("#%d", c.readUint16(pos)))
			pos += 2
		case opConst:
			idx := c.readUint16(pos)
			if int(idx) < len(c.Constants) {
				parts = append(parts, fmt.Sprintf("%d ('%s')", idx, c.Constants[idx].ToString()))
			} else {
				parts = append(parts, fmt.Sprintf("%d (invalid constant index)", idx))
			}
			pos += 2
		case opFunc:
			idx := c.readUint16(pos)
			name := "<invalid>"
			if int(idx) < len(c.Functions) {
				name = c.Functions[idx].Name
			}
			parts = append(parts, fmt.Sprintf("fn%d <%s>", idx, name))
			pos += 2
		case opJump:
			jump := int(int16(c.readUint16(pos)))
			parts = append(parts, fmt.Sprintf("%d (to %04d)", jump, end+jump))
			pos += 2
		}
	}
	builder.WriteString(fmt.Sprintf("%-20s %s\n", op, strings.Join(parts, ", ")))
	return end
}

func (c *Chunk) readUint16(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}
