package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
)

const debugVM = false

func debugPrintf(format string, args ...interface{}) {
	if debugVM {
		fmt.Printf("[VM] "+format+"\n", args...)
	}
}

// DefaultMaxCallDepth bounds the number of active script frames.
const DefaultMaxCallDepth = 10000

// regSegmentSize is the size of one register stack segment. Frames never
// straddle segments, so a frame's register window stays valid while
// deeper frames allocate.
const regSegmentSize = 16 * 1024

// CallFrame represents a single active function call.
type CallFrame struct {
	closure   *Closure
	callee    *Object // function object being run, nil for scripts
	ip        int     // Instruction pointer within closure.Fn.Chunk.Code
	registers []Value // window into the VM register stack

	env       *Environment // function environment, nil when locals live in registers
	scope     *Environment // innermost scope, with environments included
	withDepth int

	this      Value
	args      []Value
	argsObj   *Object
	qmlGlobal *Object
	realm     *Realm

	targetRegister int  // Which register in the CALLER the result should go into
	isConstructor  bool // result is replaced by newObj unless an object is returned
	newObj         *Object
	isBoundary     bool // returning from this frame leaves run()
}

type regSegment struct {
	stack []Value
	top   int
}

// EvalCompiler compiles the source of an eval call into eval code.
type EvalCompiler func(source string) (*Function, error)

// ObjectComparison decides loose equality between two objects when at
// least one of them is flagged for user comparison.
type ObjectComparison func(lhs, rhs *Object) bool

// VM represents the virtual machine state.
type VM struct {
	frames    []*CallFrame
	framePool []*CallFrame

	// Register file, allocated in segments. Each CallFrame gets a window
	// into the current segment.
	regStack    []Value
	regTop      int
	regSegments []regSegment

	realm        *Realm // realm used while no frame is active
	realmCount   int
	maxCallDepth int
	out          io.Writer

	evalCompiler         EvalCompiler
	userObjectComparison ObjectComparison

	// External resources
	resMu       sync.Mutex
	attachments []attachment
	liveStrings atomic.Int64
}

// Option configures a VM.
type Option func(*VM)

// WithMaxCallDepth sets the maximum number of nested script frames.
func WithMaxCallDepth(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.maxCallDepth = n
		}
	}
}

// WithOutput sets the writer console output goes to.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// NewVM creates a new VM instance.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		frames:       make([]*CallFrame, 0, 64),
		regStack:     make([]Value, regSegmentSize),
		maxCallDepth: DefaultMaxCallDepth,
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Output returns the writer used by console functions.
func (vm *VM) Output() io.Writer { return vm.out }

// SetRealm sets the realm used when no script is running.
func (vm *VM) SetRealm(r *Realm) { vm.realm = r }

// Realm returns the realm of the running function, or the default realm.
func (vm *VM) Realm() *Realm {
	if n := len(vm.frames); n > 0 {
		return vm.frames[n-1].realm
	}
	return vm.realm
}

// SetEvalCompiler installs the compiler used by eval.
func (vm *VM) SetEvalCompiler(c EvalCompiler) { vm.evalCompiler = c }

// SetUserObjectComparison installs the comparison callback. nil disables it.
func (vm *VM) SetUserObjectComparison(cb ObjectComparison) { vm.userObjectComparison = cb }

// UserObjectComparison returns the installed comparison callback.
func (vm *VM) UserObjectComparison() ObjectComparison { return vm.userObjectComparison }

// CallingQmlGlobal returns the QML global bound to the innermost running
// invocation, or nil outside any invocation.
func (vm *VM) CallingQmlGlobal() *Object {
	if n := len(vm.frames); n > 0 {
		return vm.frames[n-1].qmlGlobal
	}
	return nil
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int { return len(vm.frames) }

// --- Register and frame allocation ---

func (vm *VM) allocRegisters(n int) []Value {
	if vm.regTop+n > len(vm.regStack) {
		vm.regSegments = append(vm.regSegments, regSegment{stack: vm.regStack, top: vm.regTop})
		vm.regStack = make([]Value, max(n, regSegmentSize))
		vm.regTop = 0
	}
	regs := vm.regStack[vm.regTop : vm.regTop+n : vm.regTop+n]
	vm.regTop += n
	return regs
}

func (vm *VM) freeRegisters(regs []Value) {
	clear(regs)
	vm.regTop -= len(regs)
	if vm.regTop == 0 && len(vm.regSegments) > 0 {
		last := vm.regSegments[len(vm.regSegments)-1]
		vm.regSegments = vm.regSegments[:len(vm.regSegments)-1]
		vm.regStack, vm.regTop = last.stack, last.top
	}
}

func (vm *VM) newFrame() *CallFrame {
	if n := len(vm.framePool); n > 0 {
		f := vm.framePool[n-1]
		vm.framePool = vm.framePool[:n-1]
		return f
	}
	return &CallFrame{}
}

// popFrame removes the innermost frame and recycles it.
func (vm *VM) popFrame() {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	vm.freeRegisters(f.registers)
	*f = CallFrame{}
	vm.framePool = append(vm.framePool, f)
}

// pushFrame sets up a frame running closure c.
func (vm *VM) pushFrame(callee *Object, c *Closure, this Value, args []Value, target int, boundary bool) (*CallFrame, error) {
	if len(vm.frames) >= vm.maxCallDepth {
		return nil, vm.NewRangeError("Maximum call stack size exceeded")
	}
	fn := c.Fn
	f := vm.newFrame()
	f.closure = c
	f.callee = callee
	f.registers = vm.allocRegisters(fn.RegisterSize)
	f.realm = c.Realm
	f.qmlGlobal = c.QmlGlobal
	f.args = args
	f.targetRegister = target
	f.isBoundary = boundary

	switch {
	case fn.IsArrow:
		f.this = c.This
	case fn.Kind == KindEval:
		f.this = this
	case this.IsNullish():
		f.this = ObjectValue(c.Realm.GlobalObject)
	case !this.IsObject():
		o, err := vm.ToObject(this)
		if err != nil {
			vm.freeRegisters(f.registers)
			return nil, err
		}
		f.this = ObjectValue(o)
	default:
		f.this = this
	}

	f.scope = c.Scope
	if fn.NeedsEnv {
		f.env = NewFunctionEnvironment(fn, c.Scope)
		f.scope = f.env
		for i, slot := range fn.ParamSlots {
			f.env.slots[slot] = Arg(args, i)
		}
	} else {
		for i, reg := range fn.ParamSlots {
			f.registers[reg] = Arg(args, i)
		}
	}
	vm.frames = append(vm.frames, f)
	return f, nil
}

// staticEnv is the environment statically resolved variables are counted
// from: the frame's own environment, or the closure's when it has none.
// With environments are never on this path.
func (f *CallFrame) staticEnv() *Environment {
	if f.env != nil {
		return f.env
	}
	return f.closure.Scope
}

// state returns the cached execution state of a frame.
func (f *CallFrame) state() ([]byte, []Value, []Value, int) {
	chunk := f.closure.Fn.Chunk
	return chunk.Code, chunk.Constants, f.registers, f.ip
}

// --- Entry points ---

// RunScript executes script or eval code at top level in realm r. A
// non-nil qmlGlobal is consulted after the global object for the
// dynamic extent of the run and by functions created during it.
func (vm *VM) RunScript(fn *Function, r *Realm, qmlGlobal *Object) (Value, error) {
	c := &Closure{Fn: fn, QmlGlobal: qmlGlobal, Realm: r}
	if _, err := vm.pushFrame(nil, c, ObjectValue(r.GlobalObject), nil, 0, true); err != nil {
		return Undefined, err
	}
	return vm.run()
}

// run is the main execution loop. It returns when the innermost boundary
// frame returns or an exception escapes it.
func (vm *VM) run() (Value, error) {
	frame := vm.frames[len(vm.frames)-1]
	code, constants, registers, ip := frame.state()

	for {
		op := OpCode(code[ip])
		ip++
		var err error

		switch op {
		case OpLoadConst:
			reg := code[ip]
			idx := int(code[ip+1])<<8 | int(code[ip+2])
			ip += 3
			registers[reg] = constants[idx]

		case OpLoadUndefined:
			registers[code[ip]] = Undefined
			ip++
		case OpLoadNull:
			registers[code[ip]] = Null
			ip++
		case OpLoadTrue:
			registers[code[ip]] = True
			ip++
		case OpLoadFalse:
			registers[code[ip]] = False
			ip++

		case OpMove:
			registers[code[ip]] = registers[code[ip+1]]
			ip += 2

		case OpAdd:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			if a.typ == TypeIntegerNumber && b.typ == TypeIntegerNumber {
				sum := int64(a.AsInteger()) + int64(b.AsInteger())
				if sum >= math.MinInt32 && sum <= math.MaxInt32 {
					registers[dst] = IntegerValue(int32(sum))
					break
				}
				registers[dst] = NumberValue(float64(sum))
				break
			}
			registers[dst], err = vm.add(a, b)

		case OpSubtract, OpMultiply, OpDivide, OpRemainder:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			if a.typ == TypeIntegerNumber && b.typ == TypeIntegerNumber {
				if v, ok := intArith(op, a.AsInteger(), b.AsInteger()); ok {
					registers[dst] = v
					break
				}
			}
			var x, y float64
			if x, err = vm.ToNumber(a); err != nil {
				break
			}
			if y, err = vm.ToNumber(b); err != nil {
				break
			}
			registers[dst] = NumberValue(floatArith(op, x, y))

		case OpBitwiseAnd, OpBitwiseOr, OpBitwiseXor, OpShiftLeft, OpShiftRight, OpUnsignedShiftRight:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			registers[dst], err = vm.bitwise(op, a, b)

		case OpEqual, OpNotEqual:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			var eq bool
			if eq, err = vm.LooseEquals(a, b); err == nil {
				registers[dst] = BooleanValue(eq == (op == OpEqual))
			}

		case OpStrictEqual:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			registers[dst] = BooleanValue(a.StrictlyEquals(b))
		case OpStrictNotEqual:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			registers[dst] = BooleanValue(!a.StrictlyEquals(b))

		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			if a.typ == TypeIntegerNumber && b.typ == TypeIntegerNumber {
				registers[dst] = BooleanValue(intCompare(op, a.AsInteger(), b.AsInteger()))
				break
			}
			registers[dst], err = vm.compare(op, a, b)

		case OpIn:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			registers[dst], err = vm.in(a, b)

		case OpInstanceof:
			dst, a, b := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			var ok bool
			if ok, err = vm.InstanceOf(a, b); err == nil {
				registers[dst] = BooleanValue(ok)
			}

		case OpNegate:
			dst, a := code[ip], registers[code[ip+1]]
			ip += 2
			if a.typ == TypeIntegerNumber && a.AsInteger() != 0 && a.AsInteger() != math.MinInt32 {
				registers[dst] = IntegerValue(-a.AsInteger())
				break
			}
			var x float64
			if x, err = vm.ToNumber(a); err == nil {
				registers[dst] = NumberValue(-x)
			}

		case OpNot:
			registers[code[ip]] = BooleanValue(!registers[code[ip+1]].IsTruthy())
			ip += 2

		case OpBitwiseNot:
			dst, a := code[ip], registers[code[ip+1]]
			ip += 2
			var x float64
			if x, err = vm.ToNumber(a); err == nil {
				registers[dst] = IntegerValue(^ToInt32(x))
			}

		case OpToNumber:
			dst, a := code[ip], registers[code[ip+1]]
			ip += 2
			if a.IsNumber() {
				registers[dst] = a
				break
			}
			var x float64
			if x, err = vm.ToNumber(a); err == nil {
				registers[dst] = NumberValue(x)
			}

		case OpTypeof:
			registers[code[ip]] = NewString(registers[code[ip+1]].TypeofString())
			ip += 2

		case OpTypeofName:
			dst := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			dynamic := code[ip+3] != 0
			ip += 4
			registers[dst], err = vm.typeofName(frame, name, dynamic)

		case OpGetVar:
			dst, depth := code[ip], int(code[ip+1])
			slot := int(code[ip+2])<<8 | int(code[ip+3])
			ip += 4
			registers[dst] = frame.staticEnv().ancestor(depth).slots[slot]

		case OpSetVar:
			src, depth := code[ip], int(code[ip+1])
			slot := int(code[ip+2])<<8 | int(code[ip+3])
			ip += 4
			frame.staticEnv().ancestor(depth).slots[slot] = registers[src]

		case OpGetGlobal:
			dst := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			ip += 3
			registers[dst], err = vm.getGlobal(frame, name)

		case OpSetGlobal:
			src := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			ip += 3
			err = vm.setGlobal(frame, name, registers[src])

		case OpGetName:
			dst := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			ip += 3
			registers[dst], err = vm.getName(frame, name)

		case OpSetName:
			src := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			ip += 3
			err = vm.setName(frame, name, registers[src])

		case OpDeclareVar:
			name := constants[int(code[ip])<<8|int(code[ip+1])].AsString()
			ip += 2
			vm.declareVar(frame, name)

		case OpDeleteName:
			dst := code[ip]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			ip += 3
			registers[dst] = BooleanValue(vm.deleteName(frame, name))

		case OpGetProp:
			dst, obj := code[ip], registers[code[ip+1]]
			name := constants[int(code[ip+2])<<8|int(code[ip+3])].AsString()
			ip += 4
			registers[dst], err = vm.GetProperty(obj, name)

		case OpSetProp:
			obj := registers[code[ip]]
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			val := registers[code[ip+3]]
			ip += 4
			err = vm.SetProperty(obj, name, val)

		case OpGetIndex:
			dst, obj, key := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			registers[dst], err = vm.GetIndex(obj, key)

		case OpSetIndex:
			obj, key, val := registers[code[ip]], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			err = vm.SetIndex(obj, key, val)

		case OpDeleteProp:
			dst, obj, key := code[ip], registers[code[ip+1]], registers[code[ip+2]]
			ip += 3
			var ok bool
			if ok, err = vm.DeleteProperty(obj, key); err == nil {
				registers[dst] = BooleanValue(ok)
			}

		case OpMakeArray:
			dst, start, count := code[ip], int(code[ip+1]), int(code[ip+2])
			ip += 3
			elems := make([]Value, count)
			copy(elems, registers[start:start+count])
			registers[dst] = ObjectValue(frame.realm.NewArray(elems))

		case OpArrayAppend:
			arr, start, count := registers[code[ip]].AsObject(), int(code[ip+1]), int(code[ip+2])
			ip += 3
			arr.elements = append(arr.elements, registers[start:start+count]...)

		case OpMakeObject:
			registers[code[ip]] = ObjectValue(frame.realm.NewObject())
			ip++

		case OpDefineField:
			obj := registers[code[ip]].AsObject()
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			obj.DefineOwnProperty(name, registers[code[ip+3]], DefaultAttrs)
			ip += 4

		case OpDefineAccessor:
			obj := registers[code[ip]].AsObject()
			name := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			obj.DefineAccessor(name, registers[code[ip+3]], registers[code[ip+4]], Enumerable|Configurable)
			ip += 5

		case OpMakeRegExp:
			dst := code[ip]
			pattern := constants[int(code[ip+1])<<8|int(code[ip+2])].AsString()
			flags := constants[int(code[ip+3])<<8|int(code[ip+4])].AsString()
			ip += 5
			var re *Object
			if re, err = vm.NewRegExp(pattern, flags); err == nil {
				registers[dst] = ObjectValue(re)
			}

		case OpClosure:
			dst := code[ip]
			fn := frame.closure.Fn.Chunk.Functions[int(code[ip+1])<<8|int(code[ip+2])]
			ip += 3
			c := &Closure{Fn: fn, Scope: frame.scope, QmlGlobal: frame.qmlGlobal, Realm: frame.realm}
			if fn.IsArrow {
				c.This = frame.this
			}
			registers[dst] = ObjectValue(frame.realm.newClosureObject(c))

		case OpCall, OpCallMethod, OpNew:
			dst, fnReg := int(code[ip]), int(code[ip+1])
			this := Undefined
			if op == OpCallMethod {
				this = registers[code[ip+2]]
				ip++
			}
			argc := int(code[ip+2])
			ip += 3
			callee := registers[fnReg]
			args := registers[fnReg+1 : fnReg+1+argc]
			frame.ip = ip

			var pushed bool
			if op == OpNew {
				pushed, err = vm.constructFromScript(callee, args, dst)
			} else {
				pushed, err = vm.callFromScript(callee, this, args, dst)
			}
			if err == nil && pushed {
				frame = vm.frames[len(vm.frames)-1]
				code, constants, registers, ip = frame.state()
			}

		case OpDirectEval:
			dst, fnReg, argc := int(code[ip]), int(code[ip+1]), int(code[ip+2])
			ip += 3
			args := registers[fnReg+1 : fnReg+1+argc]
			frame.ip = ip
			var pushed bool
			if pushed, err = vm.directEval(frame, args, dst); err == nil && pushed {
				frame = vm.frames[len(vm.frames)-1]
				code, constants, registers, ip = frame.state()
			}

		case OpReturn, OpReturnUndefined:
			result := Undefined
			if op == OpReturn {
				result = registers[code[ip]]
			}
			if frame.isConstructor && !result.IsObject() {
				result = ObjectValue(frame.newObj)
			}
			boundary, target := frame.isBoundary, frame.targetRegister
			vm.popFrame()
			if boundary {
				return result, nil
			}
			frame = vm.frames[len(vm.frames)-1]
			code, constants, registers, ip = frame.state()
			registers[target] = result

		case OpJump:
			offset := int(int16(uint16(code[ip])<<8 | uint16(code[ip+1])))
			ip += 2 + offset

		case OpJumpIfFalse:
			cond := registers[code[ip]]
			offset := int(int16(uint16(code[ip+1])<<8 | uint16(code[ip+2])))
			ip += 3
			if !cond.IsTruthy() {
				ip += offset
			}

		case OpJumpIfTrue:
			cond := registers[code[ip]]
			offset := int(int16(uint16(code[ip+1])<<8 | uint16(code[ip+2])))
			ip += 3
			if cond.IsTruthy() {
				ip += offset
			}

		case OpThrow:
			err = &ExceptionError{Value: registers[code[ip]]}
			ip++

		case OpPushWith:
			target := registers[code[ip]]
			ip++
			var obj *Object
			if obj, err = vm.ToObject(target); err == nil {
				frame.scope = NewObjectEnvironment(obj, frame.scope)
				frame.withDepth++
			}

		case OpPopWith:
			frame.scope = frame.scope.parent
			frame.withDepth--

		case OpGetThis:
			registers[code[ip]] = frame.this
			ip++

		case OpLoadArguments:
			registers[code[ip]] = ObjectValue(vm.argumentsObject(frame))
			ip++

		case OpLoadCallee:
			registers[code[ip]] = ObjectValue(frame.callee)
			ip++

		case OpForInPrepare:
			dst, src := code[ip], registers[code[ip+1]]
			ip += 2
			registers[dst], err = vm.forInPrepare(src)

		case OpForInNext:
			dst, iter := code[ip], registers[code[ip+1]].AsObject()
			offset := int(int16(uint16(code[ip+2])<<8 | uint16(code[ip+3])))
			ip += 4
			if key, ok := iter.forIn.next(); ok {
				registers[dst] = NewString(key)
			} else {
				ip += offset
			}

		default:
			frame.ip = ip
			err = fmt.Errorf("unknown opcode %d", op)
		}

		if err != nil {
			if vm.frames[len(vm.frames)-1] == frame {
				frame.ip = ip
			}
			exc := vm.exceptionFrom(err)
			if !vm.unwind(exc) {
				return Undefined, exc
			}
			frame = vm.frames[len(vm.frames)-1]
			code, constants, registers, ip = frame.state()
			debugPrintf("caught exception, resuming at %04d", ip)
		}
	}
}

func (vm *VM) argumentsObject(f *CallFrame) *Object {
	if f.argsObj == nil {
		elems := make([]Value, len(f.args))
		copy(elems, f.args)
		o := NewObjectOfClass(ClassArguments, f.realm.ObjectPrototype)
		o.elements = elems
		o.DefineOwnProperty("length", IntegerValue(int32(len(elems))), HiddenAttrs)
		if f.callee != nil {
			o.DefineOwnProperty("callee", ObjectValue(f.callee), HiddenAttrs)
		}
		f.argsObj = o
	}
	return f.argsObj
}
