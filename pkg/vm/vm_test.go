package vm

import (
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assembler emits instructions with operands encoded per opTable.
type assembler struct {
	chunk *Chunk
}

func newAssembler() *assembler { return &assembler{chunk: NewChunk()} }

func (a *assembler) emit(op OpCode, operands ...int) int {
	at := len(a.chunk.Code)
	a.chunk.WriteOpCode(op, 1)
	for i, kind := range opTable[op].operands {
		switch kind {
		case opReg, opByte:
			a.chunk.WriteOperand(byte(operands[i]))
		default:
			a.chunk.WriteUint16(uint16(int16(operands[i])))
		}
	}
	return at
}

func (a *assembler) constant(v Value) int {
	idx, _ := a.chunk.AddConstant(v)
	return int(idx)
}

func (a *assembler) name(s string) int { return a.constant(NewString(s)) }

func (a *assembler) here() int { return len(a.chunk.Code) }

// patchJump points the jump emitted at `at` to the current position.
func (a *assembler) patchJump(at int) {
	op := OpCode(a.chunk.Code[at])
	end := at + op.Size()
	a.chunk.PatchUint16(end-2, uint16(int16(a.here()-end)))
}

func (a *assembler) script(regs int) *Function {
	return &Function{Name: "<script>", Kind: KindScript, RegisterSize: regs, Chunk: a.chunk}
}

func newTestRealm(opts ...Option) (*VM, *Realm) {
	vm := NewVM(opts...)
	r := NewRealm(vm)
	vm.SetRealm(r)
	return vm, r
}

func TestIntegerLoopStaysInt32(t *testing.T) {
	vm, r := newTestRealm()
	a := newAssembler()
	// r0 = sum, r1 = i, r2 = limit, r3 = one, r4 = cond
	a.emit(OpLoadConst, 0, a.constant(IntegerValue(0)))
	a.emit(OpLoadConst, 1, a.constant(IntegerValue(0)))
	a.emit(OpLoadConst, 2, a.constant(IntegerValue(1000)))
	a.emit(OpLoadConst, 3, a.constant(IntegerValue(1)))
	loop := a.here()
	a.emit(OpLess, 4, 1, 2)
	exit := a.emit(OpJumpIfFalse, 4, 0)
	a.emit(OpAdd, 0, 0, 1)
	a.emit(OpAdd, 1, 1, 3)
	back := a.emit(OpJump, 0)
	a.chunk.PatchUint16(back+1, uint16(int16(loop-(back+3))))
	a.patchJump(exit)
	a.emit(OpReturn, 0)

	result, err := vm.RunScript(a.script(5), r, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeIntegerNumber, result.Type())
	assert.Equal(t, int32(499500), result.AsInteger())
	assert.Zero(t, vm.Depth())
}

func TestIntegerOverflowBecomesFloat(t *testing.T) {
	vm, r := newTestRealm()
	a := newAssembler()
	a.emit(OpLoadConst, 0, a.constant(IntegerValue(2147483647)))
	a.emit(OpLoadConst, 1, a.constant(IntegerValue(1)))
	a.emit(OpAdd, 2, 0, 1)
	a.emit(OpReturn, 2)

	result, err := vm.RunScript(a.script(3), r, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeFloatNumber, result.Type())
	assert.Equal(t, float64(2147483648), result.AsFloat())
}

func TestGlobalThenQmlResolution(t *testing.T) {
	vm, r := newTestRealm()
	qml := r.NewObject()
	qml.Set("a", IntegerValue(1922))
	qml.Set("shadowed", NewString("qml"))
	r.GlobalObject.Set("shadowed", NewString("global"))

	run := func(name string) (Value, error) {
		a := newAssembler()
		a.emit(OpGetGlobal, 0, a.name(name))
		a.emit(OpReturn, 0)
		return vm.RunScript(a.script(1), r, qml)
	}

	v, err := run("a")
	require.NoError(t, err)
	assert.Equal(t, int32(1922), v.AsInteger())

	v, err = run("shadowed")
	require.NoError(t, err)
	assert.Equal(t, "global", v.AsString())

	_, err = run("missing")
	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	obj := exc.Value.AsObject()
	assert.Same(t, r.ReferenceErrorPrototype, obj.Prototype())
	msg, _ := obj.GetOwn("message")
	assert.Equal(t, "missing is not defined", msg.AsString())
}

func TestAssignmentUpdatesExistingQmlProperty(t *testing.T) {
	vm, r := newTestRealm()
	qml := r.NewObject()
	qml.Set("tipli", IntegerValue(1))

	a := newAssembler()
	a.emit(OpLoadConst, 0, a.constant(IntegerValue(28)))
	a.emit(OpSetGlobal, 0, a.name("tipli"))
	a.emit(OpSetGlobal, 0, a.name("fresh"))
	a.emit(OpReturnUndefined)
	_, err := vm.RunScript(a.script(1), r, qml)
	require.NoError(t, err)

	v, _ := qml.GetOwn("tipli")
	assert.Equal(t, int32(28), v.AsInteger())
	assert.False(t, r.GlobalObject.HasOwnProperty("tipli"))
	assert.True(t, r.GlobalObject.HasOwnProperty("fresh"))
	assert.False(t, qml.HasOwnProperty("fresh"))
}

func TestTypeofUnresolvableName(t *testing.T) {
	vm, r := newTestRealm()
	qml := r.NewObject()
	qml.Set("a", IntegerValue(123))

	a := newAssembler()
	a.emit(OpTypeofName, 0, a.name("a"), 0)
	a.emit(OpTypeofName, 1, a.name("b"), 1)
	a.emit(OpMakeArray, 2, 0, 2)
	a.emit(OpReturn, 2)
	v, err := vm.RunScript(a.script(3), r, qml)
	require.NoError(t, err)
	elems := v.AsObject().Elements()
	assert.Equal(t, "number", elems[0].AsString())
	assert.Equal(t, "undefined", elems[1].AsString())
}

func TestCallingQmlGlobalFollowsInvocation(t *testing.T) {
	vm, r := newTestRealm()
	qml := r.NewObject()
	var seen *Object
	probe := r.NewNativeFunction("probe", 0, func(vm *VM, this Value, args []Value) (Value, error) {
		seen = vm.CallingQmlGlobal()
		return Undefined, nil
	})
	r.GlobalObject.Set("probe", ObjectValue(probe))

	a := newAssembler()
	a.emit(OpGetGlobal, 0, a.name("probe"))
	a.emit(OpCall, 0, 0, 0)
	a.emit(OpReturnUndefined)

	assert.Nil(t, vm.CallingQmlGlobal())
	_, err := vm.RunScript(a.script(1), r, qml)
	require.NoError(t, err)
	assert.Same(t, qml, seen)
	assert.Nil(t, vm.CallingQmlGlobal())

	_, err = vm.RunScript(a.script(1), r, nil)
	require.NoError(t, err)
	assert.Nil(t, seen)
}

func TestClosureKeepsQmlGlobal(t *testing.T) {
	vm, r := newTestRealm()
	qml := r.NewObject()
	qml.Set("x", IntegerValue(7))

	inner := newAssembler()
	inner.emit(OpGetGlobal, 0, inner.name("x"))
	inner.emit(OpReturn, 0)
	fn := &Function{Name: "f", RegisterSize: 1, Chunk: inner.chunk}

	a := newAssembler()
	idx, _ := a.chunk.AddFunction(fn)
	a.emit(OpClosure, 0, int(idx))
	a.emit(OpReturn, 0)
	closure, err := vm.RunScript(a.script(1), r, qml)
	require.NoError(t, err)

	v, err := vm.Call(closure, Undefined, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v.AsInteger())
}

func TestExceptionHandlerCatches(t *testing.T) {
	vm, r := newTestRealm()
	a := newAssembler()
	start := a.here()
	a.emit(OpLoadConst, 0, a.constant(NewString("boom")))
	a.emit(OpThrow, 0)
	end := a.here()
	handler := a.here()
	a.emit(OpReturn, 1)
	a.chunk.ExceptionTable = append(a.chunk.ExceptionTable, ExceptionHandler{
		TryStart: start, TryEnd: end, HandlerPC: handler, CatchReg: 1,
	})

	v, err := vm.RunScript(a.script(2), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "boom", v.AsString())
}

func TestNativeErrorBecomesErrorObject(t *testing.T) {
	vm, r := newTestRealm()
	failing := r.NewNativeFunction("failing", 0, func(*VM, Value, []Value) (Value, error) {
		return Undefined, errors.New("host failure")
	})
	r.GlobalObject.Set("failing", ObjectValue(failing))

	a := newAssembler()
	a.emit(OpGetGlobal, 0, a.name("failing"))
	a.emit(OpCall, 0, 0, 0)
	a.emit(OpReturn, 0)
	_, err := vm.RunScript(a.script(1), r, nil)

	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	obj := exc.Value.AsObject()
	assert.Same(t, r.ErrorPrototype, obj.Prototype())
	msg, _ := obj.GetOwn("message")
	assert.Equal(t, "host failure", msg.AsString())
	assert.Equal(t, 1, exc.Line)
}

func TestMaxCallDepth(t *testing.T) {
	vm, r := newTestRealm(WithMaxCallDepth(50))
	body := newAssembler()
	body.emit(OpLoadCallee, 0)
	body.emit(OpCall, 1, 0, 0)
	body.emit(OpReturn, 1)
	fn := &Function{Name: "recurse", RegisterSize: 2, Chunk: body.chunk}
	closure := r.newClosureObject(&Closure{Fn: fn, Realm: r})

	_, err := vm.Call(ObjectValue(closure), Undefined, nil)
	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Same(t, r.RangeErrorPrototype, exc.Value.AsObject().Prototype())
	assert.Zero(t, vm.Depth())
}

func TestLooseEqualityHook(t *testing.T) {
	vm, r := newTestRealm()
	flagged := r.NewObject()
	flagged.SetUseUserComparison(true)
	plain := r.NewObject()

	var calls []string
	verdict := false
	vm.SetUserObjectComparison(func(lhs, rhs *Object) bool {
		switch {
		case lhs == flagged && rhs == plain:
			calls = append(calls, "flagged,plain")
		case lhs == plain && rhs == flagged:
			calls = append(calls, "plain,flagged")
		default:
			calls = append(calls, "other")
		}
		return verdict
	})

	eq, err := vm.LooseEquals(ObjectValue(flagged), ObjectValue(plain))
	require.NoError(t, err)
	assert.False(t, eq)

	verdict = true
	eq, _ = vm.LooseEquals(ObjectValue(plain), ObjectValue(flagged))
	assert.True(t, eq)

	// no identity shortcut for flagged objects
	verdict = false
	eq, _ = vm.LooseEquals(ObjectValue(flagged), ObjectValue(flagged))
	assert.False(t, eq)

	// plain objects and primitives never reach the callback
	eq, _ = vm.LooseEquals(ObjectValue(plain), ObjectValue(plain))
	assert.True(t, eq)
	eq, _ = vm.LooseEquals(IntegerValue(1), NewString("1"))
	assert.True(t, eq)
	assert.True(t, ObjectValue(flagged).StrictlyEquals(ObjectValue(flagged)))

	assert.Equal(t, []string{"flagged,plain", "plain,flagged", "other"}, calls)

	vm.SetUserObjectComparison(nil)
	eq, _ = vm.LooseEquals(ObjectValue(flagged), ObjectValue(flagged))
	assert.True(t, eq)
}

func TestFlaggedObjectNeverEqualsPrimitive(t *testing.T) {
	vm, r := newTestRealm()
	flagged := r.NewObject()
	flagged.SetUseUserComparison(true)
	calls := 0
	vm.SetUserObjectComparison(func(lhs, rhs *Object) bool {
		calls++
		return true
	})

	others := []Value{
		NewString("[object Object]"),
		IntegerValue(0),
		NumberValue(0.5),
		BooleanValue(true),
		Null,
		Undefined,
	}
	for _, other := range others {
		eq, err := vm.LooseEquals(ObjectValue(flagged), other)
		require.NoError(t, err)
		assert.False(t, eq, "flagged == %s", other.Inspect())
		eq, err = vm.LooseEquals(other, ObjectValue(flagged))
		require.NoError(t, err)
		assert.False(t, eq, "%s == flagged", other.Inspect())
	}
	assert.Zero(t, calls)

	// unflagged objects still convert with ToPrimitive
	eq, err := vm.LooseEquals(ObjectValue(r.NewObject()), NewString("[object Object]"))
	require.NoError(t, err)
	assert.True(t, eq)
}

type recordingResource struct {
	name string
	log  *[]string
}

func (r *recordingResource) Dispose() { *r.log = append(*r.log, r.name) }

func TestExternalResources(t *testing.T) {
	vm, r := newTestRealm()
	var log []string

	plain := r.NewObject()
	err := vm.SetExternalResource(plain, &recordingResource{"x", &log})
	assert.ErrorIs(t, err, ErrNoExternalResourceSlot)

	first, second := r.NewObject(), r.NewObject()
	first.SetExternalResourceSlot(true)
	second.SetExternalResourceSlot(true)
	require.NoError(t, vm.SetExternalResource(first, &recordingResource{"a", &log}))
	require.NoError(t, vm.SetExternalResource(second, &recordingResource{"b", &log}))
	require.NoError(t, vm.SetExternalResource(first, &recordingResource{"c", &log}))
	assert.Equal(t, []string{"a"}, log, "replacing disposes the old resource")

	assert.Equal(t, 2, vm.DisposeResources(nil))
	assert.Equal(t, []string{"a", "c", "b"}, log)
	assert.Nil(t, first.ExternalResource())
	assert.Zero(t, vm.DisposeResources(nil))
}

type testStringResource struct {
	data     string
	disposed *int
}

func (s *testStringResource) Data() string { return s.data }
func (s *testStringResource) Dispose()     { *s.disposed++ }

func TestExternalStringIsLazy(t *testing.T) {
	vm, _ := newTestRealm()
	disposed := 0
	s := vm.NewExternalString(&testStringResource{data: "v8test", disposed: &disposed})
	assert.Equal(t, "v8test", s.AsString())
	assert.Equal(t, 6, StringLength(s.AsString()))
	assert.EqualValues(t, 1, vm.LiveExternalStrings())
	runtime.KeepAlive(s)
}

func TestDisassembleChunk(t *testing.T) {
	a := newAssembler()
	a.emit(OpGetGlobal, 0, a.name("a"))
	a.emit(OpReturn, 0)
	out := a.chunk.DisassembleChunk("<script>")
	assert.True(t, strings.HasPrefix(out, "== <script> ==\n"))
	assert.Contains(t, out, "OpGetGlobal")
	assert.Contains(t, out, "R0, 0 ('a')")
}
