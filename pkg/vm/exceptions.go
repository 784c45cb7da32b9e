package vm

import (
	"errors"
	"fmt"
)

const debugExceptions = false

// ExceptionError carries a thrown script value out of the VM. Native
// functions return it to throw a specific value.
type ExceptionError struct {
	Value Value
	Line  int // source line of the throw site, 0 when unknown
}

func (e *ExceptionError) Error() string {
	msg := e.Value.ToString()
	if e.Value.IsObject() && e.Value.AsObject().Class() == ClassError {
		msg = errorToString(e.Value.AsObject())
	}
	if e.Line > 0 {
		return fmt.Sprintf("Uncaught %s (line %d)", msg, e.Line)
	}
	return "Uncaught " + msg
}

// Throw returns an error that throws v.
func Throw(v Value) error {
	return &ExceptionError{Value: v}
}

func (vm *VM) errorOf(proto func(*Realm) *Object, format string, args ...interface{}) error {
	r := vm.Realm()
	return &ExceptionError{Value: ObjectValue(r.NewError(proto(r), fmt.Sprintf(format, args...)))}
}

// NewTypeError returns an error throwing a TypeError.
func (vm *VM) NewTypeError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.TypeErrorPrototype }, format, args...)
}

// NewReferenceError returns an error throwing a ReferenceError.
func (vm *VM) NewReferenceError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.ReferenceErrorPrototype }, format, args...)
}

// NewRangeError returns an error throwing a RangeError.
func (vm *VM) NewRangeError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.RangeErrorPrototype }, format, args...)
}

// NewSyntaxError returns an error throwing a SyntaxError.
func (vm *VM) NewSyntaxError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.SyntaxErrorPrototype }, format, args...)
}

// NewError returns an error throwing a plain Error.
func (vm *VM) NewError(format string, args ...interface{}) error {
	return vm.errorOf(func(r *Realm) *Object { return r.ErrorPrototype }, format, args...)
}

// exceptionFrom converts an error returned inside the VM into the
// exception it throws. Errors that are not exceptions become Error
// objects carrying their message.
func (vm *VM) exceptionFrom(err error) *ExceptionError {
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		r := vm.Realm()
		exc = &ExceptionError{Value: ObjectValue(r.NewError(r.ErrorPrototype, err.Error()))}
	}
	if exc.Line == 0 && len(vm.frames) > 0 {
		f := vm.frames[len(vm.frames)-1]
		exc.Line = f.closure.Fn.Chunk.GetLine(f.ip - 1)
	}
	return exc
}

// unwind looks for a handler of exc, popping frames up to the innermost
// boundary frame. It reports whether a handler took the exception; when
// false, the boundary frame has been popped too.
func (vm *VM) unwind(exc *ExceptionError) bool {
	for len(vm.frames) > 0 {
		frame := vm.frames[len(vm.frames)-1]
		pc := frame.ip - 1
		for _, h := range frame.closure.Fn.Chunk.ExceptionTable {
			if pc < h.TryStart || pc >= h.TryEnd {
				continue
			}
			for frame.withDepth > h.WithDepth {
				frame.scope = frame.scope.parent
				frame.withDepth--
			}
			frame.registers[h.CatchReg] = exc.Value
			frame.ip = h.HandlerPC
			if debugExceptions {
				fmt.Printf("[DEBUG exceptions.go] handler at %d for pc %d\n", h.HandlerPC, pc)
			}
			return true
		}
		boundary := frame.isBoundary
		vm.popFrame()
		if boundary {
			return false
		}
	}
	return false
}
