package driver

import (
	stderrors "errors"
	"fmt"

	"github.com/qtproject/qtjsbackend/pkg/compiler"
	"github.com/qtproject/qtjsbackend/pkg/errors"
	"github.com/qtproject/qtjsbackend/pkg/source"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// ScriptOptions controls compilation.
type ScriptOptions struct {
	// Name is used in error positions and disassembly.
	Name string
	// QmlMode allows the script to be run with a QML global, which free
	// identifiers fall back to after the global object.
	QmlMode bool
}

// Script is a compiled script bound to a context.
type Script struct {
	ctx  *Context
	fn   *vm.Function
	src  *source.SourceFile
	opts ScriptOptions
}

// CompileFailure reports every error found while compiling a script.
// errors.As finds the individual *errors.SyntaxError and
// *errors.CompileError values.
type CompileFailure struct {
	Source string
	Errors []errors.ScriptError
}

func (e *CompileFailure) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

func (e *CompileFailure) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// Compile compiles src for ctx.
func Compile(ctx *Context, src string, opts ScriptOptions) (*Script, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "<script>"
	}
	sf := source.NewSourceFile(name, opts.Name, src)
	fn, errs := compiler.Compile(sf, opts.QmlMode)
	if len(errs) > 0 {
		ctx.logger.Debug().Str("script", name).Int("errors", len(errs)).Msg("compile failed")
		return nil, &CompileFailure{Source: src, Errors: errs}
	}
	return &Script{ctx: ctx, fn: fn, src: sf, opts: opts}, nil
}

// Run executes the script in its context, which must be entered. A
// non-nil qmlGlobal is consulted for free identifiers missing from the
// global object, for the dynamic extent of the run and by functions the
// script creates. Uncaught exceptions are recorded in the innermost
// TryCatch and returned as *errors.RuntimeError wrapping the
// *vm.ExceptionError.
func (s *Script) Run(qmlGlobal *Object) (Value, error) {
	ctx := s.ctx
	if err := ctx.checkEntered(); err != nil {
		return Value{}, err
	}
	var qml *vm.Object
	if qmlGlobal != nil {
		if !s.opts.QmlMode {
			ctx.logger.Warn().Str("script", s.src.Name).Msg("QML global passed to a script not compiled in QML mode")
			return Value{}, ErrNotQmlMode
		}
		qml = qmlGlobal.o
	}
	v, err := ctx.iso.vm.RunScript(s.fn, ctx.realm, qml)
	if err != nil {
		return Value{}, ctx.uncaughtIn(s.src, err)
	}
	return ctx.wrap(v), nil
}

// Disassemble renders the bytecode of the script and its functions.
func (s *Script) Disassemble() string {
	return s.fn.Chunk.DisassembleChunk(s.src.Name)
}

// RunString compiles and runs a non-QML script in ctx.
func (ctx *Context) RunString(src string) (Value, error) {
	s, err := Compile(ctx, src, ScriptOptions{Name: "<eval>"})
	if err != nil {
		return Value{}, err
	}
	return s.Run(nil)
}

// activate makes ctx's realm the VM's default realm while no script is
// running, for host calls into script. It returns the restore func.
func (ctx *Context) activate() func() {
	m := ctx.iso.vm
	if m.Depth() > 0 {
		return func() {}
	}
	prev := m.Realm()
	m.SetRealm(ctx.realm)
	return func() { m.SetRealm(prev) }
}

func (ctx *Context) uncaught(err error) error { return ctx.uncaughtIn(nil, err) }

// uncaughtIn converts an exception that escaped to the host into a
// RuntimeError and records it in the innermost TryCatch. Inside a native
// callback the exception is returned unchanged so that script can still
// catch it.
func (ctx *Context) uncaughtIn(src *source.SourceFile, err error) error {
	var exc *vm.ExceptionError
	if !stderrors.As(err, &exc) || ctx.iso.vm.Depth() > 0 {
		return err
	}
	ctx.iso.recordException(ctx, exc)
	msg := ctx.wrap(exc.Value).ToString()
	ctx.logger.Debug().Str("exception", msg).Int("line", exc.Line).Msg("uncaught exception")
	rerr := &errors.RuntimeError{
		Position: errors.Position{Line: exc.Line, Source: src},
		Msg:      msg,
	}
	return rerr.CausedBy(exc)
}
