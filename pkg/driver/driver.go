package driver

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/qtproject/qtjsbackend/pkg/errors"
)

const debugDriver = false

func debugPrintf(format string, args ...interface{}) {
	if debugDriver {
		fmt.Printf(format, args...)
	}
}

// RunOptions controls RunCode.
type RunOptions struct {
	// Name is the script name used in error positions.
	Name string
	// ShowBytecode writes the disassembly to the isolate output before
	// running.
	ShowBytecode bool
	// QmlGlobal, when non-nil, compiles the script in QML mode and runs it
	// with a QML global built from these properties.
	QmlGlobal map[string]any
}

// Session is an entered isolate with one entered context: the setup the
// commands and most tests want. Close tears both down.
type Session struct {
	Isolate *Isolate
	Context *Context
}

// NewSession creates, enters and returns a session.
func NewSession(opts ...Option) (*Session, error) {
	iso := NewIsolate(opts...)
	if err := iso.Enter(); err != nil {
		return nil, err
	}
	ctx, err := iso.NewContext(nil)
	if err != nil {
		iso.Exit()
		iso.Dispose()
		return nil, err
	}
	if err := ctx.Enter(); err != nil {
		iso.Exit()
		iso.Dispose()
		return nil, err
	}
	return &Session{Isolate: iso, Context: ctx}, nil
}

// Close exits and disposes the context, then the isolate.
func (s *Session) Close() error {
	var errs []error
	if err := s.Context.Exit(); err != nil && !stderrors.Is(err, ErrDisposed) {
		errs = append(errs, err)
	}
	if err := s.Context.Dispose(); err != nil && !stderrors.Is(err, ErrDisposed) {
		errs = append(errs, err)
	}
	if err := s.Isolate.Exit(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Isolate.Dispose(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// RunCode compiles and runs src in the session context.
func (s *Session) RunCode(src string, options RunOptions) (Value, error) {
	opts := ScriptOptions{Name: options.Name, QmlMode: options.QmlGlobal != nil}
	script, err := Compile(s.Context, src, opts)
	if err != nil {
		return Value{}, err
	}
	if options.ShowBytecode {
		fmt.Fprint(s.Isolate.vm.Output(), script.Disassemble())
	}
	var qml *Object
	if options.QmlGlobal != nil {
		qml = s.Context.ToValue(options.QmlGlobal).AsObject()
		debugPrintf("// [Driver] QML global with %d properties\n", len(options.QmlGlobal))
	}
	return script.Run(qml)
}

// RunFile reads and runs a script file.
func (s *Session) RunFile(filename string, options RunOptions) (string, Value, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", Value{}, fmt.Errorf("reading %s: %w", filename, err)
	}
	if options.Name == "" {
		options.Name = filename
	}
	src := string(data)
	v, err := s.RunCode(src, options)
	return src, v, err
}

// DisplayResult prints value, or err with the offending source line, to
// w. Undefined results are not printed. It reports whether err was nil.
func DisplayResult(w io.Writer, src string, value Value, err error) bool {
	if err == nil {
		if !value.IsUndefined() {
			fmt.Fprintln(w, value.String())
		}
		return true
	}

	var cf *CompileFailure
	var rt *errors.RuntimeError
	switch {
	case stderrors.As(err, &cf):
		errors.DisplayErrors(w, cf.Source, cf.Errors)
	case stderrors.As(err, &rt):
		errors.DisplayErrors(w, src, []errors.ScriptError{rt})
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return false
}
