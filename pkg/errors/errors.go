package errors

import (
	"fmt"
	"io"
	"strings"
)

// ScriptError is the interface implemented by all engine errors.
type ScriptError interface {
	error
	Pos() Position
	Kind() string // "Syntax", "Compile", "Runtime"
	// Message returns the error message without position info.
	Message() string
	Unwrap() error
}

// SyntaxError represents an error during lexing or parsing.
type SyntaxError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }
func (e *SyntaxError) CausedBy(cause error) *SyntaxError {
	e.Cause = cause
	return e
}

// CompileError represents an error during bytecode compilation,
// usually a limit of the register or constant encoding.
type CompileError struct {
	Position
	Msg   string
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("Compile Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *CompileError) Pos() Position   { return e.Position }
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }
func (e *CompileError) CausedBy(cause error) *CompileError {
	e.Cause = cause
	return e
}

// RuntimeError represents an uncaught exception that escaped to the host.
// Cause holds the engine exception carrying the thrown value.
type RuntimeError struct {
	Position
	Msg   string
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("Runtime Error: %s", e.Msg)
	}
	return fmt.Sprintf("Runtime Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// First returns the first error of errs as a plain error, or nil.
func First(errs []ScriptError) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// DisplayErrors writes errs to w, each followed by the offending source
// line and a caret under the reported column.
func DisplayErrors(w io.Writer, source string, errs []ScriptError) {
	if len(errs) == 0 {
		return
	}

	lines := strings.Split(source, "\n")

	for _, err := range errs {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		lineIdx := pos.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "%s Error: %s\n", kind, msg)
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")

		fmt.Fprintf(w, "%s Error at %d:%d: %s\n", kind, pos.Line, pos.Column, msg)
		fmt.Fprintf(w, "  %s\n", sourceLine)

		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		marker := strings.Repeat(" ", col) + "^"
		if span := pos.EndPos - pos.StartPos; span > 1 && col+span <= len(sourceLine) {
			marker += strings.Repeat("~", span-1)
		}
		fmt.Fprintf(w, "  %s\n\n", marker)
	}
}
