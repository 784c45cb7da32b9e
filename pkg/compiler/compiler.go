package compiler

import (
	"fmt"

	"github.com/qtproject/qtjsbackend/pkg/errors"
	"github.com/qtproject/qtjsbackend/pkg/lexer"
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/source"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

const debugCompiler = false

func debugPrintf(format string, args ...interface{}) {
	if debugCompiler {
		fmt.Printf(format, args...)
	}
}

type codeKind uint8

const (
	kindFunctionCode codeKind = iota
	kindScriptCode
	kindEvalCode
)

// jumpTarget is an enclosing statement that break or continue can leave.
type jumpTarget struct {
	labels    []string
	isLoop    bool
	breakable bool // loops and switches; labeled blocks only by label

	breaks    []int // operand offsets of jumps to patch to the end
	continues []int // operand offsets of jumps to patch to the continue point

	withDepth int
	tryDepth  int
}

// funcState is the per-function part of the compiler state.
type funcState struct {
	parent *funcState
	kind   codeKind
	chunk  *vm.Chunk
	regs   *RegisterAllocator
	info   *funcInfo

	needsEnv  bool
	hasEval   bool
	slotNames []string

	scope     *SymbolTable
	withDepth int

	targets []*jumpTarget
	tries   []*tryContext

	// completion holds the value of the last expression statement of
	// script and eval code.
	completion Register

	pendingLabels []string
}

// Compiler transforms an AST into bytecode.
type Compiler struct {
	fs      *funcState
	src     *source.SourceFile
	qmlMode bool
	errors  []errors.ScriptError
	line    int
}

// NewCompiler creates a compiler for code read from src. Functions it
// produces carry qmlMode.
func NewCompiler(src *source.SourceFile, qmlMode bool) *Compiler {
	return &Compiler{src: src, qmlMode: qmlMode, line: 1}
}

// Compile parses and compiles a script.
func Compile(src *source.SourceFile, qmlMode bool) (*vm.Function, []errors.ScriptError) {
	program, errs := parser.ParseSource(src)
	if len(errs) > 0 {
		return nil, errs
	}
	return NewCompiler(src, qmlMode).CompileProgram(program)
}

// CompileEval compiles the source text of an eval call.
func CompileEval(code string) (*vm.Function, error) {
	src := source.NewEvalSource(code)
	program, errs := parser.ParseSource(src)
	if len(errs) > 0 {
		return nil, errors.First(errs)
	}
	c := NewCompiler(src, false)
	fn := c.compileUnit(kindEvalCode, "eval", nil, program.Statements, nil)
	if len(c.errors) > 0 {
		return nil, errors.First(c.errors)
	}
	return fn, nil
}

// EvalCompiler returns the compiler to install with vm.SetEvalCompiler.
func EvalCompiler() vm.EvalCompiler { return CompileEval }

// CompileProgram compiles a parsed script into script code.
func (c *Compiler) CompileProgram(program *parser.Program) (*vm.Function, []errors.ScriptError) {
	name := "<script>"
	if c.src != nil && c.src.Name != "" {
		name = c.src.Name
	}
	fn := c.compileUnit(kindScriptCode, name, nil, program.Statements, nil)
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	if c.src != nil {
		fn.Source = c.src.Content
	}
	return fn, nil
}

// compileUnit compiles a function body, script or eval code. lit is the
// function literal for function code.
func (c *Compiler) compileUnit(kind codeKind, name string, params []*parser.Identifier, body []parser.Statement, lit *parser.FunctionLiteral) *vm.Function {
	info := scanFunction(body, kind)
	fs := &funcState{
		parent:  c.fs,
		kind:    kind,
		chunk:   vm.NewChunk(),
		regs:    NewRegisterAllocator(),
		info:    info,
		hasEval: info.hasEval,
	}
	selfName := ""
	if lit != nil && lit.Name != nil && !lit.IsArrow {
		selfName = lit.Name.Value
	}
	hasDecls := len(params) > 0 || len(info.varNames) > 0 || info.hasLexical || info.usesArguments || selfName != ""
	fs.needsEnv = info.hasEval || (hasDecls && (info.hasInner || info.hasWith))
	fs.scope = NewSymbolTable(FunctionScope, nil, fs)
	c.fs = fs
	defer func() { c.fs = fs.parent }()

	fn := &vm.Function{Name: name, Chunk: fs.chunk, Arity: len(params), QmlMode: c.qmlMode}
	switch kind {
	case kindScriptCode:
		fn.Kind = vm.KindScript
	case kindEvalCode:
		fn.Kind = vm.KindEval
	}
	if lit != nil {
		fn.IsArrow = lit.IsArrow
		fn.Source = lit.Source
		c.setLine(lit)
	}
	debugPrintf("// [Compiler] unit %q needsEnv=%v eval=%v\n", name, fs.needsEnv, fs.hasEval)

	// Parameters take the first slots or registers; a repeated name
	// refers to its last occurrence.
	for _, p := range params {
		sym := &Symbol{Name: p.Value, InEnv: fs.needsEnv}
		if fs.needsEnv {
			sym.Index = len(fs.slotNames)
			fs.slotNames = append(fs.slotNames, p.Value)
		} else {
			sym.Index = int(fs.regs.Alloc())
		}
		fs.scope.store[p.Value] = sym
		fn.ParamSlots = append(fn.ParamSlots, sym.Index)
	}

	switch kind {
	case kindFunctionCode:
		for _, v := range info.varNames {
			fs.scope.Define(v)
		}
		if info.usesArguments || info.hasEval {
			if _, ok := fs.scope.Lookup("arguments"); !ok {
				sym := fs.scope.Define("arguments")
				c.withTemp(func(r Register) {
					c.emitOpCode(vm.OpLoadArguments)
					c.emitByte(byte(r))
					c.storeSymbol(sym, r)
				})
			}
		}
		if selfName != "" {
			if _, ok := fs.scope.Lookup(selfName); !ok {
				sym := fs.scope.Define(selfName)
				c.withTemp(func(r Register) {
					c.emitOpCode(vm.OpLoadCallee)
					c.emitByte(byte(r))
					c.storeSymbol(sym, r)
				})
			}
		}
	default:
		for _, v := range info.varNames {
			c.emitOpCode(vm.OpDeclareVar)
			c.emitUint16(c.nameConstant(v))
		}
		fs.completion = fs.regs.Alloc()
		c.emitLoadUndefined(fs.completion)
	}

	c.compileBlockBody(body, fs.scope)

	if kind == kindFunctionCode {
		c.emitOpCode(vm.OpReturnUndefined)
	} else {
		c.emitReturn(fs.completion)
	}

	if fs.regs.Overflowed() {
		c.addErrorAt(c.line, fmt.Sprintf("function %s needs more than %d registers", name, MaxRegisters))
	}
	fn.RegisterSize = fs.regs.MaxRegs()
	fn.NeedsEnv = fs.needsEnv
	fn.SlotNames = fs.slotNames
	return fn
}

// compileBlockBody declares the lexical bindings and functions of stmts in
// scope, then compiles them. Declarations are hoisted to the start of the
// block without a temporal dead zone.
func (c *Compiler) compileBlockBody(stmts []parser.Statement, scope *SymbolTable) {
	c.declareBlock(stmts, scope)
	for _, stmt := range stmts {
		c.compileStatement(stmt)
	}
}

// isScriptTop reports whether scope is the outermost scope of script
// code, where declarations become global properties.
func (c *Compiler) isScriptTop(scope *SymbolTable) bool {
	return c.fs.kind == kindScriptCode && scope.Kind == FunctionScope
}

// compileFunctionLiteral compiles lit as a nested function and emits the
// closure into dst. nameHint names anonymous functions.
func (c *Compiler) compileFunctionLiteral(lit *parser.FunctionLiteral, dst Register, nameHint string) {
	name := nameHint
	if lit.Name != nil {
		name = lit.Name.Value
	}
	var body []parser.Statement
	if lit.Body != nil {
		body = lit.Body.Statements
	}
	fn := c.compileUnit(kindFunctionCode, name, lit.Parameters, body, lit)
	idx, ok := c.fs.chunk.AddFunction(fn)
	if !ok {
		c.addError(lit, "too many nested functions")
		return
	}
	c.setLine(lit)
	c.emitOpCode(vm.OpClosure)
	c.emitByte(byte(dst))
	c.emitUint16(idx)
}

// --- Scopes ---

func (c *Compiler) pushScope(kind ScopeKind) *SymbolTable {
	c.fs.scope = NewSymbolTable(kind, c.fs.scope, c.fs)
	return c.fs.scope
}

func (c *Compiler) popScope() {
	c.fs.scope = c.fs.scope.Outer
}

// withTemp runs f with a temporary register released afterwards.
func (c *Compiler) withTemp(f func(r Register)) {
	mark := c.fs.regs.Mark()
	f(c.fs.regs.Alloc())
	c.fs.regs.Reset(mark)
}

// --- Names ---

// loadName emits code reading the binding name into dst.
func (c *Compiler) loadName(name string, dst Register) {
	ref := c.resolve(name)
	switch ref.kind {
	case resolveLocal:
		if Register(ref.sym.Index) != dst {
			c.emitMove(dst, Register(ref.sym.Index))
		}
	case resolveEnv:
		c.emitEnvAccess(vm.OpGetVar, dst, ref)
	case resolveGlobal:
		c.emitNameOp(vm.OpGetGlobal, dst, name)
	case resolveDynamic:
		c.emitNameOp(vm.OpGetName, dst, name)
	}
}

// storeName emits code assigning src to the binding name.
func (c *Compiler) storeName(name string, src Register) {
	ref := c.resolve(name)
	switch ref.kind {
	case resolveLocal, resolveEnv:
		c.storeRef(ref, src)
	case resolveGlobal:
		c.emitNameOp(vm.OpSetGlobal, src, name)
	case resolveDynamic:
		c.emitNameOp(vm.OpSetName, src, name)
	}
}

func (c *Compiler) storeRef(ref reference, src Register) {
	if ref.kind == resolveLocal {
		if Register(ref.sym.Index) != src {
			c.emitMove(Register(ref.sym.Index), src)
		}
		return
	}
	c.emitEnvAccess(vm.OpSetVar, src, ref)
}

// storeSymbol assigns src to a binding of the current function.
func (c *Compiler) storeSymbol(sym *Symbol, src Register) {
	if sym.InEnv {
		c.storeRef(reference{kind: resolveEnv, sym: sym}, src)
		return
	}
	c.storeRef(reference{kind: resolveLocal, sym: sym}, src)
}

func (c *Compiler) emitEnvAccess(op vm.OpCode, reg Register, ref reference) {
	if ref.depth > 255 {
		c.addErrorAt(c.line, "functions nested too deeply")
		return
	}
	c.emitOpCode(op)
	c.emitByte(byte(reg))
	c.emitByte(byte(ref.depth))
	c.emitUint16(uint16(ref.sym.Index))
}

func (c *Compiler) emitNameOp(op vm.OpCode, reg Register, name string) {
	c.emitOpCode(op)
	c.emitByte(byte(reg))
	c.emitUint16(c.nameConstant(name))
}

// --- Constants ---

func (c *Compiler) constant(v vm.Value) uint16 {
	idx, ok := c.fs.chunk.AddConstant(v)
	if !ok {
		c.addErrorAt(c.line, "too many constants in one function")
	}
	return idx
}

func (c *Compiler) nameConstant(name string) uint16 {
	return c.constant(vm.NewString(name))
}

// --- Errors ---

func (c *Compiler) setLine(node parser.Node) {
	if tok := parser.Pos(node); tok.Line > 0 {
		c.line = tok.Line
	}
}

func (c *Compiler) addError(node parser.Node, msg string) {
	c.errors = append(c.errors, &errors.CompileError{Position: c.position(parser.Pos(node)), Msg: msg})
}

func (c *Compiler) addErrorAt(line int, msg string) {
	c.errors = append(c.errors, &errors.CompileError{Position: errors.Position{Line: line, Column: 1, Source: c.src}, Msg: msg})
}

func (c *Compiler) position(tok lexer.Token) errors.Position {
	return errors.Position{
		Line:     tok.Line,
		Column:   tok.Column,
		StartPos: tok.StartPos,
		EndPos:   tok.EndPos,
		Source:   c.src,
	}
}

// Errors returns the errors collected so far.
func (c *Compiler) Errors() []errors.ScriptError { return c.errors }
