package compiler

import (
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

func (c *Compiler) compileStatement(stmt parser.Statement) {
	c.setLine(stmt)
	fs := c.fs
	mark := fs.regs.Mark()
	defer fs.regs.Reset(mark)

	labels := fs.pendingLabels
	fs.pendingLabels = nil

	switch n := stmt.(type) {
	case *parser.ExpressionStatement:
		if fs.kind == kindFunctionCode {
			c.compileDiscard(n.Expression)
		} else {
			c.compileExpression(n.Expression, fs.completion)
		}
	case *parser.VarStatement:
		c.compileVarStatement(n)
	case *parser.FunctionDeclaration:
		// created when the enclosing block is entered
	case *parser.EmptyStatement:
	case *parser.BlockStatement:
		c.compileBlock(n)
	case *parser.IfStatement:
		c.compileIfStatement(n)
	case *parser.WhileStatement:
		c.compileWhileStatement(n, labels)
	case *parser.DoWhileStatement:
		c.compileDoWhileStatement(n, labels)
	case *parser.ForStatement:
		c.compileForStatement(n, labels)
	case *parser.ForInStatement:
		c.compileForInStatement(n, labels)
	case *parser.SwitchStatement:
		c.compileSwitchStatement(n, labels)
	case *parser.LabeledStatement:
		c.compileLabeledStatement(n, labels)
	case *parser.ReturnStatement:
		c.compileReturnStatement(n)
	case *parser.BreakStatement:
		c.compileBreakStatement(n)
	case *parser.ContinueStatement:
		c.compileContinueStatement(n)
	case *parser.ThrowStatement:
		r := c.exprReg(n.Value)
		c.setLine(n)
		c.emitOpCode(vm.OpThrow)
		c.emitByte(byte(r))
	case *parser.TryStatement:
		c.compileTryStatement(n)
	case *parser.WithStatement:
		c.compileWithStatement(n)
	default:
		c.addError(stmt, "unsupported statement")
	}
}

func (c *Compiler) compileBlock(n *parser.BlockStatement) {
	scope := c.pushScope(BlockScope)
	c.compileBlockBody(n.Statements, scope)
	c.popScope()
}

func (c *Compiler) compileVarStatement(n *parser.VarStatement) {
	// let and const at the top of a script are global properties like var
	lexical := n.IsLexical() && !c.isScriptTop(c.fs.scope)
	for _, d := range n.Declarations {
		if d.Value == nil && !lexical {
			continue
		}
		c.withTemp(func(r Register) {
			if d.Value == nil {
				c.emitLoadUndefined(r)
			} else {
				c.compileNamedExpression(d.Value, r, d.Name.Value)
			}
			c.setLine(d.Name)
			c.storeName(d.Name.Value, r)
		})
	}
}

func (c *Compiler) compileIfStatement(n *parser.IfStatement) {
	elseJump := c.compileCondition(n.Condition)
	c.compileStatement(n.Consequence)
	if n.Alternative == nil {
		c.patchJump(elseJump)
		return
	}
	endJump := c.emitPlaceholderJump(vm.OpJump, 0)
	c.patchJump(elseJump)
	c.compileStatement(n.Alternative)
	c.patchJump(endJump)
}

// compileCondition evaluates expr and emits a jump taken when it is
// falsy. It returns the jump's operand position.
func (c *Compiler) compileCondition(expr parser.Expression) int {
	mark := c.fs.regs.Mark()
	r := c.exprReg(expr)
	pos := c.emitPlaceholderJump(vm.OpJumpIfFalse, r)
	c.fs.regs.Reset(mark)
	return pos
}

// --- Loops ---

func (c *Compiler) compileWhileStatement(n *parser.WhileStatement, labels []string) {
	t := c.pushTarget(labels, true)
	start := c.currentPosition()
	exit := c.compileCondition(n.Condition)
	c.compileStatement(n.Body)
	c.patchContinues(t, start)
	c.emitLoop(start)
	c.patchJump(exit)
	c.popTarget(t)
}

func (c *Compiler) compileDoWhileStatement(n *parser.DoWhileStatement, labels []string) {
	t := c.pushTarget(labels, true)
	start := c.currentPosition()
	c.compileStatement(n.Body)
	c.patchContinues(t, c.currentPosition())
	mark := c.fs.regs.Mark()
	r := c.exprReg(n.Condition)
	back := c.emitPlaceholderJump(vm.OpJumpIfTrue, r)
	c.patchJumpTo(back, start)
	c.fs.regs.Reset(mark)
	c.popTarget(t)
}

func (c *Compiler) compileForStatement(n *parser.ForStatement, labels []string) {
	scope := c.pushScope(BlockScope)
	defer c.popScope()

	switch init := n.Init.(type) {
	case nil:
	case *parser.VarStatement:
		if init.IsLexical() {
			for _, d := range init.Declarations {
				scope.Define(d.Name.Value)
			}
		}
		c.compileVarStatement(init)
	case *parser.ExpressionStatement:
		c.compileDiscard(init.Expression)
	default:
		c.compileStatement(init)
	}

	t := c.pushTarget(labels, true)
	start := c.currentPosition()
	exit := -1
	if n.Condition != nil {
		exit = c.compileCondition(n.Condition)
	}
	c.compileStatement(n.Body)
	c.patchContinues(t, c.currentPosition())
	if n.Update != nil {
		c.compileDiscard(n.Update)
	}
	c.emitLoop(start)
	if exit >= 0 {
		c.patchJump(exit)
	}
	c.popTarget(t)
}

func (c *Compiler) compileForInStatement(n *parser.ForInStatement, labels []string) {
	fs := c.fs
	obj := fs.regs.Alloc()
	c.compileExpression(n.Object, obj)
	iter := fs.regs.Alloc()
	c.emitUnary(vm.OpForInPrepare, iter, obj)
	key := fs.regs.Alloc()

	scope := c.pushScope(BlockScope)
	defer c.popScope()
	if vs, ok := n.Left.(*parser.VarStatement); ok && vs.IsLexical() {
		for _, d := range vs.Declarations {
			scope.Define(d.Name.Value)
		}
	}

	t := c.pushTarget(labels, true)
	start := c.currentPosition()
	c.emitOpCode(vm.OpForInNext)
	c.emitByte(byte(key))
	c.emitByte(byte(iter))
	exit := c.currentPosition()
	c.emitUint16(0xFFFF)

	switch left := n.Left.(type) {
	case *parser.VarStatement:
		c.storeName(left.Declarations[0].Name.Value, key)
	case parser.Expression:
		c.assignTo(left, key)
	default:
		c.addError(n, "invalid left-hand side in for-in")
	}
	c.compileStatement(n.Body)
	c.patchContinues(t, start)
	c.emitLoop(start)
	c.patchJump(exit)
	c.popTarget(t)
}

func (c *Compiler) compileSwitchStatement(n *parser.SwitchStatement, labels []string) {
	fs := c.fs
	disc := fs.regs.Alloc()
	c.compileExpression(n.Discriminant, disc)

	t := c.pushTarget(labels, false)
	t.breakable = true
	scope := c.pushScope(BlockScope)

	var all []parser.Statement
	for _, cs := range n.Cases {
		all = append(all, cs.Body...)
	}
	c.declareBlock(all, scope)

	caseJumps := make([]int, len(n.Cases))
	test := fs.regs.Alloc()
	for i, cs := range n.Cases {
		if cs.Test == nil {
			continue
		}
		c.setLine(cs.Test)
		c.compileExpression(cs.Test, test)
		c.emitBinary(vm.OpStrictEqual, test, disc, test)
		caseJumps[i] = c.emitPlaceholderJump(vm.OpJumpIfTrue, test)
	}
	defaultJump := c.emitPlaceholderJump(vm.OpJump, 0)
	hasDefault := false
	for i, cs := range n.Cases {
		if cs.Test == nil {
			hasDefault = true
			c.patchJump(defaultJump)
		} else {
			c.patchJump(caseJumps[i])
		}
		for _, stmt := range cs.Body {
			c.compileStatement(stmt)
		}
	}
	if !hasDefault {
		c.patchJump(defaultJump)
	}
	c.popScope()
	c.popTarget(t)
}

func (c *Compiler) compileLabeledStatement(n *parser.LabeledStatement, labels []string) {
	labels = append(labels, n.Label.Value)
	switch n.Body.(type) {
	case *parser.WhileStatement, *parser.DoWhileStatement, *parser.ForStatement,
		*parser.ForInStatement, *parser.SwitchStatement, *parser.LabeledStatement:
		c.fs.pendingLabels = labels
		c.compileStatement(n.Body)
	default:
		t := c.pushTarget(labels, false)
		c.compileStatement(n.Body)
		c.popTarget(t)
	}
}

// --- Jumps out of statements ---

func (c *Compiler) pushTarget(labels []string, isLoop bool) *jumpTarget {
	t := &jumpTarget{
		labels:    labels,
		isLoop:    isLoop,
		breakable: isLoop,
		withDepth: c.fs.withDepth,
		tryDepth:  len(c.fs.tries),
	}
	c.fs.targets = append(c.fs.targets, t)
	return t
}

// popTarget removes t and points its break jumps here.
func (c *Compiler) popTarget(t *jumpTarget) {
	for _, pos := range t.breaks {
		c.patchJump(pos)
	}
	c.fs.targets = c.fs.targets[:len(c.fs.targets)-1]
}

func (c *Compiler) patchContinues(t *jumpTarget, target int) {
	for _, pos := range t.continues {
		c.patchJumpTo(pos, target)
	}
	t.continues = nil
}

func (c *Compiler) findTarget(label string, isContinue bool) *jumpTarget {
	targets := c.fs.targets
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		if label == "" {
			if (isContinue && t.isLoop) || (!isContinue && t.breakable) {
				return t
			}
			continue
		}
		for _, l := range t.labels {
			if l == label && (!isContinue || t.isLoop) {
				return t
			}
		}
	}
	return nil
}

func (c *Compiler) compileBreakStatement(n *parser.BreakStatement) {
	label := ""
	if n.Label != nil {
		label = n.Label.Value
	}
	t := c.findTarget(label, false)
	if t == nil {
		c.addError(n, "Illegal break statement")
		return
	}
	c.exitTo(t.withDepth, t.tryDepth)
	t.breaks = append(t.breaks, c.emitPlaceholderJump(vm.OpJump, 0))
}

func (c *Compiler) compileContinueStatement(n *parser.ContinueStatement) {
	label := ""
	if n.Label != nil {
		label = n.Label.Value
	}
	t := c.findTarget(label, true)
	if t == nil {
		c.addError(n, "Illegal continue statement")
		return
	}
	c.exitTo(t.withDepth, t.tryDepth)
	t.continues = append(t.continues, c.emitPlaceholderJump(vm.OpJump, 0))
}

func (c *Compiler) compileReturnStatement(n *parser.ReturnStatement) {
	if c.fs.kind != kindFunctionCode {
		c.addError(n, "Illegal return statement")
		return
	}
	if n.ReturnValue == nil && len(c.fs.tries) == 0 {
		c.emitOpCode(vm.OpReturnUndefined)
		return
	}
	r := c.fs.regs.Alloc()
	if n.ReturnValue == nil {
		c.emitLoadUndefined(r)
	} else {
		c.compileExpression(n.ReturnValue, r)
	}
	c.runFinallyBlocks(0)
	c.setLine(n)
	c.emitReturn(r)
}

// exitTo emits the code leaving the current position for a statement
// entered at the given with and try depths: pending finally blocks run
// and with scopes are popped.
func (c *Compiler) exitTo(withDepth, tryDepth int) {
	depth := c.runFinallyBlocks(tryDepth)
	c.emitPopWith(depth - withDepth)
}

// declareBlock defines the lexical bindings of stmts in scope and creates
// the functions they declare.
func (c *Compiler) declareBlock(stmts []parser.Statement, scope *SymbolTable) {
	if !c.isScriptTop(scope) {
		for _, name := range lexicalNames(stmts) {
			scope.Define(name)
		}
	}
	for _, fd := range functionDeclarations(stmts) {
		c.withTemp(func(r Register) {
			c.compileFunctionLiteral(fd.Function, r, "")
			c.storeName(fd.Function.Name.Value, r)
		})
	}
}
