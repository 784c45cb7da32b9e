package compiler

import (
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

var binaryOps = map[string]vm.OpCode{
	"+":          vm.OpAdd,
	"-":          vm.OpSubtract,
	"*":          vm.OpMultiply,
	"/":          vm.OpDivide,
	"%":          vm.OpRemainder,
	"&":          vm.OpBitwiseAnd,
	"|":          vm.OpBitwiseOr,
	"^":          vm.OpBitwiseXor,
	"<<":         vm.OpShiftLeft,
	">>":         vm.OpShiftRight,
	">>>":        vm.OpUnsignedShiftRight,
	"==":         vm.OpEqual,
	"!=":         vm.OpNotEqual,
	"===":        vm.OpStrictEqual,
	"!==":        vm.OpStrictNotEqual,
	"<":          vm.OpLess,
	"<=":         vm.OpLessEqual,
	">":          vm.OpGreater,
	">=":         vm.OpGreaterEqual,
	"in":         vm.OpIn,
	"instanceof": vm.OpInstanceof,
}

// compileExpression emits code leaving the value of expr in dst.
// Temporaries allocated on the way are released before it returns.
func (c *Compiler) compileExpression(expr parser.Expression, dst Register) {
	mark := c.fs.regs.Mark()
	defer c.fs.regs.Reset(mark)

	switch n := expr.(type) {
	case *parser.NumberLiteral:
		c.emitLoadConstant(dst, numberValue(n.Value))
	case *parser.StringLiteral:
		c.emitLoadConstant(dst, vm.NewString(n.Value))
	case *parser.BooleanLiteral:
		if n.Value {
			c.emitOpCode(vm.OpLoadTrue)
		} else {
			c.emitOpCode(vm.OpLoadFalse)
		}
		c.emitByte(byte(dst))
	case *parser.NullLiteral:
		c.emitOpCode(vm.OpLoadNull)
		c.emitByte(byte(dst))
	case *parser.Identifier:
		c.setLine(n)
		c.loadName(n.Value, dst)
	case *parser.ThisExpression:
		c.emitOpCode(vm.OpGetThis)
		c.emitByte(byte(dst))
	case *parser.RegexLiteral:
		c.setLine(n)
		c.emitOpCode(vm.OpMakeRegExp)
		c.emitByte(byte(dst))
		c.emitUint16(c.constant(vm.NewString(n.Pattern)))
		c.emitUint16(c.constant(vm.NewString(n.Flags)))
	case *parser.ArrayLiteral:
		c.compileArrayLiteral(n, dst)
	case *parser.ObjectLiteral:
		c.compileObjectLiteral(n, dst)
	case *parser.FunctionLiteral:
		c.compileFunctionLiteral(n, dst, "")
	case *parser.PrefixExpression:
		c.compilePrefixExpression(n, dst)
	case *parser.UpdateExpression:
		c.compileUpdateExpression(n, dst, true)
	case *parser.InfixExpression:
		c.compileInfixExpression(n, dst)
	case *parser.AssignmentExpression:
		c.compileAssignment(n, dst)
	case *parser.ConditionalExpression:
		elseJump := c.compileCondition(n.Condition)
		c.compileExpression(n.Consequence, dst)
		endJump := c.emitPlaceholderJump(vm.OpJump, 0)
		c.patchJump(elseJump)
		c.compileExpression(n.Alternative, dst)
		c.patchJump(endJump)
	case *parser.CallExpression:
		c.compileCallExpression(n, dst)
	case *parser.NewExpression:
		c.compileNewExpression(n, dst)
	case *parser.MemberExpression:
		obj := c.exprReg(n.Object)
		c.setLine(n)
		c.emitGetProp(dst, obj, n.Property.Value)
	case *parser.IndexExpression:
		obj := c.operandReg(n.Left, n.Index)
		key := c.exprReg(n.Index)
		c.setLine(n)
		c.emitBinary(vm.OpGetIndex, dst, obj, key)
	case *parser.SequenceExpression:
		last := len(n.Expressions) - 1
		for _, e := range n.Expressions[:last] {
			c.compileDiscard(e)
		}
		c.compileExpression(n.Expressions[last], dst)
	default:
		c.addError(expr, "unsupported expression")
	}
}

// compileNamedExpression compiles expr, naming an anonymous function
// literal after the binding it is assigned to.
func (c *Compiler) compileNamedExpression(expr parser.Expression, dst Register, name string) {
	if lit, ok := expr.(*parser.FunctionLiteral); ok && lit.Name == nil {
		mark := c.fs.regs.Mark()
		c.compileFunctionLiteral(lit, dst, name)
		c.fs.regs.Reset(mark)
		return
	}
	c.compileExpression(expr, dst)
}

// compileDiscard evaluates expr for its side effects.
func (c *Compiler) compileDiscard(expr parser.Expression) {
	mark := c.fs.regs.Mark()
	defer c.fs.regs.Reset(mark)
	if u, ok := expr.(*parser.UpdateExpression); ok {
		c.compileUpdateExpression(u, c.fs.regs.Alloc(), false)
		return
	}
	c.compileExpression(expr, c.fs.regs.Alloc())
}

// exprReg returns a register holding the value of expr. Locals held in
// registers are used in place, anything else goes to a new temporary the
// caller releases.
func (c *Compiler) exprReg(expr parser.Expression) Register {
	if id, ok := expr.(*parser.Identifier); ok {
		if ref := c.resolve(id.Value); ref.kind == resolveLocal {
			return Register(ref.sym.Index)
		}
	}
	r := c.fs.regs.Alloc()
	c.compileExpression(expr, r)
	return r
}

// operandReg is exprReg for an operand evaluated before next. A local is
// only used in place when next cannot assign to it.
func (c *Compiler) operandReg(expr, next parser.Expression) Register {
	if isSimple(next) {
		return c.exprReg(expr)
	}
	r := c.fs.regs.Alloc()
	c.compileExpression(expr, r)
	return r
}

func numberValue(f float64) vm.Value {
	if i := int32(f); float64(i) == f && !(f == 0 && 1/f < 0) {
		return vm.IntegerValue(i)
	}
	return vm.NumberValue(f)
}

func (c *Compiler) compileInfixExpression(n *parser.InfixExpression, dst Register) {
	switch n.Operator {
	case "&&", "||":
		c.compileExpression(n.Left, dst)
		op := vm.OpJumpIfFalse
		if n.Operator == "||" {
			op = vm.OpJumpIfTrue
		}
		end := c.emitPlaceholderJump(op, dst)
		c.compileExpression(n.Right, dst)
		c.patchJump(end)
		return
	}
	op, ok := binaryOps[n.Operator]
	if !ok {
		c.addError(n, "unknown operator "+n.Operator)
		return
	}
	left := c.operandReg(n.Left, n.Right)
	right := c.exprReg(n.Right)
	c.setLine(n)
	c.emitBinary(op, dst, left, right)
}

func (c *Compiler) compilePrefixExpression(n *parser.PrefixExpression, dst Register) {
	switch n.Operator {
	case "-":
		if lit, ok := n.Right.(*parser.NumberLiteral); ok {
			c.emitLoadConstant(dst, numberValue(-lit.Value))
			return
		}
		c.emitUnary(vm.OpNegate, dst, c.exprReg(n.Right))
	case "+":
		c.emitUnary(vm.OpToNumber, dst, c.exprReg(n.Right))
	case "!":
		c.emitUnary(vm.OpNot, dst, c.exprReg(n.Right))
	case "~":
		c.emitUnary(vm.OpBitwiseNot, dst, c.exprReg(n.Right))
	case "void":
		c.compileDiscard(n.Right)
		c.emitLoadUndefined(dst)
	case "typeof":
		c.compileTypeof(n, dst)
	case "delete":
		c.compileDelete(n, dst)
	default:
		c.addError(n, "unknown operator "+n.Operator)
	}
}

// compileTypeof never throws for an unresolvable name.
func (c *Compiler) compileTypeof(n *parser.PrefixExpression, dst Register) {
	id, ok := n.Right.(*parser.Identifier)
	if !ok {
		c.emitUnary(vm.OpTypeof, dst, c.exprReg(n.Right))
		return
	}
	c.setLine(n)
	ref := c.resolve(id.Value)
	switch ref.kind {
	case resolveLocal:
		c.emitUnary(vm.OpTypeof, dst, Register(ref.sym.Index))
	case resolveEnv:
		c.emitEnvAccess(vm.OpGetVar, dst, ref)
		c.emitUnary(vm.OpTypeof, dst, dst)
	default:
		c.emitOpCode(vm.OpTypeofName)
		c.emitByte(byte(dst))
		c.emitUint16(c.nameConstant(id.Value))
		if ref.kind == resolveDynamic {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
	}
}

func (c *Compiler) compileDelete(n *parser.PrefixExpression, dst Register) {
	c.setLine(n)
	switch target := n.Right.(type) {
	case *parser.Identifier:
		switch c.resolve(target.Value).kind {
		case resolveLocal, resolveEnv:
			c.emitOpCode(vm.OpLoadFalse)
			c.emitByte(byte(dst))
		default:
			c.emitNameOp(vm.OpDeleteName, dst, target.Value)
		}
	case *parser.MemberExpression:
		obj := c.exprReg(target.Object)
		key := c.fs.regs.Alloc()
		c.emitLoadConstant(key, vm.NewString(target.Property.Value))
		c.emitBinary(vm.OpDeleteProp, dst, obj, key)
	case *parser.IndexExpression:
		obj := c.operandReg(target.Left, target.Index)
		key := c.exprReg(target.Index)
		c.emitBinary(vm.OpDeleteProp, dst, obj, key)
	default:
		c.compileDiscard(n.Right)
		c.emitOpCode(vm.OpLoadTrue)
		c.emitByte(byte(dst))
	}
}

// --- Calls ---

func (c *Compiler) compileArguments(args []parser.Expression, node parser.Node) int {
	if len(args) > 255 {
		c.addError(node, "too many arguments in call")
		return 0
	}
	for _, arg := range args {
		r := c.fs.regs.Alloc()
		c.compileExpression(arg, r)
	}
	return len(args)
}

func (c *Compiler) compileCallExpression(n *parser.CallExpression, dst Register) {
	fs := c.fs
	switch callee := n.Function.(type) {
	case *parser.Identifier:
		if callee.Value == "eval" {
			if kind := c.resolve("eval").kind; kind == resolveGlobal || kind == resolveDynamic {
				f := fs.regs.Alloc()
				argc := c.compileArguments(n.Arguments, n)
				c.setLine(n)
				c.emitCall(vm.OpDirectEval, dst, f, argc)
				return
			}
		}
	case *parser.MemberExpression:
		this := fs.regs.Alloc()
		c.compileExpression(callee.Object, this)
		f := fs.regs.Alloc()
		c.setLine(callee)
		c.emitGetProp(f, this, callee.Property.Value)
		argc := c.compileArguments(n.Arguments, n)
		c.setLine(n)
		c.emitCallMethod(dst, f, this, argc)
		return
	case *parser.IndexExpression:
		this := fs.regs.Alloc()
		c.compileExpression(callee.Left, this)
		f := fs.regs.Alloc()
		mark := fs.regs.Mark()
		key := c.exprReg(callee.Index)
		c.setLine(callee)
		c.emitBinary(vm.OpGetIndex, f, this, key)
		fs.regs.Reset(mark)
		argc := c.compileArguments(n.Arguments, n)
		c.setLine(n)
		c.emitCallMethod(dst, f, this, argc)
		return
	}
	f := fs.regs.Alloc()
	c.compileExpression(n.Function, f)
	argc := c.compileArguments(n.Arguments, n)
	c.setLine(n)
	c.emitCall(vm.OpCall, dst, f, argc)
}

func (c *Compiler) compileNewExpression(n *parser.NewExpression, dst Register) {
	f := c.fs.regs.Alloc()
	c.compileExpression(n.Constructor, f)
	argc := c.compileArguments(n.Arguments, n)
	c.setLine(n)
	c.emitCall(vm.OpNew, dst, f, argc)
}
