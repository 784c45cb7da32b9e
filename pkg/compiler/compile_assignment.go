package compiler

import (
	"strings"

	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// writesLast reports whether compiling expr into a register writes it only
// after every operand has been read, so a local can be the destination.
func writesLast(expr parser.Expression) bool {
	switch n := expr.(type) {
	case *parser.InfixExpression:
		return n.Operator != "&&" && n.Operator != "||"
	case *parser.CallExpression, *parser.NewExpression, *parser.MemberExpression,
		*parser.IndexExpression, *parser.NumberLiteral, *parser.StringLiteral,
		*parser.BooleanLiteral, *parser.NullLiteral, *parser.Identifier, *parser.ThisExpression:
		return true
	}
	return false
}

func (c *Compiler) compileAssignment(n *parser.AssignmentExpression, dst Register) {
	if n.Operator == "=" {
		c.compileSimpleAssignment(n, dst)
		return
	}
	op, ok := binaryOps[strings.TrimSuffix(n.Operator, "=")]
	if !ok {
		c.addError(n, "unknown operator "+n.Operator)
		return
	}
	switch target := n.Target.(type) {
	case *parser.Identifier:
		ref := c.resolve(target.Value)
		if ref.kind == resolveLocal {
			local := Register(ref.sym.Index)
			right := c.exprReg(n.Value)
			c.setLine(n)
			c.emitBinary(op, local, local, right)
			if dst != local {
				c.emitMove(dst, local)
			}
			return
		}
		cur := c.fs.regs.Alloc()
		c.loadName(target.Value, cur)
		right := c.exprReg(n.Value)
		c.setLine(n)
		c.emitBinary(op, dst, cur, right)
		c.storeName(target.Value, dst)
	case *parser.MemberExpression:
		obj := c.operandReg(target.Object, n.Value)
		cur := c.fs.regs.Alloc()
		c.setLine(target)
		c.emitGetProp(cur, obj, target.Property.Value)
		right := c.exprReg(n.Value)
		c.setLine(n)
		c.emitBinary(op, dst, cur, right)
		c.emitSetProp(obj, target.Property.Value, dst)
	case *parser.IndexExpression:
		obj := c.fs.regs.Alloc()
		c.compileExpression(target.Left, obj)
		key := c.fs.regs.Alloc()
		c.compileExpression(target.Index, key)
		cur := c.fs.regs.Alloc()
		c.setLine(target)
		c.emitBinary(vm.OpGetIndex, cur, obj, key)
		right := c.exprReg(n.Value)
		c.setLine(n)
		c.emitBinary(op, dst, cur, right)
		c.emitBinary(vm.OpSetIndex, obj, key, dst)
	default:
		c.addError(n, "Invalid left-hand side in assignment")
	}
}

func (c *Compiler) compileSimpleAssignment(n *parser.AssignmentExpression, dst Register) {
	switch target := n.Target.(type) {
	case *parser.Identifier:
		ref := c.resolve(target.Value)
		if ref.kind == resolveLocal && writesLast(n.Value) {
			local := Register(ref.sym.Index)
			c.compileNamedExpression(n.Value, local, target.Value)
			if dst != local {
				c.emitMove(dst, local)
			}
			return
		}
		c.compileNamedExpression(n.Value, dst, target.Value)
		c.setLine(n)
		c.storeName(target.Value, dst)
	case *parser.MemberExpression:
		obj := c.operandReg(target.Object, n.Value)
		c.compileNamedExpression(n.Value, dst, target.Property.Value)
		c.setLine(n)
		c.emitSetProp(obj, target.Property.Value, dst)
	case *parser.IndexExpression:
		obj := c.fs.regs.Alloc()
		c.compileExpression(target.Left, obj)
		key := c.operandReg(target.Index, n.Value)
		c.compileExpression(n.Value, dst)
		c.setLine(n)
		c.emitBinary(vm.OpSetIndex, obj, key, dst)
	default:
		c.addError(n, "Invalid left-hand side in assignment")
	}
}

// assignTo stores src into the reference target.
func (c *Compiler) assignTo(target parser.Expression, src Register) {
	mark := c.fs.regs.Mark()
	defer c.fs.regs.Reset(mark)
	switch t := target.(type) {
	case *parser.Identifier:
		c.storeName(t.Value, src)
	case *parser.MemberExpression:
		obj := c.exprReg(t.Object)
		c.emitSetProp(obj, t.Property.Value, src)
	case *parser.IndexExpression:
		obj := c.operandReg(t.Left, t.Index)
		key := c.exprReg(t.Index)
		c.emitBinary(vm.OpSetIndex, obj, key, src)
	default:
		c.addError(target, "Invalid assignment target")
	}
}

// compileUpdateExpression compiles ++ and --. The operand is converted to
// a number first; a postfix expression yields the converted old value.
// When the value is unused, wantValue is false.
func (c *Compiler) compileUpdateExpression(n *parser.UpdateExpression, dst Register, wantValue bool) {
	fs := c.fs
	op := vm.OpAdd
	if n.Operator == "--" {
		op = vm.OpSubtract
	}
	one := fs.regs.Alloc()
	c.emitLoadConstant(one, vm.IntegerValue(1))
	postfix := !n.Prefix && wantValue

	// update converts cur, computes the new value in place and moves the
	// result to dst.
	update := func(cur Register) {
		c.setLine(n)
		c.emitUnary(vm.OpToNumber, cur, cur)
		if postfix {
			c.emitMove(dst, cur)
		}
		c.emitBinary(op, cur, cur, one)
		if !postfix && wantValue && dst != cur {
			c.emitMove(dst, cur)
		}
	}

	switch target := n.Argument.(type) {
	case *parser.Identifier:
		if ref := c.resolve(target.Value); ref.kind == resolveLocal {
			update(Register(ref.sym.Index))
			return
		}
		cur := fs.regs.Alloc()
		c.loadName(target.Value, cur)
		update(cur)
		c.storeName(target.Value, cur)
	case *parser.MemberExpression:
		obj := c.exprReg(target.Object)
		cur := fs.regs.Alloc()
		c.emitGetProp(cur, obj, target.Property.Value)
		update(cur)
		c.emitSetProp(obj, target.Property.Value, cur)
	case *parser.IndexExpression:
		obj := c.operandReg(target.Left, target.Index)
		key := c.exprReg(target.Index)
		cur := fs.regs.Alloc()
		c.emitBinary(vm.OpGetIndex, cur, obj, key)
		update(cur)
		c.emitBinary(vm.OpSetIndex, obj, key, cur)
	default:
		c.addError(n, "Invalid left-hand side expression in update operation")
	}
}
