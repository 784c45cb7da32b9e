package compiler

import (
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// arrayBatch is the number of elements built per OpMakeArray/OpArrayAppend.
const arrayBatch = 64

// compileArrayLiteral builds the array in batches of consecutive
// registers. Holes become undefined elements.
func (c *Compiler) compileArrayLiteral(n *parser.ArrayLiteral, dst Register) {
	fs := c.fs
	arr := fs.regs.Alloc()
	elems := n.Elements
	op := vm.OpMakeArray
	for first := true; first || len(elems) > 0; first = false {
		count := min(len(elems), arrayBatch)
		mark := fs.regs.Mark()
		start := fs.regs.AllocContiguous(count)
		for i, el := range elems[:count] {
			r := start + Register(i)
			if el == nil {
				c.emitLoadUndefined(r)
				continue
			}
			c.compileExpression(el, r)
		}
		c.setLine(n)
		c.emitOpCode(op)
		c.emitByte(byte(arr))
		c.emitByte(byte(start))
		c.emitByte(byte(count))
		fs.regs.Reset(mark)
		elems = elems[count:]
		op = vm.OpArrayAppend
	}
	c.emitMove(dst, arr)
}

func (c *Compiler) compileObjectLiteral(n *parser.ObjectLiteral, dst Register) {
	fs := c.fs
	obj := fs.regs.Alloc()
	c.setLine(n)
	c.emitOpCode(vm.OpMakeObject)
	c.emitByte(byte(obj))
	for _, prop := range n.Properties {
		mark := fs.regs.Mark()
		switch prop.Kind {
		case "get", "set":
			getter, setter := fs.regs.Alloc(), fs.regs.Alloc()
			fn, other := getter, setter
			if prop.Kind == "set" {
				fn, other = setter, getter
			}
			c.compileNamedExpression(prop.Value, fn, prop.Key)
			c.emitLoadUndefined(other)
			c.emitOpCode(vm.OpDefineAccessor)
			c.emitByte(byte(obj))
			c.emitUint16(c.nameConstant(prop.Key))
			c.emitByte(byte(getter))
			c.emitByte(byte(setter))
		default:
			v := fs.regs.Alloc()
			c.compileNamedExpression(prop.Value, v, prop.Key)
			c.emitOpCode(vm.OpDefineField)
			c.emitByte(byte(obj))
			c.emitUint16(c.nameConstant(prop.Key))
			c.emitByte(byte(v))
		}
		fs.regs.Reset(mark)
	}
	c.emitMove(dst, obj)
}
