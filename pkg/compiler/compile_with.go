package compiler

import (
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// compileWithStatement pushes an object environment for the body. Names
// referenced inside resolve dynamically, so properties of the object
// shadow the bindings around the statement.
func (c *Compiler) compileWithStatement(n *parser.WithStatement) {
	fs := c.fs
	obj := fs.regs.Alloc()
	c.compileExpression(n.Object, obj)
	c.setLine(n)
	c.emitOpCode(vm.OpPushWith)
	c.emitByte(byte(obj))

	fs.withDepth++
	c.pushScope(WithScope)
	c.compileStatement(n.Body)
	c.popScope()
	fs.withDepth--

	c.emitOpCode(vm.OpPopWith)
}
