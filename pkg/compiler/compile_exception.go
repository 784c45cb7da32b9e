package compiler

import (
	"github.com/qtproject/qtjsbackend/pkg/parser"
	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// tryContext is an enclosing try statement with a finally block. Jumps
// leaving it run a copy of the finally block; the copies are holes in the
// ranges the statement's own handlers protect.
type tryContext struct {
	finally   *parser.BlockStatement
	scope     *SymbolTable
	withDepth int
	holes     [][2]int
}

// compileTryStatement lays out try/catch/finally as
//
//	try block; finally copy; jump end
//	catch handler: catch block; finally copy; jump end
//	finally handler: finally block; rethrow
//
// The catch handler protects the try block. The finally handler protects
// the try block when there is no catch, and the catch block otherwise.
func (c *Compiler) compileTryStatement(n *parser.TryStatement) {
	fs := c.fs
	var tc *tryContext
	if n.FinallyBlock != nil {
		tc = &tryContext{finally: n.FinallyBlock, scope: fs.scope, withDepth: fs.withDepth}
		fs.tries = append(fs.tries, tc)
	}

	tryStart := c.currentPosition()
	c.compileStatement(n.Block)
	tryEnd := c.currentPosition()

	var tryHoles [][2]int
	if tc != nil {
		tryHoles = tc.holes
		tc.holes = nil
		fs.tries = fs.tries[:len(fs.tries)-1]
		c.compileStatement(n.FinallyBlock)
	}
	endJumps := []int{c.emitPlaceholderJump(vm.OpJump, 0)}

	var catchStart, catchEnd int
	var catchHoles [][2]int
	if n.CatchBlock != nil {
		handler := c.currentPosition()
		exc := fs.regs.Alloc()
		c.addHandlers(tryStart, tryEnd, tryHoles, vm.ExceptionHandler{
			HandlerPC: handler,
			CatchReg:  int(exc),
			WithDepth: fs.withDepth,
		})
		if tc != nil {
			fs.tries = append(fs.tries, tc)
		}

		catchStart = c.currentPosition()
		scope := c.pushScope(BlockScope)
		if n.CatchParam != nil {
			sym := scope.Define(n.CatchParam.Value)
			c.storeSymbol(sym, exc)
		}
		c.compileBlockBody(n.CatchBlock.Statements, scope)
		c.popScope()
		catchEnd = c.currentPosition()

		if tc != nil {
			catchHoles = tc.holes
			tc.holes = nil
			fs.tries = fs.tries[:len(fs.tries)-1]
			c.compileStatement(n.FinallyBlock)
		}
		endJumps = append(endJumps, c.emitPlaceholderJump(vm.OpJump, 0))
	}

	if tc != nil {
		handler := c.currentPosition()
		exc := fs.regs.Alloc()
		h := vm.ExceptionHandler{
			HandlerPC: handler,
			CatchReg:  int(exc),
			WithDepth: fs.withDepth,
			IsFinally: true,
		}
		if n.CatchBlock == nil {
			c.addHandlers(tryStart, tryEnd, tryHoles, h)
		} else {
			c.addHandlers(catchStart, catchEnd, catchHoles, h)
		}
		c.compileStatement(n.FinallyBlock)
		c.setLine(n.FinallyBlock)
		c.emitOpCode(vm.OpThrow)
		c.emitByte(byte(exc))
	}

	for _, pos := range endJumps {
		c.patchJump(pos)
	}
}

// addHandlers protects [start, end) minus holes with h.
func (c *Compiler) addHandlers(start, end int, holes [][2]int, h vm.ExceptionHandler) {
	chunk := c.fs.chunk
	for _, hole := range holes {
		if hole[0] > start {
			h.TryStart, h.TryEnd = start, hole[0]
			chunk.ExceptionTable = append(chunk.ExceptionTable, h)
		}
		start = hole[1]
	}
	if end > start {
		h.TryStart, h.TryEnd = start, end
		chunk.ExceptionTable = append(chunk.ExceptionTable, h)
	}
}

// runFinallyBlocks emits copies of the finally blocks of the try
// statements entered above tryDepth, innermost first, popping with scopes
// down to each statement's depth. It returns the with depth reached.
func (c *Compiler) runFinallyBlocks(tryDepth int) int {
	fs := c.fs
	depth := fs.withDepth
	tries := fs.tries
	for i := len(tries) - 1; i >= tryDepth; i-- {
		tc := tries[i]
		c.emitPopWith(depth - tc.withDepth)
		depth = tc.withDepth

		savedScope, savedWith, savedTargets := fs.scope, fs.withDepth, fs.targets
		cut := 0
		for cut < len(savedTargets) && savedTargets[cut].tryDepth <= i {
			cut++
		}
		// copies, so statements inside the block cannot overwrite entries
		fs.targets = append([]*jumpTarget(nil), savedTargets[:cut]...)
		fs.tries = append([]*tryContext(nil), tries[:i]...)
		fs.scope = tc.scope
		fs.withDepth = tc.withDepth
		start := c.currentPosition()
		c.compileStatement(tc.finally)
		end := c.currentPosition()
		fs.tries, fs.scope, fs.withDepth, fs.targets = tries, savedScope, savedWith, savedTargets

		for _, inner := range tries[i:] {
			inner.holes = append(inner.holes, [2]int{start, end})
		}
	}
	return depth
}
