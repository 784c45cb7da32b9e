package compiler

// ScopeKind distinguishes the lexical scopes the compiler tracks.
type ScopeKind uint8

const (
	FunctionScope ScopeKind = iota
	BlockScope
	WithScope
)

// Symbol is a binding resolved at compile time. Bindings of functions that
// keep their locals in an environment live in a slot, the others in a
// register of the frame.
type Symbol struct {
	Name  string
	InEnv bool
	Index int // environment slot or register
}

// SymbolTable is one lexical scope. A with scope holds no bindings; it
// only marks where name resolution turns dynamic.
type SymbolTable struct {
	Kind  ScopeKind
	Outer *SymbolTable
	fs    *funcState
	store map[string]*Symbol
}

// NewSymbolTable creates a scope nested in outer for the function fs.
func NewSymbolTable(kind ScopeKind, outer *SymbolTable, fs *funcState) *SymbolTable {
	return &SymbolTable{Kind: kind, Outer: outer, fs: fs, store: make(map[string]*Symbol)}
}

// Lookup finds name among this scope's own bindings.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	sym, ok := s.store[name]
	return sym, ok
}

// Define binds name in this scope. A name defined twice keeps its first
// storage.
func (s *SymbolTable) Define(name string) *Symbol {
	if sym, ok := s.store[name]; ok {
		return sym
	}
	fs := s.fs
	sym := &Symbol{Name: name}
	if fs.needsEnv {
		sym.InEnv = true
		sym.Index = len(fs.slotNames)
		fs.slotNames = append(fs.slotNames, name)
	} else {
		sym.Index = int(fs.regs.Alloc())
	}
	s.store[name] = sym
	return sym
}

// resolution describes how an identifier reference is compiled.
type resolution uint8

const (
	resolveGlobal  resolution = iota // global object, then QML global
	resolveDynamic                   // searched by name at run time
	resolveLocal                     // register of the current frame
	resolveEnv                       // environment slot Depth levels up
)

type reference struct {
	kind  resolution
	sym   *Symbol
	depth int
}

// resolve determines how name is reached from the current scope. A
// reference turns dynamic when it crosses a with statement, when it
// leaves a function containing a direct eval, and in eval code for names
// not declared in it.
func (c *Compiler) resolve(name string) reference {
	fs := c.fs
	depth := 0
	dynamic := false
	for s := fs.scope; ; {
		if s == nil {
			// leaving fs
			if fs.hasEval || fs.kind == kindEvalCode {
				dynamic = true
			}
			if fs.needsEnv {
				depth++
			}
			fs = fs.parent
			if fs == nil {
				break
			}
			s = fs.scope
			continue
		}
		if s.Kind == WithScope {
			dynamic = true
		} else if sym, ok := s.store[name]; ok {
			switch {
			case dynamic:
				return reference{kind: resolveDynamic}
			case !sym.InEnv:
				return reference{kind: resolveLocal, sym: sym}
			default:
				return reference{kind: resolveEnv, sym: sym, depth: depth}
			}
		}
		if s.Outer == nil || s.Outer.fs != s.fs {
			s = nil
		} else {
			s = s.Outer
		}
	}
	if dynamic {
		return reference{kind: resolveDynamic}
	}
	return reference{kind: resolveGlobal}
}
