package vm

type envKind uint8

const (
	envFunction envKind = iota // locals of a function call
	envBlock                   // block locals of script or eval code
	envWith                    // object environment of a with statement
)

// Environment is a heap scope record. Function environments hold the
// locals of functions that need them (closures, eval, with); object
// environments wrap the target of a with statement.
type Environment struct {
	kind   envKind
	slots  []Value
	names  []string // slot names, for lookups by name
	parent *Environment
	object *Object // with target
	vars   *Object // bindings introduced by direct eval
}

// NewFunctionEnvironment creates the environment for an invocation of fn.
func NewFunctionEnvironment(fn *Function, parent *Environment) *Environment {
	env := &Environment{kind: envFunction, names: fn.SlotNames, parent: parent}
	if fn.Kind != KindFunction {
		env.kind = envBlock
	}
	env.slots = make([]Value, len(fn.SlotNames))
	return env
}

// NewObjectEnvironment creates the scope record pushed by `with (obj)`.
func NewObjectEnvironment(obj *Object, parent *Environment) *Environment {
	return &Environment{kind: envWith, object: obj, parent: parent}
}

func (e *Environment) Parent() *Environment { return e.parent }
func (e *Environment) IsWith() bool         { return e.kind == envWith }

// slotIndex finds the innermost slot called name. Later slots shadow
// earlier ones, matching the order block scopes are allocated in.
func (e *Environment) slotIndex(name string) int {
	for i := len(e.names) - 1; i >= 0; i-- {
		if e.names[i] == name {
			return i
		}
	}
	return -1
}

// ancestor walks depth environments up the static chain.
func (e *Environment) ancestor(depth int) *Environment {
	for ; depth > 0; depth-- {
		e = e.parent
	}
	return e
}

// binding is the result of a by-name lookup through the scope chain.
type binding struct {
	env  *Environment // slot environment, or nil
	slot int
	obj  *Object // with target or eval vars holding the name
}

func (b binding) found() bool { return b.env != nil || b.obj != nil }

// lookupScope searches the scope chain for name. Globals are not consulted.
func (e *Environment) lookupScope(name string) binding {
	for env := e; env != nil; env = env.parent {
		if env.kind == envWith {
			if env.object.HasProperty(name) {
				return binding{obj: env.object}
			}
			continue
		}
		if i := env.slotIndex(name); i >= 0 {
			return binding{env: env, slot: i}
		}
		if env.vars != nil && env.vars.HasOwnProperty(name) {
			return binding{obj: env.vars}
		}
	}
	return binding{}
}

// varScope returns the nearest function environment, the target of var
// declarations made by eval code. nil means the global object.
func (e *Environment) varScope() *Environment {
	for env := e; env != nil; env = env.parent {
		if env.kind == envFunction {
			return env
		}
	}
	return nil
}
