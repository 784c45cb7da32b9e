package builtins

import (
	"fmt"
	"sort"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

// GetStandardInitializers returns all built-in initializers sorted by priority
func GetStandardInitializers() []BuiltinInitializer {
	var initializers []BuiltinInitializer

	// Core builtins
	initializers = append(initializers, &ObjectInitializer{})
	initializers = append(initializers, &FunctionInitializer{})
	initializers = append(initializers, &ArrayInitializer{})
	initializers = append(initializers, &ErrorInitializer{})
	initializers = append(initializers, &GlobalsInitializer{})

	// Primitive wrappers
	initializers = append(initializers, &StringInitializer{})
	initializers = append(initializers, &NumberInitializer{})
	initializers = append(initializers, &BooleanInitializer{})
	initializers = append(initializers, &RegExpInitializer{})

	// Namespaces
	initializers = append(initializers, &MathInitializer{})
	initializers = append(initializers, &JSONInitializer{})
	initializers = append(initializers, &ConsoleInitializer{})

	// Sort by priority (lower numbers first)
	sort.SliceStable(initializers, func(i, j int) bool {
		return initializers[i].Priority() < initializers[j].Priority()
	})

	return initializers
}

// InitializeRealm populates the prototypes and global object of r with the
// standard library.
func InitializeRealm(r *vm.Realm) error {
	ctx := &RuntimeContext{
		VM:    r.VM(),
		Realm: r,
		DefineGlobal: func(name string, value vm.Value) error {
			if r.GlobalObject.HasOwnProperty(name) {
				return fmt.Errorf("global %q already defined", name)
			}
			r.DefineGlobal(name, value)
			return nil
		},
		ObjectPrototype:   r.ObjectPrototype,
		FunctionPrototype: r.FunctionPrototype,
		ArrayPrototype:    r.ArrayPrototype,
	}
	for _, init := range GetStandardInitializers() {
		if err := init.InitRuntime(ctx); err != nil {
			return fmt.Errorf("initializing %s: %w", init.Name(), err)
		}
	}
	return nil
}
