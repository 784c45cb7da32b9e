package builtins

import (
	"fmt"
	"strings"
	"time"

	"github.com/qtproject/qtjsbackend/pkg/vm"
)

type ConsoleInitializer struct{}

func (c *ConsoleInitializer) Name() string {
	return "console"
}

func (c *ConsoleInitializer) Priority() int {
	return PriorityConsole // 102 - After JSON
}

func (c *ConsoleInitializer) InitRuntime(ctx *RuntimeContext) error {
	consoleObj := ctx.Realm.NewObject()

	// Timer storage for console.time/timeEnd
	timers := make(map[string]time.Time)

	// Helper function to format arguments for console output
	formatArgs := func(args []vm.Value) string {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Inspect()
		}
		return strings.Join(parts, " ")
	}
	printer := func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		fmt.Fprintln(m.Output(), formatArgs(args))
		return vm.Undefined, nil
	}

	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		ctx.defineMethod(consoleObj, name, 0, printer)
	}
	ctx.defineMethod(consoleObj, "time", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		label, err := timerLabel(m, args)
		if err != nil {
			return vm.Undefined, err
		}
		timers[label] = time.Now()
		return vm.Undefined, nil
	})
	ctx.defineMethod(consoleObj, "timeEnd", 0, func(m *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		label, err := timerLabel(m, args)
		if err != nil {
			return vm.Undefined, err
		}
		start, ok := timers[label]
		if !ok {
			fmt.Fprintf(m.Output(), "Warning: No such label '%s' for console.timeEnd()\n", label)
			return vm.Undefined, nil
		}
		delete(timers, label)
		fmt.Fprintf(m.Output(), "%s: %.3fms\n", label, float64(time.Since(start).Microseconds())/1000)
		return vm.Undefined, nil
	})

	return ctx.DefineGlobal("console", vm.ObjectValue(consoleObj))
}

func timerLabel(m *vm.VM, args []vm.Value) (string, error) {
	if vm.Arg(args, 0).IsUndefined() {
		return "default", nil
	}
	return stringArg(m, args, 0)
}
