// Package runtime evaluates a bundled entry in an embedded JavaScript VM so its page-load side
// effects (console output and globals) can be observed without a browser.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// host bindings that are not part of what the entry registers
var hostGlobals = []string{"console", "window", "self", "globalThis"}

// Runner owns one VM, the equivalent of a single page; running a script twice is a second
// evaluation in the same page.
type Runner struct {
	vm       *goja.Runtime
	baseline map[string]bool

	mu      sync.Mutex
	console []string
}

func NewRunner() *Runner {
	r := &Runner{vm: goja.New()}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, r.consoleFunc(level))
	}
	_ = r.vm.Set("console", console)

	global := r.vm.GlobalObject()
	_ = r.vm.Set("window", global)
	_ = r.vm.Set("self", global)

	r.baseline = make(map[string]bool)
	for _, key := range global.Keys() {
		r.baseline[key] = true
	}

	return r
}

func (r *Runner) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		line := strings.Join(parts, " ")

		r.mu.Lock()
		r.console = append(r.console, line)
		r.mu.Unlock()

		log.Debug().Str("level", level).Str("line", line).Msg("console")
		return goja.Undefined()
	}
}

// Run evaluates script, interrupting it when ctx is done
func (r *Runner) Run(ctx context.Context, name, script string) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := r.vm.RunScript(name, script); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			r.vm.ClearInterrupt()
			return fmt.Errorf("%s interrupted: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// Console returns every line written to console so far
func (r *Runner) Console() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.console)
}

// Globals returns the enumerable globals defined by evaluated scripts, sorted
func (r *Runner) Globals() []string {
	var names []string
	for _, key := range r.vm.GlobalObject().Keys() {
		if r.baseline[key] || slices.Contains(hostGlobals, key) {
			continue
		}
		names = append(names, key)
	}
	slices.Sort(names)
	return names
}

// Report is the observable outcome of evaluating one entry once
type Report struct {
	Console []string
	Globals []string
}

// Run evaluates script in a fresh VM
func Run(ctx context.Context, name, script string) (*Report, error) {
	r := NewRunner()
	if err := r.Run(ctx, name, script); err != nil {
		return nil, err
	}
	return &Report{Console: r.Console(), Globals: r.Globals()}, nil
}
