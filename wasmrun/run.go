// Package wasmrun executes modules produced by the Quill compiler with the
// wazero runtime.
package wasmrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ErrNoMain is returned when a module does not export a main function.
var ErrNoMain = errors.New("module does not export a main function")

// TrapError is returned when main aborts at run time, for example on a
// division by zero.
type TrapError struct {
	Err error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("main trapped: %v", e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

func newRuntime(ctx context.Context) wazero.Runtime {
	// Cancelling ctx interrupts a running main.
	config := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	return wazero.NewRuntimeWithConfig(ctx, config)
}

// Validate checks that module decodes and validates, and that it exports
// main with the signature () -> i32.
func Validate(ctx context.Context, module []byte) error {
	r := newRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	if err != nil {
		return fmt.Errorf("invalid module: %w", err)
	}
	return checkMain(compiled.ExportedFunctions())
}

// Run instantiates module in a fresh runtime, calls main with no arguments
// and returns its i32 result.
func Run(ctx context.Context, module []byte) (int32, error) {
	r := newRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	if err != nil {
		return 0, fmt.Errorf("invalid module: %w", err)
	}
	if err := checkMain(compiled.ExportedFunctions()); err != nil {
		return 0, err
	}

	instance, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	results, err := instance.ExportedFunction("main").Call(ctx)
	if err != nil {
		return 0, &TrapError{Err: err}
	}
	return api.DecodeI32(results[0]), nil
}

func checkMain(exports map[string]api.FunctionDefinition) error {
	main, ok := exports["main"]
	if !ok {
		return ErrNoMain
	}
	params := main.ParamTypes()
	results := main.ResultTypes()
	if len(params) != 0 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		return fmt.Errorf("main has signature (%s) -> (%s), want () -> (i32)",
			valueTypeNames(params), valueTypeNames(results))
	}
	return nil
}

func valueTypeNames(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}
