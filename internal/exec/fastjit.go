package exec

import (
	"fmt"

	"rayzor/internal/mir"
)

// compileFastJIT promotes fn to T1/T2: the same backend/llvm emission
// buildpipeline uses for the ahead-of-time --backend=llvm output,
// dlopen'd in-process instead of linked into a final binary. It is
// "fast" in the sense the teacher's AOT pipeline already is - this
// tier buys the interpreter-to-native jump, not a separate optimization
// level, since backend/llvm does not expose one. T3's extra pass (see
// optjit.go) is where a real up-tier distinction would eventually live.
func compileFastJIT(ex *Executor, fn *mir.Func) (CompiledFunc, error) {
	return compileTier(ex, fn, "fast JIT", &ex.fastNative, "-O0")
}

func compileTier(ex *Executor, fn *mir.Func, label string, slot *nativeModule, optLevel string) (CompiledFunc, error) {
	if fn.IsAsync {
		return nil, fmt.Errorf("%s: %s is async, not eligible for native promotion", label, fn.Name)
	}
	if fn.ParamCount > 4 {
		return nil, fmt.Errorf("%s: %s takes %d params, native trampoline supports at most 4", label, fn.Name, fn.ParamCount)
	}

	lib, err := ex.ensureNativeModule(slot, optLevel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	symbolName := fmt.Sprintf("fn.%d", fn.ID)
	fp, err := lib.symbol(symbolName)
	if err != nil {
		return nil, fmt.Errorf("%s: resolving %s: %w", label, symbolName, err)
	}

	paramCount := fn.ParamCount
	compiled := CompiledFunc(func(args []Value) (Value, error) {
		raw := make([]int64, paramCount)
		for i := 0; i < paramCount; i++ {
			v, ok := toRawInt(args, i)
			if !ok {
				return Null(), fmt.Errorf("%s: argument %d to %s is not an integer-representable value", label, i, fn.Name)
			}
			raw[i] = v
		}
		result, err := callNative(fp, raw)
		if err != nil {
			return Null(), fmt.Errorf("%s: calling %s: %w", label, fn.Name, err)
		}
		return Int(result), nil
	})
	return compiled, nil
}

// toRawInt reads args[i] as a plain int64, the only value shape the
// fixed int64-parameter native trampoline can pass through; floats and
// heap handles fall back to an error so the caller can keep the call on
// the interpreter tier for that one invocation rather than corrupt the
// native call.
func toRawInt(args []Value, i int) (int64, bool) {
	if i >= len(args) {
		return 0, true
	}
	v := args[i]
	switch {
	case IsInt(v):
		return AsInt(v), true
	case IsBool(v):
		if AsBool(v) {
			return 1, true
		}
		return 0, true
	case IsNull(v):
		return 0, true
	default:
		return 0, false
	}
}
