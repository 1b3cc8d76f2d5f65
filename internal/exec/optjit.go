package exec

import "rayzor/internal/mir"

// compileOptJIT promotes fn to T3: the same pipeline as compileFastJIT,
// but linked at -O3, the optimization level the ahead-of-time
// --backend=llvm build already ships. A function only reaches this tier
// after crossing the Thresholds.OptJIT call count, by which point the
// one-time cost of a more aggressive clang pass is well worth paying.
func compileOptJIT(ex *Executor, fn *mir.Func) (CompiledFunc, error) {
	return compileTier(ex, fn, "opt JIT", &ex.optNative, "-O3")
}
