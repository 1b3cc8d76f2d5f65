// Package optimizer runs the post-lowering MIR optimization passes:
// constant folding, copy propagation, local common subexpression
// elimination, dead code elimination, and small-function inlining. Each
// pass is conservative by construction (it only ever removes or rewrites
// work proven redundant by SSA facts computed fresh from the existing
// place-based instructions - see internal/mir's SSAForm); Run still
// re-validates after every round as a backstop and stops optimizing,
// rather than risk handing a corrupted module downstream, the moment a
// round fails validation.
package optimizer

import (
	"fmt"
	"os"

	"rayzor/internal/mir"
	"rayzor/internal/types"
)

// Config controls the pipeline.
type Config struct {
	// Types is required to re-validate after each round; without it Run
	// still optimizes, it just skips the safety re-check.
	Types *types.Interner
	// MaxRounds bounds the fixpoint loop (constfold/copyprop/cse/dce can
	// each unlock more of the next), defaulting to 4 when zero.
	MaxRounds int
}

// Run applies every pass to m and returns it (the passes mutate m's
// functions in place; the return value exists so call sites read as a
// pipeline stage, matching the rest of internal/buildpipeline's style).
func Run(m *mir.Module, cfg Config) *mir.Module {
	if m == nil {
		return m
	}
	rounds := cfg.MaxRounds
	if rounds <= 0 {
		rounds = 4
	}

	for round := 0; round < rounds; round++ {
		changed := false
		for _, fn := range m.Funcs {
			changed = runFuncPasses(fn, cfg.Types) || changed
		}
		if inline(m) {
			changed = true
		}
		if !validateRound(m, cfg.Types, round) {
			break
		}
		if !changed {
			break
		}
	}
	return m
}

func runFuncPasses(fn *mir.Func, in *types.Interner) bool {
	if fn == nil {
		return false
	}
	changed := false
	changed = constFold(fn, in) || changed
	changed = copyProp(fn) || changed
	changed = cse(fn) || changed
	changed = deadCodeEliminate(fn) || changed
	return changed
}

func validateRound(m *mir.Module, in *types.Interner, round int) bool {
	if in == nil {
		return true
	}
	if err := mir.Validate(m, in); err != nil {
		fmt.Fprintf(os.Stderr, "optimizer: round %d produced an invalid module, stopping: %v\n", round, err)
		return false
	}
	return true
}
