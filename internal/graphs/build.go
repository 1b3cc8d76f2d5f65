package graphs

import (
	"errors"

	"rayzor/internal/hir"
)

// Graphs bundles every analysis graph built for a single function.
type Graphs struct {
	CFG       *CFG
	Dominance *Dominance
	DefUse    *DefUse
	Ownership *OwnershipGraph
}

// ModuleGraphs bundles per-function graphs plus the whole-module call graph.
type ModuleGraphs struct {
	Funcs     map[hir.FuncID]*Graphs
	CallGraph *CallGraph
}

// BuildFuncGraphs runs the CFG/dominance/def-use/ownership passes for a
// single function. It returns a *BuildError (wrapping the underlying cause)
// if the CFG's exit block turns out to be unreachable, which would indicate
// a function with no path that returns or diverges - HIR lowering should
// never produce one, so surfacing it here catches lowering bugs early.
func BuildFuncGraphs(fn *hir.Func) (*Graphs, error) {
	cfg := BuildCFG(fn)
	if len(cfg.Block(cfg.Exit).Preds) == 0 && fn.Body != nil && !fn.Body.IsEmpty() {
		return nil, &BuildError{Func: fn.Name, Err: errUnreachableExit}
	}
	dom := ComputeDominance(cfg)
	du := BuildDefUse(cfg, dom)
	own := BuildOwnership(fn)

	return &Graphs{CFG: cfg, Dominance: dom, DefUse: du, Ownership: own}, nil
}

// BuildModuleGraphs builds per-function graphs for every function in module
// plus the module-wide call graph. Errors from individual functions are
// joined rather than aborting the whole build, so a single malformed
// function does not block attribute computation for the rest of the module.
func BuildModuleGraphs(module *hir.Module) (*ModuleGraphs, error) {
	out := &ModuleGraphs{Funcs: make(map[hir.FuncID]*Graphs, len(module.Funcs))}

	var errs []error
	for _, fn := range module.Funcs {
		g, err := BuildFuncGraphs(fn)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Funcs[fn.ID] = g
	}
	out.CallGraph = BuildCallGraph(module)

	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}
