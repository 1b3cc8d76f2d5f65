package graphs

import "rayzor/internal/hir"

// spec.md §4.2 fixes the attribute thresholds exactly - these are not tuning
// knobs, they are the formulas named in the spec: inline_candidate requires
// fewer than 10 SSA defs and fewer than 3 phis, complex_control_flow fires
// above 20 phis.
const (
	inlineCandidateMaxDefs = 10
	inlineCandidateMaxPhis = 3
	complexControlFlowPhis = 20
	cseOpportunityMinDups  = 5
)

// AttachAttributes computes hir.Attributes for every function in module and
// stores them on fn.Attrs, using the previously built per-function graphs
// and the module's call graph to detect recursion and indirect calls.
func AttachAttributes(module *hir.Module, mg *ModuleGraphs) {
	if module == nil || mg == nil {
		return
	}
	for _, fn := range module.Funcs {
		g := mg.Funcs[fn.ID]
		if g == nil {
			continue
		}
		fn.Attrs = computeAttributes(fn, g, mg.CallGraph)
	}
}

// computeAttributes derives every hir.Attributes field from the function's
// def-use graph (internal/graphs/ssa.go's BuildDefUse), the same
// iterated-dominance-frontier phi placement MIR construction itself uses,
// per spec.md §4.2's exact thresholds rather than ad hoc statement/branch
// counts.
func computeAttributes(fn *hir.Func, g *Graphs, cg *CallGraph) *hir.Attributes {
	attrs := &hir.Attributes{}

	ssaDefCount := 0
	for _, blocks := range g.DefUse.Defs {
		ssaDefCount += len(blocks)
	}
	phiCount := 0
	for _, locals := range g.DefUse.PhiSites {
		phiCount += len(locals)
	}

	attrs.StraightLineCode = phiCount == 0
	attrs.ComplexControlFlow = phiCount > complexControlFlowPhis

	recursive := isRecursive(fn.ID, cg, make(map[hir.FuncID]bool))
	attrs.InlineCandidate = !recursive && ssaDefCount < inlineCandidateMaxDefs && phiCount < inlineCandidateMaxPhis

	attrs.CSEOpportunities = countDuplicateExprs(g.CFG)

	attrs.Pure = isPure(fn, cg)

	return attrs
}

func isRecursive(fn hir.FuncID, cg *CallGraph, visiting map[hir.FuncID]bool) bool {
	if visiting[fn] {
		return true
	}
	visiting[fn] = true
	for _, callee := range cg.Edges[fn] {
		if callee == fn {
			return true
		}
		if isRecursive(callee, cg, visiting) {
			return true
		}
	}
	return false
}

func isPure(fn *hir.Func, cg *CallGraph) bool {
	if cg.Indirect[fn.ID] > 0 {
		return false
	}
	for local, class := range mustOwnership(fn).Class {
		_ = local
		if class == EscapesMutated {
			return false
		}
	}
	return true
}

func mustOwnership(fn *hir.Func) *OwnershipGraph {
	return BuildOwnership(fn)
}

// countDuplicateExprs gives a cheap structural estimate of common
// subexpressions: binary operations that appear more than once across the
// function's blocks with identical operator and operand variable names.
func countDuplicateExprs(cfg *CFG) int {
	seen := make(map[string]int)
	for _, blk := range cfg.Blocks {
		if blk == nil {
			continue
		}
		for _, stmt := range blk.Stmts {
			walkExprKeys(stmtExpr(stmt), seen)
		}
	}
	dup := 0
	for _, n := range seen {
		if n > 1 {
			dup++
		}
	}
	return dup
}

func stmtExpr(stmt *hir.Stmt) *hir.Expr {
	switch data := stmt.Data.(type) {
	case hir.LetData:
		return data.Value
	case hir.ExprStmtData:
		return data.Expr
	case hir.AssignData:
		return data.Value
	case hir.ReturnData:
		return data.Value
	}
	return nil
}

func walkExprKeys(e *hir.Expr, seen map[string]int) {
	if e == nil {
		return
	}
	if e.Kind == hir.ExprBinaryOp {
		if data, ok := e.Data.(hir.BinaryOpData); ok {
			key := exprKey(data.Left) + "|" + string(rune(data.Op)) + "|" + exprKey(data.Right)
			seen[key]++
			walkExprKeys(data.Left, seen)
			walkExprKeys(data.Right, seen)
		}
	}
}

func exprKey(e *hir.Expr) string {
	if e == nil {
		return ""
	}
	if ref, ok := e.Data.(hir.VarRefData); ok {
		return ref.Name
	}
	return ""
}
