package graphs

import "rayzor/internal/hir"

// DefUse is the def-use graph for a function's locals: which blocks define
// and use each local, and where phi nodes would need to be inserted to give
// the function SSA form. MIR construction consults PhiSites when it builds
// its own SSA values; this graph exists so semantic analyses (liveness,
// inline heuristics, CSE candidate detection) can reason about data flow
// directly over HIR, without waiting for MIR to exist.
type DefUse struct {
	// Defs maps a local to the blocks in which it is assigned (let-binding,
	// plain assignment, or loop-induction variable).
	Defs map[LocalID][]BlockID
	// Uses maps a local to the blocks that read it.
	Uses map[LocalID][]BlockID
	// PhiSites maps a block to the set of locals that need a phi there,
	// computed from the iterated dominance frontier of each local's def set.
	PhiSites map[BlockID][]LocalID
}

// BuildDefUse walks the CFG's straight-line statements and derives the
// def-use graph, then places phis via the standard iterated-dominance-
// frontier construction (Cytron et al.).
func BuildDefUse(g *CFG, dom *Dominance) *DefUse {
	du := &DefUse{
		Defs: make(map[LocalID][]BlockID),
		Uses: make(map[LocalID][]BlockID),
	}

	for _, blk := range g.Blocks {
		if blk == nil || blk.ID == NoBlockID {
			continue
		}
		for _, stmt := range blk.Stmts {
			collectDefsUses(stmt, blk.ID, du)
		}
		if blk.Cond != nil {
			collectExprUses(blk.Cond, blk.ID, du)
		}
	}

	du.PhiSites = placePhis(du.Defs, dom)
	return du
}

func collectDefsUses(stmt *hir.Stmt, block BlockID, du *DefUse) {
	switch data := stmt.Data.(type) {
	case hir.LetData:
		if data.SymbolID != 0 {
			du.define(LocalID(data.SymbolID), block)
		}
		if data.Value != nil {
			collectExprUses(data.Value, block, du)
		}
	case hir.AssignData:
		if data.Target != nil && data.Target.Kind == hir.ExprVarRef {
			if ref, ok := data.Target.Data.(hir.VarRefData); ok {
				du.define(LocalID(ref.SymbolID), block)
			}
		} else if data.Target != nil {
			collectExprUses(data.Target, block, du)
		}
		if data.Value != nil {
			collectExprUses(data.Value, block, du)
		}
	case hir.ExprStmtData:
		if data.Expr != nil {
			collectExprUses(data.Expr, block, du)
		}
	case hir.ReturnData:
		if data.Value != nil {
			collectExprUses(data.Value, block, du)
		}
	case hir.DropData:
		if data.Value != nil {
			collectExprUses(data.Value, block, du)
		}
	}
}

func collectExprUses(e *hir.Expr, block BlockID, du *DefUse) {
	if e == nil {
		return
	}
	switch data := e.Data.(type) {
	case hir.VarRefData:
		du.use(LocalID(data.SymbolID), block)
	case hir.UnaryOpData:
		collectExprUses(data.Operand, block, du)
	case hir.BinaryOpData:
		collectExprUses(data.Left, block, du)
		collectExprUses(data.Right, block, du)
	case hir.CallData:
		collectExprUses(data.Callee, block, du)
		for _, a := range data.Args {
			collectExprUses(a, block, du)
		}
	case hir.FieldAccessData:
		collectExprUses(data.Object, block, du)
	case hir.IndexData:
		collectExprUses(data.Object, block, du)
		collectExprUses(data.Index, block, du)
	case hir.StructLitData:
		for _, f := range data.Fields {
			collectExprUses(f.Value, block, du)
		}
	case hir.ArrayLitData:
		for _, el := range data.Elements {
			collectExprUses(el, block, du)
		}
	case hir.TupleLitData:
		for _, el := range data.Elements {
			collectExprUses(el, block, du)
		}
	case hir.IfData:
		collectExprUses(data.Cond, block, du)
		collectExprUses(data.Then, block, du)
		collectExprUses(data.Else, block, du)
	case hir.CastData:
		collectExprUses(data.Value, block, du)
	case hir.AwaitData:
		collectExprUses(data.Value, block, du)
	case hir.TagTestData:
		collectExprUses(data.Value, block, du)
	case hir.TagPayloadData:
		collectExprUses(data.Value, block, du)
	}
}

func (du *DefUse) define(local LocalID, block BlockID) {
	du.Defs[local] = appendUnique(du.Defs[local], block)
}

func (du *DefUse) use(local LocalID, block BlockID) {
	du.Uses[local] = appendUnique(du.Uses[local], block)
}

// placePhis computes, for every local with more than one definition site,
// the iterated dominance frontier of its def set and records a phi
// requirement at each block in that frontier.
func placePhis(defs map[LocalID][]BlockID, dom *Dominance) map[BlockID][]LocalID {
	sites := make(map[BlockID][]LocalID)
	for local, defBlocks := range defs {
		if len(defBlocks) < 2 {
			continue
		}
		hasPhi := make(map[BlockID]bool)
		worklist := append([]BlockID(nil), defBlocks...)
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, f := range dom.Frontier[b] {
				if hasPhi[f] {
					continue
				}
				hasPhi[f] = true
				sites[f] = appendUnique(sites[f], local)
				worklist = append(worklist, f)
			}
		}
	}
	return sites
}
