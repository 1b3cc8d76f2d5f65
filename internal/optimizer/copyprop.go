package optimizer

import "rayzor/internal/mir"

// copyProp propagates trivial aliases - a promoted local assigned directly
// from a constant, or directly from another promoted local with no
// computation in between - to every use that SSA proves reaches from that
// definition. It never removes the now-redundant assignment itself; dce
// does that once the rewritten uses make it genuinely dead.
func copyProp(fn *mir.Func) bool {
	ssa := mir.BuildSSA(fn)
	if ssa == nil || len(ssa.Defs) == 0 {
		return false
	}

	replacement := make(map[mir.ValueID]mir.Operand)
	var resolve func(id mir.ValueID, seen map[mir.ValueID]bool) (mir.Operand, bool)
	resolve = func(id mir.ValueID, seen map[mir.ValueID]bool) (mir.Operand, bool) {
		if seen[id] {
			return mir.Operand{}, false
		}
		seen[id] = true
		if op, ok := replacement[id]; ok {
			return op, true
		}
		def, ok := ssa.Defs[id]
		if !ok {
			return mir.Operand{}, false
		}
		if def.IsPhi {
			return resolvePhi(def, resolve, seen)
		}
		return aliasOperandOf(fn, ssa, def)
	}

	for id := range ssa.Defs {
		if op, ok := resolve(id, map[mir.ValueID]bool{}); ok {
			replacement[id] = op
		}
	}
	if len(replacement) == 0 {
		return false
	}

	changed := false
	for bi := range fn.Blocks {
		for ii := range fn.Blocks[bi].Instrs {
			instr := &fn.Blocks[bi].Instrs[ii]
			mir.ForEachOperandSlot(instr, func(slot int, o *mir.Operand) {
				vid := ssa.ValueAt(mir.BlockID(bi), ii, slot)
				if vid == mir.NoValueID {
					return
				}
				rep, ok := replacement[vid]
				if !ok || operandEqual(*o, rep) {
					return
				}
				*o = rep
				changed = true
			})
		}
	}
	return changed
}

// aliasOperandOf reports the operand a non-phi def is a pure alias of: a
// constant literal, or a copy of another promoted local whose own reaching
// value is itself known.
func aliasOperandOf(fn *mir.Func, ssa *mir.SSAForm, def *mir.SSADef) (mir.Operand, bool) {
	if int(def.Block) >= len(fn.Blocks) || def.Instr >= len(fn.Blocks[def.Block].Instrs) {
		return mir.Operand{}, false
	}
	instr := &fn.Blocks[def.Block].Instrs[def.Instr]
	if instr.Kind != mir.InstrAssign || instr.Assign.Src.Kind != mir.RValueUse {
		return mir.Operand{}, false
	}
	src := instr.Assign.Src.Use
	if src.Kind == mir.OperandConst {
		return src, true
	}
	if src.Kind == mir.OperandCopy && src.Place.Kind == mir.PlaceLocal && ssa.Promoted[src.Place.Local] {
		srcVal := ssa.ValueAt(def.Block, def.Instr, 0)
		if srcVal == mir.NoValueID {
			return mir.Operand{}, false
		}
		if srcDef, ok := ssa.Defs[srcVal]; ok && !srcDef.IsPhi {
			return aliasOperandOf(fn, ssa, srcDef)
		}
	}
	return mir.Operand{}, false
}

// resolvePhi folds a phi to a single operand only when every incoming edge
// resolves to the structurally same value - the common "every branch sets
// the same constant" shape.
func resolvePhi(def *mir.SSADef, resolve func(mir.ValueID, map[mir.ValueID]bool) (mir.Operand, bool), seen map[mir.ValueID]bool) (mir.Operand, bool) {
	if len(def.Incoming) == 0 {
		return mir.Operand{}, false
	}
	var common mir.Operand
	for i, arg := range def.Incoming {
		if arg.Value == mir.NoValueID {
			return mir.Operand{}, false
		}
		op, ok := resolve(arg.Value, seen)
		if !ok {
			return mir.Operand{}, false
		}
		if i == 0 {
			common = op
			continue
		}
		if !operandEqual(op, common) {
			return mir.Operand{}, false
		}
	}
	return common, true
}

func operandEqual(a, b mir.Operand) bool {
	if a.Kind != b.Kind || a.Type != b.Type {
		return false
	}
	switch a.Kind {
	case mir.OperandConst:
		return a.Const == b.Const
	case mir.OperandCopy, mir.OperandMove, mir.OperandAddrOf, mir.OperandAddrOfMut:
		return a.Place.Kind == b.Place.Kind && a.Place.Local == b.Place.Local &&
			a.Place.Global == b.Place.Global && len(a.Place.Proj) == 0 && len(b.Place.Proj) == 0
	default:
		return false
	}
}
