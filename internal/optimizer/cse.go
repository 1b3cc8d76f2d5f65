package optimizer

import (
	"fmt"
	"strings"

	"rayzor/internal/mir"
	"rayzor/internal/types"
)

// cse performs local (single-block) common subexpression elimination:
// when two assignments in the same block compute the same unary/binary/cast
// expression over operands whose SSA value numbers are identical, the
// later one is rewritten into a copy of the earlier result. copyProp then
// folds that copy away on its next pass.
//
// Scoped to operands that are either constants or promoted-local reads
// (exact SSA identity): any instruction touching a non-promoted local or a
// global is left alone, since a later redefinition between the two sites
// could change its value and this pass does not track that.
func cse(fn *mir.Func) bool {
	ssa := mir.BuildSSA(fn)
	if ssa == nil {
		return false
	}

	changed := false
	for bi := range fn.Blocks {
		seen := make(map[string]mir.Place)
		for ii := range fn.Blocks[bi].Instrs {
			instr := &fn.Blocks[bi].Instrs[ii]
			if instr.Kind != mir.InstrAssign {
				continue
			}
			key, ok := cseKey(ssa, mir.BlockID(bi), ii, instr.Assign.Src)
			if !ok {
				continue
			}
			if earlier, dup := seen[key]; dup {
				instr.Assign.Src = mir.RValue{Kind: mir.RValueUse, Use: mir.Operand{
					Kind:  mir.OperandCopy,
					Type:  localType(fn, earlier),
					Place: earlier,
				}}
				changed = true
				continue
			}
			seen[key] = instr.Assign.Dst
		}
	}
	return changed
}

func localType(fn *mir.Func, p mir.Place) (zero types.TypeID) {
	if p.Kind != mir.PlaceLocal || int(p.Local) >= len(fn.Locals) {
		return zero
	}
	return fn.Locals[p.Local].Type
}

func cseKey(ssa *mir.SSAForm, block mir.BlockID, instr int, src mir.RValue) (string, bool) {
	var b strings.Builder
	ok := true
	operand := func(slot int, o mir.Operand) {
		switch o.Kind {
		case mir.OperandConst:
			fmt.Fprintf(&b, "c:%d:%v|", o.Const.Kind, o.Const)
		case mir.OperandCopy:
			if o.Place.Kind != mir.PlaceLocal || !ssa.Promoted[o.Place.Local] {
				ok = false
				return
			}
			vid := ssa.ValueAt(block, instr, slot)
			if vid == mir.NoValueID {
				ok = false
				return
			}
			fmt.Fprintf(&b, "v:%d|", vid)
		default:
			ok = false
		}
	}

	switch src.Kind {
	case mir.RValueUnaryOp:
		b.WriteString("un:")
		fmt.Fprintf(&b, "%d|", src.Unary.Op)
		operand(0, src.Unary.Operand)
	case mir.RValueBinaryOp:
		b.WriteString("bin:")
		fmt.Fprintf(&b, "%d|", src.Binary.Op)
		operand(0, src.Binary.Left)
		operand(1, src.Binary.Right)
	case mir.RValueCast:
		b.WriteString("cast:")
		fmt.Fprintf(&b, "%d|", src.Cast.TargetTy)
		operand(0, src.Cast.Value)
	default:
		return "", false
	}
	if !ok {
		return "", false
	}
	return b.String(), true
}
