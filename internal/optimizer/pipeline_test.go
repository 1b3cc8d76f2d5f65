package optimizer_test

import (
	"testing"

	"rayzor/internal/ast"
	"rayzor/internal/mir"
	"rayzor/internal/optimizer"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// buildIntFunc constructs a one-block function computing `1 + 2` into
// local 0 and returning it - enough to exercise constant folding and dead
// code elimination without running the full front end.
func buildIntFunc(intTy types.TypeID, extraDeadLocal bool) *mir.Func {
	fn := &mir.Func{
		Name:   "test",
		Result: intTy,
		Entry:  0,
		Locals: []mir.Local{{Type: intTy, Name: "result"}},
	}
	one := mir.Operand{Kind: mir.OperandConst, Type: intTy, Const: mir.Const{Kind: mir.ConstInt, Type: intTy, IntValue: 1}}
	two := mir.Operand{Kind: mir.OperandConst, Type: intTy, Const: mir.Const{Kind: mir.ConstInt, Type: intTy, IntValue: 2}}

	instrs := []mir.Instr{{
		Kind: mir.InstrAssign,
		Assign: mir.AssignInstr{
			Dst: mir.Place{Kind: mir.PlaceLocal, Local: 0},
			Src: mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryAdd, Left: one, Right: two}},
		},
	}}
	if extraDeadLocal {
		fn.Locals = append(fn.Locals, mir.Local{Type: intTy, Name: "dead"})
		instrs = append(instrs, mir.Instr{
			Kind: mir.InstrAssign,
			Assign: mir.AssignInstr{
				Dst: mir.Place{Kind: mir.PlaceLocal, Local: 1},
				Src: mir.RValue{Kind: mir.RValueUse, Use: one},
			},
		})
	}

	fn.Blocks = []mir.Block{{
		ID:     0,
		Instrs: instrs,
		Term: mir.Terminator{
			Kind:   mir.TermReturn,
			Return: mir.ReturnTerm{HasValue: true, Value: mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: 0}}},
		},
	}}
	return fn
}

func TestRun_FoldsConstantArithmetic(t *testing.T) {
	interner := types.NewInterner()
	intTy := interner.Builtins().Int
	fn := buildIntFunc(intTy, false)
	mod := &mir.Module{Funcs: map[mir.FuncID]*mir.Func{0: fn}, FuncBySym: map[symbols.SymbolID]mir.FuncID{}}

	optimizer.Run(mod, optimizer.Config{Types: interner})

	instr := mod.Funcs[0].Blocks[0].Instrs[0]
	if instr.Assign.Src.Kind != mir.RValueUse || instr.Assign.Src.Use.Kind != mir.OperandConst {
		t.Fatalf("expected constant-folded assignment, got %+v", instr.Assign.Src)
	}
	if instr.Assign.Src.Use.Const.IntValue != 3 {
		t.Errorf("expected folded value 3, got %d", instr.Assign.Src.Use.Const.IntValue)
	}
}

func TestRun_EliminatesDeadAssignment(t *testing.T) {
	interner := types.NewInterner()
	intTy := interner.Builtins().Int
	fn := buildIntFunc(intTy, true)
	mod := &mir.Module{Funcs: map[mir.FuncID]*mir.Func{0: fn}, FuncBySym: map[symbols.SymbolID]mir.FuncID{}}

	optimizer.Run(mod, optimizer.Config{Types: interner})

	for _, in := range mod.Funcs[0].Blocks[0].Instrs {
		if in.Kind == mir.InstrAssign && in.Assign.Dst.Local == 1 {
			t.Error("expected dead assignment to local 1 to be removed")
		}
	}
}
