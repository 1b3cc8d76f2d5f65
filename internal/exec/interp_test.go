package exec_test

import (
	"testing"

	"rayzor/internal/ast"
	"rayzor/internal/exec"
	"rayzor/internal/mir"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// buildAddFunc builds `fn add(a, b) -> int { return a + b; }` as a
// hand-built mir.Func, the same fixture idiom internal/optimizer's
// pipeline_test.go uses to exercise a package without the front end.
func buildAddFunc(id mir.FuncID, intTy types.TypeID) *mir.Func {
	a := mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: 0}}
	b := mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: 1}}
	return &mir.Func{
		ID:         id,
		Name:       "add",
		Result:     intTy,
		ParamCount: 2,
		Entry:      0,
		Locals: []mir.Local{
			{Type: intTy, Name: "a"},
			{Type: intTy, Name: "b"},
		},
		Blocks: []mir.Block{{
			ID: 0,
			Term: mir.Terminator{
				Kind: mir.TermReturn,
				Return: mir.ReturnTerm{
					HasValue: true,
					Value: mir.Operand{
						Kind: mir.OperandCopy,
						Type: intTy,
						Place: mir.Place{
							Kind:  mir.PlaceLocal,
							Local: 2,
						},
					},
				},
			},
			Instrs: []mir.Instr{{
				Kind: mir.InstrAssign,
				Assign: mir.AssignInstr{
					Dst: mir.Place{Kind: mir.PlaceLocal, Local: 2},
					Src: mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryAdd, Left: a, Right: b}},
				},
			}},
		}},
	}
}

func newTestExecutor(t *testing.T, fn *mir.Func) *exec.Executor {
	t.Helper()
	mod := &mir.Module{
		Funcs:     map[mir.FuncID]*mir.Func{fn.ID: fn},
		FuncBySym: map[symbols.SymbolID]mir.FuncID{},
	}
	ex := exec.NewExecutor(mod, types.NewInterner(), nil, exec.DefaultThresholds())
	t.Cleanup(func() {
		if err := ex.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ex
}

func TestExecutor_CallInterpretsBinaryAdd(t *testing.T) {
	fn := buildAddFunc(0, types.NewInterner().Builtins().Int)
	fn.Locals = append(fn.Locals, mir.Local{Type: fn.Result, Name: "result"})
	ex := newTestExecutor(t, fn)

	result, err := ex.Call(0, []exec.Value{exec.Int(2), exec.Int(3)})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 5 {
		t.Fatalf("expected 5, got %v", result)
	}
}

func TestExecutor_CallUnknownFuncIDReturnsLinkError(t *testing.T) {
	fn := buildAddFunc(0, types.NewInterner().Builtins().Int)
	fn.Locals = append(fn.Locals, mir.Local{Type: fn.Result, Name: "result"})
	ex := newTestExecutor(t, fn)

	_, err := ex.Call(99, nil)
	if err == nil {
		t.Fatal("expected an error calling an unknown function id")
	}
	if _, ok := err.(*exec.LinkError); !ok {
		t.Errorf("expected *exec.LinkError, got %T: %v", err, err)
	}
}

func TestExecutor_StaysOnInterpreterBelowPromotionThreshold(t *testing.T) {
	fn := buildAddFunc(0, types.NewInterner().Builtins().Int)
	fn.Locals = append(fn.Locals, mir.Local{Type: fn.Result, Name: "result"})
	ex := newTestExecutor(t, fn)

	for i := 0; i < 3; i++ {
		if _, err := ex.Call(0, []exec.Value{exec.Int(1), exec.Int(1)}); err != nil {
			t.Fatalf("Call #%d returned error: %v", i, err)
		}
	}
	if tier := ex.Handles[0].Tier(); tier != exec.TierInterp {
		t.Errorf("expected function to remain on %s below threshold, got %s", exec.TierInterp, tier)
	}
}
