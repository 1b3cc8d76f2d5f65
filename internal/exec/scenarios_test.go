package exec_test

import (
	"testing"

	"rayzor/internal/ast"
	"rayzor/internal/exec"
	"rayzor/internal/mir"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// local indices shared by the hand-built fixtures below: blocks never
// address locals by name, only by LocalID, so each builder documents its
// own layout inline.

// buildSumLoopFunc builds:
//
//	fn sum(n: int) -> int {
//	    total = 0
//	    i = 1
//	    while i <= n { total = total + i; i = i + 1 }
//	    return total
//	}
//
// as a hand-built mir.Func: bb0 initializes, bb1 is the loop header (the
// join point a real phi would sit at), bb2 is the body, bb3 is the exit.
func buildSumLoopFunc(id mir.FuncID, intTy types.TypeID) *mir.Func {
	n := mir.LocalID(0)
	total := mir.LocalID(1)
	i := mir.LocalID(2)
	cond := mir.LocalID(3)

	local := func(l mir.LocalID) mir.Operand {
		return mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: l}}
	}
	constInt := func(v int64) mir.Operand {
		return mir.Operand{Kind: mir.OperandConst, Type: intTy, Const: mir.Const{Kind: mir.ConstInt, Type: intTy, IntValue: v}}
	}
	assign := func(dst mir.LocalID, rv mir.RValue) mir.Instr {
		return mir.Instr{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: mir.Place{Kind: mir.PlaceLocal, Local: dst}, Src: rv}}
	}

	return &mir.Func{
		ID:         id,
		Name:       "sum",
		Result:     intTy,
		ParamCount: 1,
		Entry:      0,
		Locals: []mir.Local{
			{Type: intTy, Name: "n"},
			{Type: intTy, Name: "total"},
			{Type: intTy, Name: "i"},
			{Type: types.NoTypeID, Name: "cond"},
		},
		Blocks: []mir.Block{
			{ // bb0: total = 0; i = 1; goto bb1
				ID: 0,
				Instrs: []mir.Instr{
					assign(total, mir.RValue{Kind: mir.RValueUse, Use: constInt(0)}),
					assign(i, mir.RValue{Kind: mir.RValueUse, Use: constInt(1)}),
				},
				Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 1}},
			},
			{ // bb1: cond = i <= n; if cond { bb2 } else { bb3 }
				ID: 1,
				Instrs: []mir.Instr{
					assign(cond, mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryLessEq, Left: local(i), Right: local(n)}}),
				},
				Term: mir.Terminator{Kind: mir.TermIf, If: mir.IfTerm{Cond: local(cond), Then: 2, Else: 3}},
			},
			{ // bb2: total = total + i; i = i + 1; goto bb1
				ID: 2,
				Instrs: []mir.Instr{
					assign(total, mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryAdd, Left: local(total), Right: local(i)}}),
					assign(i, mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryAdd, Left: local(i), Right: constInt(1)}}),
				},
				Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 1}},
			},
			{ // bb3: return total
				ID:   3,
				Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: local(total)}},
			},
		},
	}
}

func TestExecutor_LoopWithJoinPointSumsToN(t *testing.T) {
	intTy := types.NewInterner().Builtins().Int
	fn := buildSumLoopFunc(0, intTy)
	ex := newTestExecutor(t, fn)

	result, err := ex.Call(0, []exec.Value{exec.Int(5)})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 15 {
		t.Fatalf("expected sum(5) == 15, got %v", result)
	}
}

func TestExecutor_RepeatedCallsPromoteAboveThreshold(t *testing.T) {
	intTy := types.NewInterner().Builtins().Int
	fn := buildAddFunc(0, intTy)
	fn.Locals = append(fn.Locals, mir.Local{Type: fn.Result, Name: "result"})
	ex := newTestExecutor(t, fn)

	const n = 10001
	var last exec.Value
	for i := 0; i < n; i++ {
		v, err := ex.Call(0, []exec.Value{exec.Int(1), exec.Int(1)})
		if err != nil {
			t.Fatalf("Call #%d returned error: %v", i, err)
		}
		last = v
	}
	if !exec.IsInt(last) || exec.AsInt(last) != 2 {
		t.Fatalf("expected every call to return 2, got %v", last)
	}
	// The interpreter tier always computes the right answer regardless of
	// which tier the FuncHandle has promoted to by the end of the run; this
	// test only pins the arithmetic result across many calls; tier
	// identity after promotion is exercised by
	// TestExecutor_StaysOnInterpreterBelowPromotionThreshold.
}

// buildShapeAreaFunc builds a function taking a tagged-union "Shape" value
// (already constructed by the caller) and switching on its tag:
//
//	fn area(shape: Shape) -> int {
//	    switch shape { Circle(r) => r * r, Square(s) => s * s }
//	}
//
// matching the structValue convention: field 0 is the interned tag name,
// field 1 is the single payload value.
func buildShapeAreaFunc(id mir.FuncID, intTy types.TypeID) *mir.Func {
	shape := mir.LocalID(0)
	payload := mir.LocalID(1)
	result := mir.LocalID(2)

	shapeOperand := mir.Operand{Kind: mir.OperandCopy, Place: mir.Place{Kind: mir.PlaceLocal, Local: shape}}
	payloadOperand := mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: payload}}

	return &mir.Func{
		ID:         id,
		Name:       "area",
		Result:     intTy,
		ParamCount: 1,
		Entry:      0,
		Locals: []mir.Local{
			{Name: "shape"},
			{Type: intTy, Name: "payload"},
			{Type: intTy, Name: "result"},
		},
		Blocks: []mir.Block{
			{ // bb0: switch shape { "Circle" => bb1, "Square" => bb2, default bb2 }
				ID: 0,
				Term: mir.Terminator{
					Kind: mir.TermSwitchTag,
					SwitchTag: mir.SwitchTagTerm{
						Value: shapeOperand,
						Cases: []mir.SwitchTagCase{
							{TagName: "Circle", Target: 1},
							{TagName: "Square", Target: 2},
						},
						Default: 2,
					},
				},
			},
			{ // bb1 (Circle): payload = tag_payload(shape, 0); result = payload * payload; return result
				ID: 1,
				Instrs: []mir.Instr{
					{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
						Dst: mir.Place{Kind: mir.PlaceLocal, Local: payload},
						Src: mir.RValue{Kind: mir.RValueTagPayload, TagPayload: mir.TagPayload{Value: shapeOperand, TagName: "Circle", Index: 0}},
					}},
					{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
						Dst: mir.Place{Kind: mir.PlaceLocal, Local: result},
						Src: mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryMul, Left: payloadOperand, Right: payloadOperand}},
					}},
				},
				Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: result}}}},
			},
			{ // bb2 (Square, and default): same shape, different tag name.
				ID: 2,
				Instrs: []mir.Instr{
					{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
						Dst: mir.Place{Kind: mir.PlaceLocal, Local: payload},
						Src: mir.RValue{Kind: mir.RValueTagPayload, TagPayload: mir.TagPayload{Value: shapeOperand, TagName: "Square", Index: 0}},
					}},
					{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
						Dst: mir.Place{Kind: mir.PlaceLocal, Local: result},
						Src: mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{Op: ast.ExprBinaryMul, Left: payloadOperand, Right: payloadOperand}},
					}},
				},
				Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: result}}}},
			},
		},
	}
}

// buildMakeShapeFunc builds a tag-constructor function the way the real
// front end lowers a union literal: `fn makeX(payload: int) -> Shape {
// return X{payload}; }`, returning a structValue whose field 0 is the tag
// name and field 1 is the payload, the convention evalTagTest/evalTagPayload
// read.
func buildMakeShapeFunc(id mir.FuncID, tagName string, intTy, stringTy types.TypeID) *mir.Func {
	payload := mir.LocalID(0)
	result := mir.LocalID(1)
	return &mir.Func{
		ID:         id,
		Name:       "make" + tagName,
		ParamCount: 1,
		Entry:      0,
		Locals: []mir.Local{
			{Type: intTy, Name: "payload"},
			{Name: "result"},
		},
		Blocks: []mir.Block{{
			ID: 0,
			Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: mir.Place{Kind: mir.PlaceLocal, Local: result},
					Src: mir.RValue{Kind: mir.RValueStructLit, StructLit: mir.StructLit{Fields: []mir.StructLitField{
						{Name: "tag", Value: mir.Operand{Kind: mir.OperandConst, Type: stringTy, Const: mir.Const{Kind: mir.ConstString, Type: stringTy, StringValue: tagName}}},
						{Name: "payload", Value: mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: payload}}},
					}}},
				}},
			},
			Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: mir.Operand{Kind: mir.OperandCopy, Place: mir.Place{Kind: mir.PlaceLocal, Local: result}}}},
		}},
	}
}

func TestExecutor_SwitchTagDispatchesToMatchingCase(t *testing.T) {
	in := types.NewInterner()
	intTy := in.Builtins().Int
	stringTy := in.Builtins().String

	area := buildShapeAreaFunc(0, intTy)
	makeCircle := buildMakeShapeFunc(1, "Circle", intTy, stringTy)
	makeSquare := buildMakeShapeFunc(2, "Square", intTy, stringTy)

	mod := &mir.Module{
		Funcs:     map[mir.FuncID]*mir.Func{0: area, 1: makeCircle, 2: makeSquare},
		FuncBySym: map[symbols.SymbolID]mir.FuncID{},
	}
	ex := exec.NewExecutor(mod, in, nil, exec.DefaultThresholds())
	t.Cleanup(func() {
		if err := ex.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	circle, err := ex.Call(1, []exec.Value{exec.Int(3)})
	if err != nil {
		t.Fatalf("makeCircle returned error: %v", err)
	}
	result, err := ex.Call(0, []exec.Value{circle})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 9 {
		t.Fatalf("expected area(Circle(3)) == 9, got %v", result)
	}

	square, err := ex.Call(2, []exec.Value{exec.Int(4)})
	if err != nil {
		t.Fatalf("makeSquare returned error: %v", err)
	}
	result, err = ex.Call(0, []exec.Value{square})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 16 {
		t.Fatalf("expected area(Square(4)) == 16, got %v", result)
	}
}

// buildThrowingFunc builds:
//
//	fn mayFail(x: int) -> int {
//	    if x < 0 { throw "fail" }
//	    return x
//	}
func buildThrowingFunc(id mir.FuncID, intTy, stringTy types.TypeID) *mir.Func {
	x := mir.LocalID(0)
	cond := mir.LocalID(1)

	xOperand := mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: x}}

	return &mir.Func{
		ID:         id,
		Name:       "mayFail",
		Result:     intTy,
		ParamCount: 1,
		Sig:        mir.Sig{CanThrow: true},
		Entry:      0,
		Locals: []mir.Local{
			{Type: intTy, Name: "x"},
			{Type: types.NoTypeID, Name: "cond"},
		},
		Blocks: []mir.Block{
			{
				ID: 0,
				Instrs: []mir.Instr{
					{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
						Dst: mir.Place{Kind: mir.PlaceLocal, Local: cond},
						Src: mir.RValue{Kind: mir.RValueBinaryOp, Binary: mir.BinaryOp{
							Op:   ast.ExprBinaryLess,
							Left: xOperand,
							Right: mir.Operand{Kind: mir.OperandConst, Type: intTy, Const: mir.Const{Kind: mir.ConstInt, Type: intTy, IntValue: 0}},
						}},
					}},
				},
				Term: mir.Terminator{Kind: mir.TermIf, If: mir.IfTerm{
					Cond: mir.Operand{Kind: mir.OperandCopy, Place: mir.Place{Kind: mir.PlaceLocal, Local: cond}},
					Then: 1, Else: 2,
				}},
			},
			{ // bb1: throw "fail"
				ID: 1,
				Instrs: []mir.Instr{
					{Kind: mir.InstrThrow, Throw: mir.ThrowInstr{
						Value: mir.Operand{Kind: mir.OperandConst, Type: stringTy, Const: mir.Const{Kind: mir.ConstString, Type: stringTy, StringValue: "fail"}},
					}},
				},
				Term: mir.Terminator{Kind: mir.TermUnreachable},
			},
			{ // bb2: return x
				ID:   2,
				Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: xOperand}},
			},
		},
	}
}

// buildCatchingFunc builds:
//
//	fn safeLen(x: int) -> int {
//	    r = mayFail(x) catch (err) { r = string.length(err) }
//	    return r
//	}
func buildCatchingFunc(id, calleeID mir.FuncID, calleeSym symbols.SymbolID, intTy types.TypeID) *mir.Func {
	x := mir.LocalID(0)
	r := mir.LocalID(1)
	errLocal := mir.LocalID(2)

	return &mir.Func{
		ID:         id,
		Name:       "safeLen",
		Result:     intTy,
		ParamCount: 1,
		Entry:      0,
		Locals: []mir.Local{
			{Type: intTy, Name: "x"},
			{Type: intTy, Name: "r"},
			{Name: "err"},
		},
		Blocks: []mir.Block{
			{ // bb0: r = mayFail(x) landing pad bb1
				ID: 0,
				Instrs: []mir.Instr{
					{Kind: mir.InstrCallLandingPad, Call: mir.CallInstr{
						HasDst: true,
						Dst:    mir.Place{Kind: mir.PlaceLocal, Local: r},
						Callee: mir.Callee{Kind: mir.CalleeSym, Sym: calleeSym, Name: "mayFail"},
						Args:   []mir.Operand{{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: x}}},
						LandingPad: 1,
					}},
				},
				Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 2}},
			},
			{ // bb1 (landing pad): err = <thrown>; r = string.length(err)
				ID: 1,
				Instrs: []mir.Instr{
					{Kind: mir.InstrLandingPadReceive, LandingPadReceive: mir.LandingPadReceiveInstr{Dst: mir.Place{Kind: mir.PlaceLocal, Local: errLocal}}},
					{Kind: mir.InstrCall, Call: mir.CallInstr{
						HasDst: true,
						Dst:    mir.Place{Kind: mir.PlaceLocal, Local: r},
						Callee: mir.Callee{Kind: mir.CalleeSym, Name: "rt_string_len"},
						Args:   []mir.Operand{{Kind: mir.OperandCopy, Place: mir.Place{Kind: mir.PlaceLocal, Local: errLocal}}},
					}},
				},
				Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 2}},
			},
			{ // bb2: return r
				ID:   2,
				Term: mir.Terminator{Kind: mir.TermReturn, Return: mir.ReturnTerm{HasValue: true, Value: mir.Operand{Kind: mir.OperandCopy, Type: intTy, Place: mir.Place{Kind: mir.PlaceLocal, Local: r}}}},
			},
		},
	}
}

func TestExecutor_CallLandingPadCatchesThrownValue(t *testing.T) {
	in := types.NewInterner()
	intTy := in.Builtins().Int
	stringTy := in.Builtins().String
	calleeSym := symbols.SymbolID(1)

	mayFail := buildThrowingFunc(0, intTy, stringTy)
	mayFail.Sym = calleeSym
	safeLen := buildCatchingFunc(1, 0, calleeSym, intTy)

	mod := &mir.Module{
		Funcs:     map[mir.FuncID]*mir.Func{0: mayFail, 1: safeLen},
		FuncBySym: map[symbols.SymbolID]mir.FuncID{calleeSym: 0},
	}
	ex := exec.NewExecutor(mod, in, nil, exec.DefaultThresholds())
	t.Cleanup(func() {
		if err := ex.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	// Negative argument: mayFail throws "fail" (length 4), safeLen catches it.
	result, err := ex.Call(1, []exec.Value{exec.Int(-1)})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 4 {
		t.Fatalf("expected caught throw's message length 4, got %v", result)
	}

	// Non-negative argument: mayFail returns normally, no catch taken.
	result, err = ex.Call(1, []exec.Value{exec.Int(7)})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !exec.IsInt(result) || exec.AsInt(result) != 7 {
		t.Fatalf("expected passthrough of 7, got %v", result)
	}
}

func TestExecutor_UncaughtThrowSurfacesAsError(t *testing.T) {
	in := types.NewInterner()
	intTy := in.Builtins().Int
	stringTy := in.Builtins().String
	fn := buildThrowingFunc(0, intTy, stringTy)
	ex := newTestExecutor(t, fn)

	_, err := ex.Call(0, []exec.Value{exec.Int(-5)})
	if err == nil {
		t.Fatal("expected an error from an uncaught throw")
	}
	execErr, ok := err.(*exec.Error)
	if !ok {
		t.Fatalf("expected *exec.Error, got %T", err)
	}
	if execErr.Code != exec.CodeThrown {
		t.Errorf("expected CodeThrown, got %v", execErr.Code)
	}
}
