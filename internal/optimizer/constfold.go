package optimizer

import (
	"rayzor/internal/ast"
	"rayzor/internal/mir"
	"rayzor/internal/types"
)

// constFold rewrites assignments whose right-hand side is a unary or
// binary operation over two constant operands into a single constant use,
// and collapses numeric casts of a constant operand the same way. Reports
// whether it changed anything, so pipeline.Run can decide whether another
// DCE/copy-prop round is worth running.
func constFold(fn *mir.Func, in *types.Interner) bool {
	if fn == nil {
		return false
	}
	changed := false
	for bi := range fn.Blocks {
		for ii := range fn.Blocks[bi].Instrs {
			instr := &fn.Blocks[bi].Instrs[ii]
			if instr.Kind != mir.InstrAssign {
				continue
			}
			if folded, ok := foldRValue(instr.Assign.Src, in); ok {
				instr.Assign.Src = mir.RValue{Kind: mir.RValueUse, Use: folded}
				changed = true
			}
		}
	}
	return changed
}

func foldRValue(r mir.RValue, in *types.Interner) (mir.Operand, bool) {
	switch r.Kind {
	case mir.RValueUnaryOp:
		return foldUnary(r.Unary, in)
	case mir.RValueBinaryOp:
		return foldBinary(r.Binary, in)
	case mir.RValueCast:
		return foldCast(r.Cast, in)
	default:
		return mir.Operand{}, false
	}
}

func foldUnary(u mir.UnaryOp, _ *types.Interner) (mir.Operand, bool) {
	c, ok := constOf(u.Operand)
	if !ok {
		return mir.Operand{}, false
	}
	switch u.Op {
	case ast.ExprUnaryMinus:
		switch c.Kind {
		case mir.ConstInt:
			return constOperand(u.Operand.Type, mir.Const{Kind: mir.ConstInt, Type: c.Type, IntValue: -c.IntValue}), true
		case mir.ConstFloat:
			return constOperand(u.Operand.Type, mir.Const{Kind: mir.ConstFloat, Type: c.Type, FloatValue: -c.FloatValue}), true
		}
	case ast.ExprUnaryPlus:
		return u.Operand, true
	case ast.ExprUnaryNot:
		if c.Kind == mir.ConstBool {
			return constOperand(u.Operand.Type, mir.Const{Kind: mir.ConstBool, Type: c.Type, BoolValue: !c.BoolValue}), true
		}
	}
	return mir.Operand{}, false
}

func foldBinary(b mir.BinaryOp, _ *types.Interner) (mir.Operand, bool) {
	lc, lok := constOf(b.Left)
	rc, rok := constOf(b.Right)
	if !lok || !rok {
		return mir.Operand{}, false
	}

	if lc.Kind == mir.ConstBool && rc.Kind == mir.ConstBool {
		switch b.Op {
		case ast.ExprBinaryLogicalAnd:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lc.BoolValue && rc.BoolValue}), true
		case ast.ExprBinaryLogicalOr:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lc.BoolValue || rc.BoolValue}), true
		case ast.ExprBinaryEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lc.BoolValue == rc.BoolValue}), true
		case ast.ExprBinaryNotEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lc.BoolValue != rc.BoolValue}), true
		}
		return mir.Operand{}, false
	}

	if lc.Kind == mir.ConstFloat || rc.Kind == mir.ConstFloat {
		lf, rf := asFloat(lc), asFloat(rc)
		switch b.Op {
		case ast.ExprBinaryAdd:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstFloat, Type: lc.Type, FloatValue: lf + rf}), true
		case ast.ExprBinarySub:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstFloat, Type: lc.Type, FloatValue: lf - rf}), true
		case ast.ExprBinaryMul:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstFloat, Type: lc.Type, FloatValue: lf * rf}), true
		case ast.ExprBinaryDiv:
			if rf == 0 {
				return mir.Operand{}, false
			}
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstFloat, Type: lc.Type, FloatValue: lf / rf}), true
		case ast.ExprBinaryEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf == rf}), true
		case ast.ExprBinaryNotEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf != rf}), true
		case ast.ExprBinaryLess:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf < rf}), true
		case ast.ExprBinaryLessEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf <= rf}), true
		case ast.ExprBinaryGreater:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf > rf}), true
		case ast.ExprBinaryGreaterEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: lf >= rf}), true
		}
		return mir.Operand{}, false
	}

	if lc.Kind == mir.ConstInt && rc.Kind == mir.ConstInt {
		li, ri := lc.IntValue, rc.IntValue
		switch b.Op {
		case ast.ExprBinaryAdd:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li + ri}), true
		case ast.ExprBinarySub:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li - ri}), true
		case ast.ExprBinaryMul:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li * ri}), true
		case ast.ExprBinaryDiv:
			if ri == 0 {
				return mir.Operand{}, false
			}
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li / ri}), true
		case ast.ExprBinaryMod:
			if ri == 0 {
				return mir.Operand{}, false
			}
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li % ri}), true
		case ast.ExprBinaryBitAnd:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li & ri}), true
		case ast.ExprBinaryBitOr:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li | ri}), true
		case ast.ExprBinaryBitXor:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li ^ ri}), true
		case ast.ExprBinaryShiftLeft:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li << uint(ri)}), true
		case ast.ExprBinaryShiftRight:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstInt, Type: lc.Type, IntValue: li >> uint(ri)}), true
		case ast.ExprBinaryEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li == ri}), true
		case ast.ExprBinaryNotEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li != ri}), true
		case ast.ExprBinaryLess:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li < ri}), true
		case ast.ExprBinaryLessEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li <= ri}), true
		case ast.ExprBinaryGreater:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li > ri}), true
		case ast.ExprBinaryGreaterEq:
			return constOperand(b.Left.Type, mir.Const{Kind: mir.ConstBool, Type: lc.Type, BoolValue: li >= ri}), true
		}
	}
	return mir.Operand{}, false
}

func foldCast(c mir.CastOp, in *types.Interner) (mir.Operand, bool) {
	cst, ok := constOf(c.Value)
	if !ok || in == nil {
		return mir.Operand{}, false
	}
	b := in.Builtins()
	switch c.TargetTy {
	case b.Float, b.Float32, b.Float64, b.Float16:
		switch cst.Kind {
		case mir.ConstInt:
			return constOperand(c.TargetTy, mir.Const{Kind: mir.ConstFloat, Type: c.TargetTy, FloatValue: float64(cst.IntValue)}), true
		case mir.ConstFloat:
			return constOperand(c.TargetTy, mir.Const{Kind: mir.ConstFloat, Type: c.TargetTy, FloatValue: cst.FloatValue}), true
		}
	case b.Int, b.Int8, b.Int16, b.Int32, b.Int64, b.Uint, b.Uint8, b.Uint16, b.Uint32, b.Uint64:
		switch cst.Kind {
		case mir.ConstFloat:
			return constOperand(c.TargetTy, mir.Const{Kind: mir.ConstInt, Type: c.TargetTy, IntValue: int64(cst.FloatValue)}), true
		case mir.ConstInt:
			return constOperand(c.TargetTy, mir.Const{Kind: mir.ConstInt, Type: c.TargetTy, IntValue: cst.IntValue}), true
		}
	}
	return mir.Operand{}, false
}

func constOf(o mir.Operand) (mir.Const, bool) {
	if o.Kind != mir.OperandConst {
		return mir.Const{}, false
	}
	return o.Const, true
}

func constOperand(ty types.TypeID, c mir.Const) mir.Operand {
	return mir.Operand{Kind: mir.OperandConst, Type: ty, Const: c}
}

func asFloat(c mir.Const) float64 {
	if c.Kind == mir.ConstFloat {
		return c.FloatValue
	}
	return float64(c.IntValue)
}
