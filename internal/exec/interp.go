// Package exec is the tiered execution engine: a baseline register-file
// interpreter (T0) backed by a background promotion worker pool that
// recompiles hot functions through backend/llvm into progressively
// better-optimized in-process code (T1/T2 fast JIT, T3 the existing -O3
// AOT settings repurposed for JIT use). Every tier executes the same
// unchanged place-based mir.Module; promotion only ever swaps which
// compiled entry point a FuncHandle's atomic pointer resolves to. The
// interpreter evaluates the place-based IR directly - struct and tagged
// union values live in this package's own small heap (heap.go), not in
// the layout engine's compiled representation, and InstrThrow/
// InstrCallLandingPad unwind by returning a distinguished *Error up the
// Go call stack rather than by native stack unwinding.
package exec

import (
	"fmt"

	"rayzor/internal/mir"
	"rayzor/internal/runtime"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// Frame is one function activation record on the interpreter's call
// stack - the same Func/BB/IP/Locals shape the teacher's tree-walking VM
// uses, with Locals holding NaN-boxed Values instead of tagged structs.
type Frame struct {
	Func   *mir.Func
	BB     mir.BlockID
	IP     int
	Locals []Value

	// pendingThrow holds the value an InstrCallLandingPad's callee threw,
	// from the moment control jumps to the landing-pad block until that
	// block's InstrLandingPadReceive consumes it.
	pendingThrow Value
}

func newFrame(fn *mir.Func) *Frame {
	return &Frame{Func: fn, BB: fn.Entry, Locals: make([]Value, len(fn.Locals))}
}

func (f *Frame) currentBlock() *mir.Block {
	if int(f.BB) < 0 || int(f.BB) >= len(f.Func.Blocks) {
		return nil
	}
	return &f.Func.Blocks[f.BB]
}

func (f *Frame) atTerminator() bool {
	bb := f.currentBlock()
	return bb == nil || f.IP >= len(bb.Instrs)
}

// Executor drives the interpreter loop and owns every function's
// FuncHandle, the shared runtime intrinsic table, and the promotion
// worker pool watching call-count profiles.
type Executor struct {
	Module   *mir.Module
	Types    *types.Interner
	Symbols  *symbols.Table
	Runtime  *runtime.Registry
	Handles  map[mir.FuncID]*FuncHandle
	Thresh   Thresholds
	promoter *promoter

	fastNative nativeModule
	optNative  nativeModule

	heap heap
}

// NewExecutor builds an Executor for m, with one FuncHandle per function
// seeded at TierInterp, and starts its background promotion worker pool.
// syms is the same symbol table backend/llvm.EmitModule needs to name
// exported functions and runtime calls; it is nil-safe since a module
// evaluated purely on the interpreter tier never reaches the JIT path.
func NewExecutor(m *mir.Module, in *types.Interner, syms *symbols.Table, thresh Thresholds) *Executor {
	ex := &Executor{
		Module:  m,
		Types:   in,
		Symbols: syms,
		Runtime: runtime.NewRegistry(),
		Handles: make(map[mir.FuncID]*FuncHandle, len(m.Funcs)),
		Thresh:  thresh,
	}
	for id, fn := range m.Funcs {
		ex.Handles[id] = newFuncHandle(fn)
	}
	ex.promoter = newPromoter(ex)
	return ex
}

// Close stops the promotion worker pool, waiting for in-flight
// compilations to finish, and unloads any native library a background
// compile produced.
func (ex *Executor) Close() error {
	var err error
	if ex.promoter != nil {
		err = ex.promoter.stop()
	}
	for _, slot := range []*nativeModule{&ex.fastNative, &ex.optNative} {
		if slot.lib != nil {
			if cerr := slot.lib.close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

// Call invokes fn with args, dispatching to whichever tier fn's
// FuncHandle currently points at. The caller reads FuncHandle.Load()
// exactly once per call (acquire ordering) and keeps using that pointer
// for the call's whole duration, per the no-migration-mid-call rule: a
// promotion that lands while this call is running only affects the
// *next* call.
func (ex *Executor) Call(id mir.FuncID, args []Value) (Value, error) {
	h, ok := ex.Handles[id]
	if !ok {
		return Null(), &LinkError{Symbol: fmt.Sprintf("func#%d", id), Reason: "unknown function id"}
	}
	calls := h.profile.Bump()
	if next, ok := ex.Thresh.Next(h.Tier(), calls); ok {
		ex.promoter.request(id, next)
	}

	compiled := h.code.Load()
	if compiled != nil {
		return (*compiled)(args)
	}
	return ex.interpret(h.fn, args)
}

func (ex *Executor) interpret(fn *mir.Func, args []Value) (Value, error) {
	frame := newFrame(fn)
	for i := 0; i < fn.ParamCount && i < len(args); i++ {
		frame.Locals[i] = args[i]
	}

	for {
		bb := frame.currentBlock()
		if bb == nil {
			return Null(), newError(CodeUnimplemented, fn.Span, "invalid block id %d in %s", frame.BB, fn.Name)
		}
		if frame.atTerminator() {
			val, done, err := ex.execTerminator(frame, &bb.Term)
			if err != nil {
				return Null(), err
			}
			if done {
				return val, nil
			}
			continue
		}
		in := &bb.Instrs[frame.IP]
		if err := ex.execInstr(frame, in); err != nil {
			return Null(), err
		}
		frame.IP++
	}
}

// instrDispatch is keyed by mir.InstrKind, in the style of the teacher's
// vm/vm_dispatch.go switch-based execInstr, but as a fixed
// function-pointer table rather than a switch: a handler is looked up
// by array index once per instruction instead of walked through a
// chain of kind comparisons.
var instrDispatch = [...]func(*Executor, *Frame, *mir.Instr) *Error{
	mir.InstrAssign:            (*Executor).execAssign,
	mir.InstrCall:              (*Executor).execCallInstr,
	mir.InstrDrop:              execNop,
	mir.InstrEndBorrow:         execNop,
	mir.InstrAwait:             execAsyncUnimplemented,
	mir.InstrSpawn:             execAsyncUnimplemented,
	mir.InstrPoll:              execAsyncUnimplemented,
	mir.InstrJoinAll:           execAsyncUnimplemented,
	mir.InstrChanSend:          execAsyncUnimplemented,
	mir.InstrChanRecv:          execAsyncUnimplemented,
	mir.InstrTimeout:           execAsyncUnimplemented,
	mir.InstrSelect:            execAsyncUnimplemented,
	mir.InstrNop:               execNop,
	mir.InstrThrow:             (*Executor).execThrow,
	mir.InstrCallLandingPad:    (*Executor).execCallLandingPad,
	mir.InstrLandingPadReceive: (*Executor).execLandingPadReceive,
}

func execNop(*Executor, *Frame, *mir.Instr) *Error { return nil }

func execAsyncUnimplemented(ex *Executor, frame *Frame, in *mir.Instr) *Error {
	return newError(CodeUnimplemented, frame.Func.Span,
		"instruction kind %d (async) not supported by the interpreter tier", in.Kind)
}

func (ex *Executor) execInstr(frame *Frame, in *mir.Instr) *Error {
	if int(in.Kind) >= len(instrDispatch) || instrDispatch[in.Kind] == nil {
		return newError(CodeUnimplemented, frame.Func.Span,
			"instruction kind %d not supported by the interpreter tier", in.Kind)
	}
	return instrDispatch[in.Kind](ex, frame, in)
}

func (ex *Executor) execAssign(frame *Frame, in *mir.Instr) *Error {
	if len(in.Assign.Dst.Proj) > 0 {
		return newError(CodeUnimplemented, frame.Func.Span, "projected assignment not supported by the interpreter tier")
	}
	v, err := ex.evalRValue(frame, &in.Assign.Src)
	if err != nil {
		return err
	}
	if in.Assign.Dst.Kind == mir.PlaceLocal {
		frame.Locals[in.Assign.Dst.Local] = v
	}
	return nil
}

func (ex *Executor) execCallInstr(frame *Frame, in *mir.Instr) *Error {
	result, err := ex.evalCall(frame, &in.Call)
	if err != nil {
		return err
	}
	if in.Call.HasDst && in.Call.Dst.Kind == mir.PlaceLocal {
		frame.Locals[in.Call.Dst.Local] = result
	}
	return nil
}

// execCallLandingPad is execCallInstr's throwing counterpart: a CodeThrown
// error from the callee redirects this frame to call.LandingPad instead of
// propagating, stashing the thrown value for that block's leading
// InstrLandingPadReceive to pick up. Any other error (including an
// uncaught throw further below) still propagates normally.
func (ex *Executor) execCallLandingPad(frame *Frame, in *mir.Instr) *Error {
	result, err := ex.evalCall(frame, &in.Call)
	if err != nil {
		if err.Code == CodeThrown {
			frame.pendingThrow = err.Thrown
			frame.BB, frame.IP = in.Call.LandingPad, 0
			return nil
		}
		return err
	}
	if in.Call.HasDst && in.Call.Dst.Kind == mir.PlaceLocal {
		frame.Locals[in.Call.Dst.Local] = result
	}
	return nil
}

func (ex *Executor) evalCall(frame *Frame, call *mir.CallInstr) (Value, *Error) {
	args := make([]Value, len(call.Args))
	for i, a := range call.Args {
		v, err := ex.evalOperand(frame, &a)
		if err != nil {
			return Null(), err
		}
		args[i] = v
	}

	switch call.Callee.Kind {
	case mir.CalleeSym:
		calleeID, ok := ex.Module.FuncBySym[call.Callee.Sym]
		if !ok {
			if extern, ok := ex.Module.Externs[call.Callee.Sym]; ok {
				if len(extern.Params) != len(args) {
					return Null(), newError(CodeTypeMismatch, frame.Func.Span,
						"call to extern %q passes %d args, want %d", extern.Name, len(args), len(extern.Params))
				}
			}
			entry, rerr := ex.Runtime.Resolve(call.Callee.Name)
			if rerr != nil {
				return Null(), newError(CodeUnimplemented, frame.Func.Span, "unresolved call target %q", call.Callee.Name)
			}
			if v, ok := ex.evalStringIntrinsic(entry, call.Callee.Name, args); ok {
				return v, nil
			}
			// Every other runtime intrinsic is bound and invoked by the
			// compiled tiers' native call sites; the interpreter tier
			// treats an unresolved-to-mir, resolved-to-runtime symbol it
			// doesn't implement directly as a no-op placeholder rather
			// than re-implementing every intrinsic twice (once here, once
			// in backend/llvm).
			return Null(), nil
		}
		r, err := ex.Call(calleeID, args)
		if err != nil {
			if thrown, ok := err.(*Error); ok {
				return Null(), thrown
			}
			return Null(), newError(CodeUnimplemented, frame.Func.Span, "%v", err)
		}
		return r, nil
	default:
		return Null(), newError(CodeUnimplemented, frame.Func.Span, "indirect calls not supported by the interpreter tier")
	}
}

// evalStringIntrinsic implements the small set of rt_string_* runtime
// entries the interpreter tier evaluates directly, rather than only on
// the compiled tiers: enough for scenario tests exercising string values
// (exception messages, formatted output) without a native call site.
func (ex *Executor) evalStringIntrinsic(entry runtime.Entry, name string, args []Value) (Value, bool) {
	if entry.Category != runtime.CategoryString {
		return Null(), false
	}
	switch name {
	case "rt_string_len", "rt_string_len_bytes":
		if len(args) != 1 {
			return Null(), false
		}
		s, ok := ex.heap.stringAt(args[0])
		if !ok {
			return Null(), false
		}
		return Int(int64(len(s))), true
	case "rt_string_concat":
		if len(args) != 2 {
			return Null(), false
		}
		a, ok1 := ex.heap.stringAt(args[0])
		b, ok2 := ex.heap.stringAt(args[1])
		if !ok1 || !ok2 {
			return Null(), false
		}
		return ex.heap.internString(a + b), true
	case "rt_string_eq":
		if len(args) != 2 {
			return Null(), false
		}
		a, ok1 := ex.heap.stringAt(args[0])
		b, ok2 := ex.heap.stringAt(args[1])
		if !ok1 || !ok2 {
			return Null(), false
		}
		return Bool(a == b), true
	default:
		return Null(), false
	}
}

func (ex *Executor) execThrow(frame *Frame, in *mir.Instr) *Error {
	v, err := ex.evalOperand(frame, &in.Throw.Value)
	if err != nil {
		return err
	}
	return newThrown(frame.Func.Span, v)
}

func (ex *Executor) execLandingPadReceive(frame *Frame, in *mir.Instr) *Error {
	if in.LandingPadReceive.Dst.Kind == mir.PlaceLocal {
		frame.Locals[in.LandingPadReceive.Dst.Local] = frame.pendingThrow
	}
	frame.pendingThrow = Null()
	return nil
}

func (ex *Executor) execTerminator(frame *Frame, term *mir.Terminator) (Value, bool, *Error) {
	switch term.Kind {
	case mir.TermReturn:
		if !term.Return.HasValue {
			return Null(), true, nil
		}
		v, err := ex.evalOperand(frame, &term.Return.Value)
		if err != nil {
			return Null(), false, err
		}
		return v, true, nil
	case mir.TermGoto:
		frame.BB, frame.IP = term.Goto.Target, 0
		return Null(), false, nil
	case mir.TermIf:
		cond, err := ex.evalOperand(frame, &term.If.Cond)
		if err != nil {
			return Null(), false, err
		}
		if AsBool(cond) {
			frame.BB = term.If.Then
		} else {
			frame.BB = term.If.Else
		}
		frame.IP = 0
		return Null(), false, nil
	case mir.TermSwitchTag:
		v, err := ex.evalOperand(frame, &term.SwitchTag.Value)
		if err != nil {
			return Null(), false, err
		}
		tag, ok := ex.structTag(v)
		if !ok {
			return Null(), false, newError(CodeTypeMismatch, frame.Func.Span, "switch tag on non-union value")
		}
		target := term.SwitchTag.Default
		for _, c := range term.SwitchTag.Cases {
			if c.TagName == tag {
				target = c.Target
				break
			}
		}
		frame.BB, frame.IP = target, 0
		return Null(), false, nil
	case mir.TermUnreachable:
		return Null(), false, newError(CodeUnimplemented, frame.Func.Span, "reached an unreachable terminator")
	default:
		return Null(), false, newError(CodeUnimplemented, frame.Func.Span, "terminator kind %d not supported by the interpreter tier", term.Kind)
	}
}

func (ex *Executor) evalRValue(frame *Frame, r *mir.RValue) (Value, *Error) {
	switch r.Kind {
	case mir.RValueUse:
		return ex.evalOperand(frame, &r.Use)
	case mir.RValueUnaryOp:
		return ex.evalUnary(frame, &r.Unary)
	case mir.RValueBinaryOp:
		return ex.evalBinary(frame, &r.Binary)
	case mir.RValueCast:
		return ex.evalOperand(frame, &r.Cast.Value)
	case mir.RValueStructLit:
		return ex.evalStructLit(frame, &r.StructLit)
	case mir.RValueField:
		return ex.evalField(frame, &r.Field)
	case mir.RValueTagTest:
		return ex.evalTagTest(frame, &r.TagTest)
	case mir.RValueTagPayload:
		return ex.evalTagPayload(frame, &r.TagPayload)
	default:
		return Null(), newError(CodeUnimplemented, frame.Func.Span, "rvalue kind %d not supported by the interpreter tier", r.Kind)
	}
}

func (ex *Executor) evalStructLit(frame *Frame, s *mir.StructLit) (Value, *Error) {
	fields := make([]Value, len(s.Fields))
	for i := range s.Fields {
		v, err := ex.evalOperand(frame, &s.Fields[i].Value)
		if err != nil {
			return Null(), err
		}
		fields[i] = v
	}
	return ex.heap.newStruct(fields), nil
}

func (ex *Executor) evalField(frame *Frame, f *mir.FieldAccess) (Value, *Error) {
	obj, err := ex.evalOperand(frame, &f.Object)
	if err != nil {
		return Null(), err
	}
	sv, ok := ex.heap.structAt(obj)
	if !ok || f.FieldIdx < 0 || f.FieldIdx >= len(sv.Fields) {
		return Null(), newError(CodeTypeMismatch, frame.Func.Span, "field access on non-struct value or out-of-range index %d", f.FieldIdx)
	}
	return sv.Fields[f.FieldIdx], nil
}

// evalTagTest reads the discriminant conventionally stored at field 0 of
// a tagged union's structValue and compares it against TagName, matching
// the tag_test chain recognize_switch.go folds into a TermSwitchTag.
func (ex *Executor) evalTagTest(frame *Frame, t *mir.TagTest) (Value, *Error) {
	v, err := ex.evalOperand(frame, &t.Value)
	if err != nil {
		return Null(), err
	}
	tag, ok := ex.structTag(v)
	if !ok {
		return Null(), newError(CodeTypeMismatch, frame.Func.Span, "tag test on non-union value")
	}
	return Bool(tag == t.TagName), nil
}

func (ex *Executor) evalTagPayload(frame *Frame, t *mir.TagPayload) (Value, *Error) {
	v, err := ex.evalOperand(frame, &t.Value)
	if err != nil {
		return Null(), err
	}
	sv, ok := ex.heap.structAt(v)
	idx := t.Index + 1
	if !ok || idx < 0 || idx >= len(sv.Fields) {
		return Null(), newError(CodeTypeMismatch, frame.Func.Span, "tag payload access out of range at index %d", t.Index)
	}
	return sv.Fields[idx], nil
}

func (ex *Executor) structTag(v Value) (string, bool) {
	sv, ok := ex.heap.structAt(v)
	if !ok || len(sv.Fields) == 0 {
		return "", false
	}
	return ex.heap.stringAt(sv.Fields[0])
}

func (ex *Executor) evalOperand(frame *Frame, o *mir.Operand) (Value, *Error) {
	switch o.Kind {
	case mir.OperandConst:
		return ex.evalConst(&o.Const), nil
	case mir.OperandCopy, mir.OperandMove:
		if o.Place.Kind == mir.PlaceLocal && len(o.Place.Proj) == 0 {
			return frame.Locals[o.Place.Local], nil
		}
		return Null(), newError(CodeUnimplemented, frame.Func.Span, "projected operand not supported by the interpreter tier")
	default:
		return Null(), newError(CodeUnimplemented, frame.Func.Span, "operand kind %d not supported by the interpreter tier", o.Kind)
	}
}

func (ex *Executor) evalConst(c *mir.Const) Value {
	switch c.Kind {
	case mir.ConstInt:
		return Int(c.IntValue)
	case mir.ConstUint:
		return Int(int64(c.UintValue))
	case mir.ConstFloat:
		return Float(c.FloatValue)
	case mir.ConstBool:
		return Bool(c.BoolValue)
	case mir.ConstString:
		return ex.heap.internString(c.StringValue)
	case mir.ConstNothing:
		return Null()
	default:
		return Null()
	}
}

func (ex *Executor) evalUnary(frame *Frame, u *mir.UnaryOp) (Value, *Error) {
	v, err := ex.evalOperand(frame, &u.Operand)
	if err != nil {
		return Null(), err
	}
	switch {
	case IsFloat(v):
		return Float(-AsFloat(v)), nil
	case IsInt(v):
		return Int(-AsInt(v)), nil
	case IsBool(v):
		return Bool(!AsBool(v)), nil
	default:
		return Null(), newError(CodeTypeMismatch, frame.Func.Span, "unary operator on unsupported value kind")
	}
}

func (ex *Executor) evalBinary(frame *Frame, b *mir.BinaryOp) (Value, *Error) {
	l, err := ex.evalOperand(frame, &b.Left)
	if err != nil {
		return Null(), err
	}
	r, err := ex.evalOperand(frame, &b.Right)
	if err != nil {
		return Null(), err
	}
	if IsInt(l) && IsInt(r) {
		return evalIntBinary(b.Op, AsInt(l), AsInt(r))
	}
	if IsFloat(l) && IsFloat(r) {
		return evalFloatBinary(b.Op, AsFloat(l), AsFloat(r))
	}
	return Null(), newError(CodeTypeMismatch, frame.Func.Span, "binary operator on mismatched value kinds")
}
