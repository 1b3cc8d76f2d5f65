package optimizer

import "rayzor/internal/mir"

// maxInlineInstrs bounds the callee bodies this pass will splice in: the
// same order of magnitude as internal/graphs.inlineSizeBudget's
// straight-line-body threshold, applied here at the MIR instruction count
// instead of the HIR statement count the graphs package measures.
const maxInlineInstrs = 32

// inline splices small, non-recursive, non-async direct calls into their
// caller's CFG in place of the InstrCall: the call's block is split at the
// call site, the callee's blocks and locals are cloned with fresh IDs into
// the caller, the split continuation becomes a shared landing block, and
// every cloned TermReturn becomes a TermGoto to that landing block (first
// writing the return value, if any, into the original call's destination
// place). Because MIR stays place-based rather than a pure SSA register
// file, multiple inlined return sites converging on one caller-owned local
// is already a valid merge - no phi node has to be synthesized the way it
// would in a value-numbered IR.
func inline(m *mir.Module) bool {
	if m == nil {
		return false
	}
	changed := false
	for _, fn := range m.Funcs {
		for inlineOnePass(m, fn) {
			changed = true
		}
	}
	return changed
}

func inlineOnePass(m *mir.Module, fn *mir.Func) bool {
	if fn == nil || fn.IsAsync {
		return false
	}
	for bi := 0; bi < len(fn.Blocks); bi++ {
		for ii := range fn.Blocks[bi].Instrs {
			in := &fn.Blocks[bi].Instrs[ii]
			if in.Kind != mir.InstrCall || in.Call.Callee.Kind != mir.CalleeSym {
				continue
			}
			calleeID, ok := m.FuncBySym[in.Call.Callee.Sym]
			if !ok {
				continue
			}
			callee := m.Funcs[calleeID]
			if !eligibleForInline(fn, callee) {
				continue
			}
			spliceCall(fn, mir.BlockID(bi), ii, callee)
			return true
		}
	}
	return false
}

func eligibleForInline(caller, callee *mir.Func) bool {
	if callee == nil || callee.IsAsync || callee.ID == caller.ID {
		return false
	}
	count := 0
	for _, bb := range callee.Blocks {
		count += len(bb.Instrs)
		if count > maxInlineInstrs {
			return false
		}
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			if in.Kind == mir.InstrCall && in.Call.Callee.Kind == mir.CalleeSym && in.Call.Callee.Sym == callee.Sym {
				return false // self-recursive
			}
			switch in.Kind {
			case mir.InstrPoll, mir.InstrJoinAll, mir.InstrChanSend, mir.InstrChanRecv, mir.InstrTimeout, mir.InstrSelect:
				// These carry mid-block ReadyBB/PendBB branch targets that
				// cloneBlockForInline does not remap; skip rather than
				// risk splicing in a dangling block reference.
				return false
			}
		}
	}
	return true
}

// spliceCall performs the inlining described on inline's doc comment for
// one call instruction at fn.Blocks[callBlock].Instrs[callIdx].
func spliceCall(fn *mir.Func, callBlock mir.BlockID, callIdx int, callee *mir.Func) {
	call := fn.Blocks[callBlock].Instrs[callIdx]

	localOffset := mir.LocalID(len(fn.Locals))
	fn.Locals = append(fn.Locals, callee.Locals...)

	blockOffset := mir.BlockID(len(fn.Blocks))
	landing := mir.BlockID(int(blockOffset) + len(callee.Blocks))

	before := fn.Blocks[callBlock]
	after := mir.Block{
		ID:     landing,
		Instrs: append([]mir.Instr(nil), before.Instrs[callIdx+1:]...),
		Term:   before.Term,
	}
	before.Instrs = append([]mir.Instr(nil), before.Instrs[:callIdx]...)

	remapBlock := func(id mir.BlockID) mir.BlockID {
		if id == mir.NoBlockID {
			return mir.NoBlockID
		}
		return id + blockOffset
	}
	remapLocal := func(id mir.LocalID) mir.LocalID {
		if id == mir.NoLocalID {
			return mir.NoLocalID
		}
		return id + localOffset
	}
	remapPlace := func(p mir.Place) mir.Place {
		if p.Kind != mir.PlaceLocal {
			return p
		}
		p.Local = remapLocal(p.Local)
		if len(p.Proj) > 0 {
			proj := append([]mir.PlaceProj(nil), p.Proj...)
			for i := range proj {
				if proj[i].Kind == mir.PlaceProjIndex {
					proj[i].IndexLocal = remapLocal(proj[i].IndexLocal)
				}
			}
			p.Proj = proj
		}
		return p
	}
	remapOperand := func(o mir.Operand) mir.Operand {
		o.Place = remapPlace(o.Place)
		return o
	}

	cloned := make([]mir.Block, len(callee.Blocks))
	for i, src := range callee.Blocks {
		cloned[i] = cloneBlockForInline(src, blockOffset+mir.BlockID(i), remapBlock, remapOperand)
	}

	// Bind arguments into the cloned entry block's parameter locals, then
	// jump from the call site into it.
	paramBinds := make([]mir.Instr, 0, callee.ParamCount)
	for p := 0; p < callee.ParamCount && p < len(call.Call.Args); p++ {
		paramBinds = append(paramBinds, mir.Instr{
			Kind: mir.InstrAssign,
			Assign: mir.AssignInstr{
				Dst: mir.Place{Kind: mir.PlaceLocal, Local: remapLocal(mir.LocalID(p))},
				Src: mir.RValue{Kind: mir.RValueUse, Use: call.Call.Args[p]},
			},
		})
	}
	before.Instrs = append(before.Instrs, paramBinds...)
	before.Term = mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: remapBlock(callee.Entry)}}

	// Every cloned return becomes a jump to the landing block, first
	// storing the result (if the call had one) into the call's own place.
	for i := range cloned {
		if cloned[i].Term.Kind != mir.TermReturn {
			continue
		}
		ret := cloned[i].Term.Return
		if call.Call.HasDst && ret.HasValue {
			cloned[i].Instrs = append(cloned[i].Instrs, mir.Instr{
				Kind: mir.InstrAssign,
				Assign: mir.AssignInstr{
					Dst: call.Call.Dst,
					Src: mir.RValue{Kind: mir.RValueUse, Use: ret.Value},
				},
			})
		}
		cloned[i].Term = mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: landing}}
	}

	fn.Blocks[callBlock] = before
	fn.Blocks = append(fn.Blocks, cloned...)
	fn.Blocks = append(fn.Blocks, after)
}

func cloneBlockForInline(src mir.Block, id mir.BlockID, remapBlock func(mir.BlockID) mir.BlockID, remapOperand func(mir.Operand) mir.Operand) mir.Block {
	out := mir.Block{ID: id, Instrs: make([]mir.Instr, len(src.Instrs)), Term: src.Term}
	for i, in := range src.Instrs {
		out.Instrs[i] = cloneInstrForInline(in, remapOperand)
	}

	switch out.Term.Kind {
	case mir.TermGoto:
		out.Term.Goto.Target = remapBlock(out.Term.Goto.Target)
	case mir.TermIf:
		out.Term.If.Cond = remapOperand(out.Term.If.Cond)
		out.Term.If.Then = remapBlock(out.Term.If.Then)
		out.Term.If.Else = remapBlock(out.Term.If.Else)
	case mir.TermSwitchTag:
		out.Term.SwitchTag.Value = remapOperand(out.Term.SwitchTag.Value)
		cases := make([]mir.SwitchTagCase, len(out.Term.SwitchTag.Cases))
		for i, c := range out.Term.SwitchTag.Cases {
			c.Target = remapBlock(c.Target)
			cases[i] = c
		}
		out.Term.SwitchTag.Cases = cases
		out.Term.SwitchTag.Default = remapBlock(out.Term.SwitchTag.Default)
	case mir.TermReturn:
		if out.Term.Return.HasValue {
			out.Term.Return.Value = remapOperand(out.Term.Return.Value)
		}
	}
	return out
}

func cloneInstrForInline(in mir.Instr, remapOperand func(mir.Operand) mir.Operand) mir.Instr {
	remapPlace := func(p mir.Place) mir.Place {
		return remapOperand(mir.Operand{Kind: mir.OperandCopy, Place: p}).Place
	}

	switch in.Kind {
	case mir.InstrAssign:
		in.Assign.Dst = remapPlace(in.Assign.Dst)
		in.Assign.Src = remapRValueForInline(in.Assign.Src, remapOperand)
	case mir.InstrCall:
		if in.Call.HasDst {
			in.Call.Dst = remapPlace(in.Call.Dst)
		}
		if in.Call.Callee.Kind == mir.CalleeValue {
			in.Call.Callee.Value = remapOperand(in.Call.Callee.Value)
		}
		args := make([]mir.Operand, len(in.Call.Args))
		for i, a := range in.Call.Args {
			args[i] = remapOperand(a)
		}
		in.Call.Args = args
	case mir.InstrDrop:
		in.Drop.Place = remapPlace(in.Drop.Place)
	case mir.InstrEndBorrow:
		in.EndBorrow.Place = remapPlace(in.EndBorrow.Place)
	case mir.InstrAwait:
		in.Await.Dst = remapPlace(in.Await.Dst)
		in.Await.Task = remapOperand(in.Await.Task)
	case mir.InstrSpawn:
		in.Spawn.Dst = remapPlace(in.Spawn.Dst)
		in.Spawn.Value = remapOperand(in.Spawn.Value)
	}
	return in
}

func remapRValueForInline(r mir.RValue, remapOperand func(mir.Operand) mir.Operand) mir.RValue {
	switch r.Kind {
	case mir.RValueUse:
		r.Use = remapOperand(r.Use)
	case mir.RValueUnaryOp:
		r.Unary.Operand = remapOperand(r.Unary.Operand)
	case mir.RValueBinaryOp:
		r.Binary.Left = remapOperand(r.Binary.Left)
		r.Binary.Right = remapOperand(r.Binary.Right)
	case mir.RValueCast:
		r.Cast.Value = remapOperand(r.Cast.Value)
	case mir.RValueStructLit:
		fields := make([]mir.StructLitField, len(r.StructLit.Fields))
		for i, f := range r.StructLit.Fields {
			f.Value = remapOperand(f.Value)
			fields[i] = f
		}
		r.StructLit.Fields = fields
	case mir.RValueArrayLit:
		elems := make([]mir.Operand, len(r.ArrayLit.Elems))
		for i, e := range r.ArrayLit.Elems {
			elems[i] = remapOperand(e)
		}
		r.ArrayLit.Elems = elems
	case mir.RValueTupleLit:
		elems := make([]mir.Operand, len(r.TupleLit.Elems))
		for i, e := range r.TupleLit.Elems {
			elems[i] = remapOperand(e)
		}
		r.TupleLit.Elems = elems
	case mir.RValueField:
		r.Field.Object = remapOperand(r.Field.Object)
	case mir.RValueIndex:
		r.Index.Object = remapOperand(r.Index.Object)
		r.Index.Index = remapOperand(r.Index.Index)
	case mir.RValueTagTest:
		r.TagTest.Value = remapOperand(r.TagTest.Value)
	case mir.RValueTagPayload:
		r.TagPayload.Value = remapOperand(r.TagPayload.Value)
	case mir.RValueIterNext:
		r.IterNext.Iter = remapOperand(r.IterNext.Iter)
	case mir.RValueIterInit:
		r.IterInit.Iterable = remapOperand(r.IterInit.Iterable)
	case mir.RValueTypeTest:
		r.TypeTest.Value = remapOperand(r.TypeTest.Value)
	case mir.RValueHeirTest:
		r.HeirTest.Value = remapOperand(r.HeirTest.Value)
	}
	return r
}
