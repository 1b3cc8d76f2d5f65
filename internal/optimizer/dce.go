package optimizer

import "rayzor/internal/mir"

// deadCodeEliminate removes pure assignments whose result is never read on
// any path forward from them, via a standard backward liveness dataflow
// over the block graph (mono/dce.go's module-level reachability-marking
// idiom, generalized here to per-instruction liveness within one
// function). Only plain InstrAssign instructions with no field/index
// projection on their destination are ever removed - every other
// instruction kind (calls, drops, borrows, the async suspend-point
// instructions) can have effects beyond its destination local, so it is
// always kept and only contributes to what must stay live.
func deadCodeEliminate(fn *mir.Func) bool {
	if fn == nil || len(fn.Blocks) == 0 {
		return false
	}

	gen := make(map[mir.BlockID]map[mir.LocalID]bool, len(fn.Blocks))
	kill := make(map[mir.BlockID]map[mir.LocalID]bool, len(fn.Blocks))
	for bi := range fn.Blocks {
		id := fn.Blocks[bi].ID
		g, k := blockGenKill(&fn.Blocks[bi])
		gen[id] = g
		kill[id] = k
	}

	liveIn := make(map[mir.BlockID]map[mir.LocalID]bool, len(fn.Blocks))
	liveOut := make(map[mir.BlockID]map[mir.LocalID]bool, len(fn.Blocks))
	for bi := range fn.Blocks {
		id := fn.Blocks[bi].ID
		liveIn[id] = make(map[mir.LocalID]bool)
		liveOut[id] = make(map[mir.LocalID]bool)
	}

	for changed := true; changed; {
		changed = false
		for bi := range fn.Blocks {
			id := fn.Blocks[bi].ID
			out := make(map[mir.LocalID]bool)
			for _, succ := range mir.Successors(fn, id) {
				for l := range liveIn[succ] {
					out[l] = true
				}
			}
			in := make(map[mir.LocalID]bool, len(gen[id]))
			for l := range gen[id] {
				in[l] = true
			}
			for l := range out {
				if !kill[id][l] {
					in[l] = true
				}
			}
			if !setEqual(in, liveIn[id]) {
				liveIn[id] = in
				changed = true
			}
			if !setEqual(out, liveOut[id]) {
				liveOut[id] = out
				changed = true
			}
		}
	}

	removedAny := false
	for bi := range fn.Blocks {
		bb := &fn.Blocks[bi]
		live := make(map[mir.LocalID]bool, len(liveOut[bb.ID]))
		for l := range liveOut[bb.ID] {
			live[l] = true
		}
		for _, l := range terminatorUses(&bb.Term) {
			live[l] = true
		}

		kept := make([]mir.Instr, 0, len(bb.Instrs))
		dead := make([]bool, len(bb.Instrs))
		for ii := len(bb.Instrs) - 1; ii >= 0; ii-- {
			in := &bb.Instrs[ii]
			def, removable, hasDef := removableDef(in)
			if hasDef && removable && !live[def] {
				dead[ii] = true
				continue
			}
			if hasDef {
				delete(live, def)
			}
			for _, u := range instrUses(in) {
				live[u] = true
			}
		}
		for ii := range bb.Instrs {
			if !dead[ii] {
				kept = append(kept, bb.Instrs[ii])
			} else {
				removedAny = true
			}
		}
		bb.Instrs = kept
	}
	return removedAny
}

func setEqual(a, b map[mir.LocalID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func blockGenKill(bb *mir.Block) (map[mir.LocalID]bool, map[mir.LocalID]bool) {
	gen := make(map[mir.LocalID]bool)
	kill := make(map[mir.LocalID]bool)
	for ii := range bb.Instrs {
		in := &bb.Instrs[ii]
		for _, u := range instrUses(in) {
			if !kill[u] {
				gen[u] = true
			}
		}
		if def, _, ok := removableDef(in); ok {
			kill[def] = true
		}
	}
	for _, u := range terminatorUses(&bb.Term) {
		if !kill[u] {
			gen[u] = true
		}
	}
	return gen, kill
}

// removableDef reports the local an instruction fully (re)defines, and
// whether that definition is a side-effect-free assignment eligible for
// removal when dead. Calls/awaits/etc. report a def (so liveness treats
// their destination as freshly defined, same as any other write) but with
// removable=false, since deleting them would drop a side effect.
func removableDef(in *mir.Instr) (mir.LocalID, bool, bool) {
	switch in.Kind {
	case mir.InstrAssign:
		d := in.Assign.Dst
		if d.Kind == mir.PlaceLocal && len(d.Proj) == 0 {
			return d.Local, true, true
		}
		return 0, false, false
	case mir.InstrCall:
		if in.Call.HasDst && in.Call.Dst.Kind == mir.PlaceLocal && len(in.Call.Dst.Proj) == 0 {
			return in.Call.Dst.Local, false, true
		}
	case mir.InstrAwait:
		return dstLocal(in.Await.Dst)
	case mir.InstrSpawn:
		return dstLocal(in.Spawn.Dst)
	case mir.InstrPoll:
		return dstLocal(in.Poll.Dst)
	case mir.InstrJoinAll:
		return dstLocal(in.JoinAll.Dst)
	case mir.InstrChanRecv:
		return dstLocal(in.ChanRecv.Dst)
	case mir.InstrTimeout:
		return dstLocal(in.Timeout.Dst)
	case mir.InstrSelect:
		return dstLocal(in.Select.Dst)
	}
	return 0, false, false
}

func dstLocal(p mir.Place) (mir.LocalID, bool, bool) {
	if p.Kind == mir.PlaceLocal && len(p.Proj) == 0 {
		return p.Local, false, true
	}
	return 0, false, false
}

// instrUses returns every local an instruction reads, conservatively:
// projected writes (Dst with a field/index projection) count the base
// local as a use too, since the write needs the existing value.
func instrUses(in *mir.Instr) []mir.LocalID {
	var out []mir.LocalID
	add := func(o mir.Operand) {
		if o.Kind != mir.OperandCopy && o.Kind != mir.OperandMove &&
			o.Kind != mir.OperandAddrOf && o.Kind != mir.OperandAddrOfMut {
			return
		}
		if o.Place.Kind == mir.PlaceLocal {
			out = append(out, o.Place.Local)
		}
		for _, proj := range o.Place.Proj {
			if proj.Kind == mir.PlaceProjIndex && proj.IndexLocal != mir.NoLocalID {
				out = append(out, proj.IndexLocal)
			}
		}
	}
	addPlace := func(p mir.Place) {
		if p.Kind == mir.PlaceLocal {
			out = append(out, p.Local)
		}
		for _, proj := range p.Proj {
			if proj.Kind == mir.PlaceProjIndex && proj.IndexLocal != mir.NoLocalID {
				out = append(out, proj.IndexLocal)
			}
		}
	}

	switch in.Kind {
	case mir.InstrAssign:
		if len(in.Assign.Dst.Proj) > 0 {
			addPlace(in.Assign.Dst)
		}
		forEachRValueOperand(in.Assign.Src, add)
	case mir.InstrCall:
		for _, a := range in.Call.Args {
			add(a)
		}
		if in.Call.Callee.Kind == mir.CalleeValue {
			add(in.Call.Callee.Value)
		}
	case mir.InstrDrop:
		addPlace(in.Drop.Place)
	case mir.InstrEndBorrow:
		addPlace(in.EndBorrow.Place)
	case mir.InstrAwait:
		add(in.Await.Task)
	case mir.InstrSpawn:
		add(in.Spawn.Value)
	case mir.InstrPoll:
		add(in.Poll.Task)
	case mir.InstrJoinAll:
		add(in.JoinAll.Scope)
	case mir.InstrChanSend:
		add(in.ChanSend.Channel)
		add(in.ChanSend.Value)
	case mir.InstrChanRecv:
		add(in.ChanRecv.Channel)
	case mir.InstrTimeout:
		add(in.Timeout.Task)
		add(in.Timeout.Ms)
	case mir.InstrSelect:
		for _, arm := range in.Select.Arms {
			add(arm.Task)
			add(arm.Channel)
			add(arm.Value)
			add(arm.Ms)
		}
	}
	return out
}

func terminatorUses(term *mir.Terminator) []mir.LocalID {
	var out []mir.LocalID
	add := func(o mir.Operand) {
		if o.Kind != mir.OperandCopy && o.Kind != mir.OperandMove {
			return
		}
		if o.Place.Kind == mir.PlaceLocal {
			out = append(out, o.Place.Local)
		}
	}
	switch term.Kind {
	case mir.TermReturn:
		if term.Return.HasValue {
			add(term.Return.Value)
		}
	case mir.TermIf:
		add(term.If.Cond)
	case mir.TermSwitchTag:
		add(term.SwitchTag.Value)
	case mir.TermAsyncYield:
		add(term.AsyncYield.State)
	case mir.TermAsyncReturn:
		add(term.AsyncReturn.State)
		if term.AsyncReturn.HasValue {
			add(term.AsyncReturn.Value)
		}
	case mir.TermAsyncReturnCancelled:
		add(term.AsyncReturnCancelled.State)
	}
	return out
}

func forEachRValueOperand(r mir.RValue, visit func(mir.Operand)) {
	switch r.Kind {
	case mir.RValueUse:
		visit(r.Use)
	case mir.RValueUnaryOp:
		visit(r.Unary.Operand)
	case mir.RValueBinaryOp:
		visit(r.Binary.Left)
		visit(r.Binary.Right)
	case mir.RValueCast:
		visit(r.Cast.Value)
	case mir.RValueStructLit:
		for _, fld := range r.StructLit.Fields {
			visit(fld.Value)
		}
	case mir.RValueArrayLit:
		for _, e := range r.ArrayLit.Elems {
			visit(e)
		}
	case mir.RValueTupleLit:
		for _, e := range r.TupleLit.Elems {
			visit(e)
		}
	case mir.RValueField:
		visit(r.Field.Object)
	case mir.RValueIndex:
		visit(r.Index.Object)
		visit(r.Index.Index)
	case mir.RValueTagTest:
		visit(r.TagTest.Value)
	case mir.RValueTagPayload:
		visit(r.TagPayload.Value)
	case mir.RValueIterNext:
		visit(r.IterNext.Iter)
	case mir.RValueIterInit:
		visit(r.IterInit.Iterable)
	case mir.RValueTypeTest:
		visit(r.TypeTest.Value)
	case mir.RValueHeirTest:
		visit(r.HeirTest.Value)
	}
}
