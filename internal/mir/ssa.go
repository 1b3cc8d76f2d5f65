package mir

// ValueID names one SSA value: either a definite assignment to a promoted
// local, or a phi node merging several such assignments at a join block.
// Distinct from LocalID - a single local can own many ValueIDs across its
// lifetime, one per reaching definition.
type ValueID int32

// NoValueID indicates no SSA value (e.g. a use with no reaching def, which
// means the local is never promotable and must be read through its place).
const NoValueID ValueID = -1

// SSADef describes one SSA value: where it is defined and, for phi nodes,
// which predecessor block contributes which incoming value. A phi def
// (IsPhi true) is the materialized form of spec.md §3.6's InstrPhi: this
// package represents it as SSA data keyed by ValueID rather than as an
// inline Instr in Block.Instrs, since the rest of the pipeline (codegen,
// the VM, the LLVM backend) still walks the teacher's place-based
// Instr/Terminator/Place shape. See Func.SSA and Validate for the
// consumers that treat this data as load-bearing rather than advisory.
type SSADef struct {
	ID    ValueID
	Local LocalID
	Block BlockID

	// IsPhi is true when this value merges incoming values from multiple
	// predecessors at a dominance-frontier join point - an InstrPhi.
	IsPhi bool
	// Instr is the index of the defining InstrAssign within Block.Instrs,
	// meaningless when IsPhi is true.
	Instr int
	// Incoming holds, for a phi, the predecessor block paired with the
	// value it contributes. Empty for non-phi defs. Len(Incoming) must
	// equal the number of predecessors of Block once rename has run over
	// every reachable block - Validate checks this bijection.
	Incoming []PhiOperand
}

// PhiOperand is one incoming edge of a phi node: spec.md §3.6's
// PhiOperand{Pred, Value} pair.
type PhiOperand struct {
	Pred  BlockID
	Value ValueID
}

// useSite identifies one read of a promoted local: the block and
// instruction index it occurs in, used only to key UseValue below.
type useSite struct {
	Block BlockID
	Instr int
	Slot  int
}

// SSAForm is an advisory, read-only SSA view computed over a Func's
// existing place-based instructions. It does not rewrite Instr, Terminator
// or Place: the optimizer consumes it to find safe copy-propagation and
// CSE opportunities without requiring the rest of the pipeline (codegen,
// the VM, the LLVM backend) to understand a parallel SSA instruction set.
// Only locals never address-taken (no &local / &mut local, no projected
// access) are promoted; everything else keeps resolving through Place as
// before.
type SSAForm struct {
	Func      *Func
	Dom       *Dominance
	Promoted  map[LocalID]bool
	Defs      map[ValueID]*SSADef
	PhisAt    map[BlockID][]ValueID
	UseValue  map[useSite]ValueID
	nextValue ValueID
}

// BuildSSA computes the SSA view for f. Returns nil if f has no blocks.
func BuildSSA(f *Func) *SSAForm {
	if f == nil || len(f.Blocks) == 0 || f.Entry == NoBlockID {
		return nil
	}
	dom := ComputeDominance(f)
	s := &SSAForm{
		Func:     f,
		Dom:      dom,
		Promoted: promotableLocals(f),
		Defs:     make(map[ValueID]*SSADef),
		PhisAt:   make(map[BlockID][]ValueID),
		UseValue: make(map[useSite]ValueID),
	}
	if len(s.Promoted) == 0 {
		return s
	}

	defBlocks := collectDefBlocks(f, s.Promoted)
	s.placePhis(defBlocks, dom)
	s.rename(f, dom)
	return s
}

// promotableLocals finds locals that are never address-taken and never
// accessed through a place projection, matching the mem2reg "address not
// taken" eligibility rule. Reference/pointer-flagged locals (Flags carries
// LocalFlagRef/LocalFlagRefMut/LocalFlagPtr) are excluded outright since
// they already denote aliasing, not a single scalar slot.
func promotableLocals(f *Func) map[LocalID]bool {
	promoted := make(map[LocalID]bool, len(f.Locals))
	for i, l := range f.Locals {
		if l.Flags&(LocalFlagRef|LocalFlagRefMut|LocalFlagPtr) != 0 {
			continue
		}
		promoted[LocalID(i)] = true
	}

	disqualify := func(id LocalID) {
		delete(promoted, id)
	}
	disqualifyPlace := func(p Place) {
		if p.Kind != PlaceLocal {
			return
		}
		if len(p.Proj) > 0 {
			disqualify(p.Local)
		}
	}
	disqualifyOperand := func(o Operand) {
		if o.Kind == OperandAddrOf || o.Kind == OperandAddrOfMut {
			if o.Place.Kind == PlaceLocal {
				disqualify(o.Place.Local)
			}
		}
		disqualifyPlace(o.Place)
	}

	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			switch in.Kind {
			case InstrAssign:
				disqualifyPlace(in.Assign.Dst)
				walkRValueOperands(in.Assign.Src, disqualifyOperand)
			case InstrCall:
				if in.Call.HasDst {
					disqualifyPlace(in.Call.Dst)
				}
				for _, a := range in.Call.Args {
					disqualifyOperand(a)
				}
				if in.Call.Callee.Kind == CalleeValue {
					disqualifyOperand(in.Call.Callee.Value)
				}
			case InstrDrop:
				disqualifyPlace(in.Drop.Place)
			case InstrEndBorrow:
				disqualifyPlace(in.EndBorrow.Place)
			}
		}
	}
	return promoted
}

func walkRValueOperands(r RValue, visit func(Operand)) {
	switch r.Kind {
	case RValueUse:
		visit(r.Use)
	case RValueUnaryOp:
		visit(r.Unary.Operand)
	case RValueBinaryOp:
		visit(r.Binary.Left)
		visit(r.Binary.Right)
	case RValueCast:
		visit(r.Cast.Value)
	case RValueStructLit:
		for _, fld := range r.StructLit.Fields {
			visit(fld.Value)
		}
	case RValueArrayLit:
		for _, e := range r.ArrayLit.Elems {
			visit(e)
		}
	case RValueTupleLit:
		for _, e := range r.TupleLit.Elems {
			visit(e)
		}
	case RValueField:
		visit(r.Field.Object)
	case RValueIndex:
		visit(r.Index.Object)
		visit(r.Index.Index)
	case RValueTagTest:
		visit(r.TagTest.Value)
	case RValueTagPayload:
		visit(r.TagPayload.Value)
	case RValueIterNext:
		visit(r.IterNext.Iter)
	case RValueIterInit:
		visit(r.IterInit.Iterable)
	case RValueTypeTest:
		visit(r.TypeTest.Value)
	case RValueHeirTest:
		visit(r.HeirTest.Value)
	}
}

// walkRValueOperandPtrs is walkRValueOperands's mutable twin: it visits the
// same operand slots but by pointer, so a caller can rewrite them in place
// (used by copy propagation).
func walkRValueOperandPtrs(r *RValue, visit func(*Operand)) {
	switch r.Kind {
	case RValueUse:
		visit(&r.Use)
	case RValueUnaryOp:
		visit(&r.Unary.Operand)
	case RValueBinaryOp:
		visit(&r.Binary.Left)
		visit(&r.Binary.Right)
	case RValueCast:
		visit(&r.Cast.Value)
	case RValueStructLit:
		for i := range r.StructLit.Fields {
			visit(&r.StructLit.Fields[i].Value)
		}
	case RValueArrayLit:
		for i := range r.ArrayLit.Elems {
			visit(&r.ArrayLit.Elems[i])
		}
	case RValueTupleLit:
		for i := range r.TupleLit.Elems {
			visit(&r.TupleLit.Elems[i])
		}
	case RValueField:
		visit(&r.Field.Object)
	case RValueIndex:
		visit(&r.Index.Object)
		visit(&r.Index.Index)
	case RValueTagTest:
		visit(&r.TagTest.Value)
	case RValueTagPayload:
		visit(&r.TagPayload.Value)
	case RValueIterNext:
		visit(&r.IterNext.Iter)
	case RValueIterInit:
		visit(&r.IterInit.Iterable)
	case RValueTypeTest:
		visit(&r.TypeTest.Value)
	case RValueHeirTest:
		visit(&r.HeirTest.Value)
	}
}

func collectDefBlocks(f *Func, promoted map[LocalID]bool) map[LocalID][]BlockID {
	out := make(map[LocalID][]BlockID)
	for bi := range f.Blocks {
		bid := f.Blocks[bi].ID
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.Kind != InstrAssign {
				continue
			}
			if in.Assign.Dst.Kind != PlaceLocal || !promoted[in.Assign.Dst.Local] {
				continue
			}
			out[in.Assign.Dst.Local] = appendUniqueBlock(out[in.Assign.Dst.Local], bid)
		}
	}
	return out
}

// placePhis runs the Cytron et al. iterated dominance frontier
// construction per promoted local, recording a pending phi slot (no
// incoming edges yet - rename fills those in) at every block in the
// closure of definition sites' dominance frontiers.
func (s *SSAForm) placePhis(defBlocks map[LocalID][]BlockID, dom *Dominance) {
	for local, defs := range defBlocks {
		hasPhi := make(map[BlockID]bool)
		worklist := append([]BlockID(nil), defs...)
		for len(worklist) > 0 {
			n := len(worklist) - 1
			b := worklist[n]
			worklist = worklist[:n]
			for _, y := range dom.Frontier[b] {
				if hasPhi[y] {
					continue
				}
				hasPhi[y] = true
				id := s.nextValue
				s.nextValue++
				s.Defs[id] = &SSADef{ID: id, Local: local, Block: y, IsPhi: true}
				s.PhisAt[y] = append(s.PhisAt[y], id)
				worklist = append(worklist, y)
			}
		}
	}
}

// rename walks the dominator tree in reverse-postorder, maintaining one
// reaching-value stack per promoted local, assigning fresh ValueIDs to
// each InstrAssign, resolving each use to the reaching ValueID, and
// filling in phi incoming edges at successor blocks.
func (s *SSAForm) rename(f *Func, dom *Dominance) {
	stacks := make(map[LocalID][]ValueID)
	top := func(local LocalID) ValueID {
		st := stacks[local]
		if len(st) == 0 {
			return NoValueID
		}
		return st[len(st)-1]
	}
	push := func(local LocalID, v ValueID) {
		stacks[local] = append(stacks[local], v)
	}

	children := make(map[BlockID][]BlockID)
	for id, idom := range dom.IDom {
		if id == idom {
			continue
		}
		children[idom] = append(children[idom], id)
	}

	var visit func(b BlockID)
	visit = func(b BlockID) {
		depth := make(map[LocalID]int)
		for _, vid := range s.PhisAt[b] {
			def := s.Defs[vid]
			push(def.Local, vid)
			depth[def.Local]++
		}

		if int(b) < len(f.Blocks) {
			for ii := range f.Blocks[b].Instrs {
				in := &f.Blocks[b].Instrs[ii]
				s.resolveUses(in, b, ii, top)
				if in.Kind == InstrAssign && in.Assign.Dst.Kind == PlaceLocal && s.Promoted[in.Assign.Dst.Local] {
					local := in.Assign.Dst.Local
					id := s.nextValue
					s.nextValue++
					s.Defs[id] = &SSADef{ID: id, Local: local, Block: b, Instr: ii}
					push(local, id)
					depth[local]++
				}
			}
		}

		for _, succ := range successorsOf(f, b) {
			for _, vid := range s.PhisAt[succ] {
				def := s.Defs[vid]
				def.Incoming = append(def.Incoming, PhiOperand{Pred: b, Value: top(def.Local)})
			}
		}

		for _, c := range children[b] {
			visit(c)
		}

		for local, n := range depth {
			st := stacks[local]
			stacks[local] = st[:len(st)-n]
		}
	}
	visit(f.Entry)
}

// ForEachOperandSlot visits every operand an instruction reads, in a fixed
// order (assign source operands, then call args, then a value callee), so
// a use's position can be named by a stable (block, instr, slot) triple.
// Shared between SSA renaming and the optimizer's copy-propagation pass so
// both agree on the same slot numbering.
func ForEachOperandSlot(in *Instr, visit func(slot int, o *Operand)) {
	if in == nil {
		return
	}
	slot := 0
	wrap := func(o *Operand) {
		visit(slot, o)
		slot++
	}
	switch in.Kind {
	case InstrAssign:
		walkRValueOperandPtrs(&in.Assign.Src, wrap)
	case InstrCall:
		for i := range in.Call.Args {
			wrap(&in.Call.Args[i])
		}
		if in.Call.Callee.Kind == CalleeValue {
			wrap(&in.Call.Callee.Value)
		}
	}
}

func (s *SSAForm) resolveUses(in *Instr, block BlockID, instrIdx int, top func(LocalID) ValueID) {
	ForEachOperandSlot(in, func(slot int, o *Operand) {
		if o.Kind != OperandCopy && o.Kind != OperandMove {
			return
		}
		if o.Place.Kind != PlaceLocal || !s.Promoted[o.Place.Local] {
			return
		}
		s.UseValue[useSite{Block: block, Instr: instrIdx, Slot: slot}] = top(o.Place.Local)
	})
}

// ValueAt returns the SSA value reaching the slot-th promoted-local
// operand read by the instr-th instruction of block, or NoValueID if that
// slot isn't a promoted-local read.
func (s *SSAForm) ValueAt(block BlockID, instr, slot int) ValueID {
	if s == nil {
		return NoValueID
	}
	v, ok := s.UseValue[useSite{Block: block, Instr: instr, Slot: slot}]
	if !ok {
		return NoValueID
	}
	return v
}
