package mir

// Successors returns the blocks id's terminator (and, for an async suspend
// point, its trailing Poll/JoinAll/ChanSend/ChanRecv/Timeout/Select
// instruction) can transfer control to. Exported for callers outside this
// package, such as internal/optimizer's liveness analysis, that need the
// same branch set dominance computation uses.
func Successors(f *Func, id BlockID) []BlockID {
	return successorsOf(f, id)
}

// successorsOf returns the blocks id's terminator and trailing async
// instruction (Poll/JoinAll/ChanSend/ChanRecv/Timeout/Select) can transfer
// control to. Mirrors the branch set computeReachability (simplify_cfg.go)
// already walks, factored out read-only so dominance/SSA can share it
// without touching that pass.
func successorsOf(f *Func, id BlockID) []BlockID {
	if f == nil || id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	bb := &f.Blocks[id]
	if len(bb.Instrs) > 0 {
		last := &bb.Instrs[len(bb.Instrs)-1]
		switch last.Kind {
		case InstrPoll:
			return filterValidBlocks(last.Poll.ReadyBB, last.Poll.PendBB)
		case InstrJoinAll:
			return filterValidBlocks(last.JoinAll.ReadyBB, last.JoinAll.PendBB)
		case InstrChanSend:
			return filterValidBlocks(last.ChanSend.ReadyBB, last.ChanSend.PendBB)
		case InstrChanRecv:
			return filterValidBlocks(last.ChanRecv.ReadyBB, last.ChanRecv.PendBB)
		case InstrTimeout:
			return filterValidBlocks(last.Timeout.ReadyBB, last.Timeout.PendBB)
		case InstrSelect:
			return filterValidBlocks(last.Select.ReadyBB, last.Select.PendBB)
		}
	}
	switch bb.Term.Kind {
	case TermGoto:
		return filterValidBlocks(bb.Term.Goto.Target)
	case TermIf:
		return filterValidBlocks(bb.Term.If.Then, bb.Term.If.Else)
	case TermSwitchTag:
		out := make([]BlockID, 0, len(bb.Term.SwitchTag.Cases)+1)
		for _, c := range bb.Term.SwitchTag.Cases {
			out = append(out, c.Target)
		}
		out = append(out, bb.Term.SwitchTag.Default)
		return filterValidBlocks(out...)
	default:
		return nil
	}
}

func filterValidBlocks(ids ...BlockID) []BlockID {
	out := make([]BlockID, 0, len(ids))
	for _, id := range ids {
		if id != NoBlockID {
			out = append(out, id)
		}
	}
	return out
}

// Dominance holds the dominator tree and dominance frontiers for one
// function's CFG, computed with the Cooper-Harvey-Kennedy iterative
// algorithm (the same construction internal/graphs uses for HIR-level
// CFGs, applied here to the lowered MIR CFG since async-split functions
// can have a materially different block shape than the HIR body they came
// from).
type Dominance struct {
	IDom     map[BlockID]BlockID
	Frontier map[BlockID][]BlockID

	order  []BlockID
	rpoNum map[BlockID]int
}

// ComputeDominance builds the dominator tree for f starting at f.Entry.
func ComputeDominance(f *Func) *Dominance {
	d := &Dominance{
		IDom:     make(map[BlockID]BlockID),
		Frontier: make(map[BlockID][]BlockID),
		rpoNum:   make(map[BlockID]int),
	}
	if f == nil || f.Entry == NoBlockID || len(f.Blocks) == 0 {
		return d
	}

	preds := make(map[BlockID][]BlockID)
	for i := range f.Blocks {
		id := f.Blocks[i].ID
		for _, s := range successorsOf(f, id) {
			preds[s] = append(preds[s], id)
		}
	}

	d.order = reversePostorder(f, f.Entry)
	for i, id := range d.order {
		d.rpoNum[id] = i
	}
	if len(d.order) == 0 {
		return d
	}

	d.IDom[f.Entry] = f.Entry
	changed := true
	for changed {
		changed = false
		for _, id := range d.order {
			if id == f.Entry {
				continue
			}
			var newIdom BlockID = NoBlockID
			for _, p := range preds[id] {
				if _, ok := d.IDom[p]; !ok {
					continue
				}
				if newIdom == NoBlockID {
					newIdom = p
					continue
				}
				newIdom = d.intersect(newIdom, p)
			}
			if newIdom != NoBlockID && d.IDom[id] != newIdom {
				d.IDom[id] = newIdom
				changed = true
			}
		}
	}

	for _, id := range d.order {
		ps := preds[id]
		if len(ps) < 2 {
			continue
		}
		for _, p := range ps {
			if _, ok := d.IDom[p]; !ok {
				continue
			}
			runner := p
			for runner != d.IDom[id] {
				d.Frontier[runner] = appendUniqueBlock(d.Frontier[runner], id)
				runner = d.IDom[runner]
			}
		}
	}
	return d
}

func (d *Dominance) intersect(a, b BlockID) BlockID {
	for a != b {
		for d.rpoNum[a] > d.rpoNum[b] {
			a = d.IDom[a]
		}
		for d.rpoNum[b] > d.rpoNum[a] {
			b = d.IDom[b]
		}
	}
	return a
}

// Dominates reports whether a dominates b (inclusive: a dominates itself).
func (d *Dominance) Dominates(a, b BlockID) bool {
	if d == nil {
		return false
	}
	for {
		if a == b {
			return true
		}
		idom, ok := d.IDom[b]
		if !ok || idom == b {
			return a == b
		}
		b = idom
	}
}

func reversePostorder(f *Func, entry BlockID) []BlockID {
	visited := make(map[BlockID]bool)
	var post []BlockID
	var visit func(id BlockID)
	visit = func(id BlockID) {
		if id == NoBlockID || visited[id] {
			return
		}
		visited[id] = true
		for _, s := range successorsOf(f, id) {
			visit(s)
		}
		post = append(post, id)
	}
	visit(entry)
	out := make([]BlockID, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}
	return out
}

func appendUniqueBlock(ids []BlockID, id BlockID) []BlockID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
