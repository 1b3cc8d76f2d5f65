package graphs

// Dominance is the dominator tree and dominance frontier for a CFG, computed
// with the iterative Cooper-Harvey-Kennedy algorithm (A Simple, Fast
// Dominance Algorithm, 2001). It converges in a handful of passes on the
// structured control flow this package's CFG builder produces and avoids the
// O(n^3) naive bit-vector fixpoint.
type Dominance struct {
	// IDom maps each reachable block to its immediate dominator. IDom[Entry]
	// is Entry itself.
	IDom map[BlockID]BlockID
	// Frontier maps each reachable block to its dominance frontier set.
	Frontier map[BlockID][]BlockID

	order   []BlockID       // reverse postorder, Entry first
	rpoNum  map[BlockID]int // position within order
}

// ComputeDominance builds the dominator tree and dominance frontiers for g.
func ComputeDominance(g *CFG) *Dominance {
	order := reversePostorder(g)
	rpoNum := make(map[BlockID]int, len(order))
	for i, b := range order {
		rpoNum[b] = i
	}

	idom := map[BlockID]BlockID{g.Entry: g.Entry}
	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == g.Entry {
				continue
			}
			blk := g.Block(b)
			var newIdom BlockID
			first := true
			for _, p := range blk.Preds {
				if _, ok := idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(idom, rpoNum, newIdom, p)
			}
			if first {
				continue // no processed predecessor yet
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	frontier := make(map[BlockID][]BlockID)
	for _, b := range order {
		blk := g.Block(b)
		if len(blk.Preds) < 2 {
			continue
		}
		for _, p := range blk.Preds {
			runner := p
			for runner != idom[b] {
				frontier[runner] = appendUnique(frontier[runner], b)
				next, ok := idom[runner]
				if !ok || next == runner {
					break
				}
				runner = next
			}
		}
	}

	return &Dominance{IDom: idom, Frontier: frontier, order: order, rpoNum: rpoNum}
}

// Dominates reports whether a dominates b (reflexively).
func (d *Dominance) Dominates(a, b BlockID) bool {
	if a == b {
		return true
	}
	for cur, ok := d.IDom[b]; ok; cur, ok = d.IDom[cur] {
		if cur == a {
			return true
		}
		if next, ok2 := d.IDom[cur]; !ok2 || next == cur {
			break
		}
	}
	return false
}

func intersect(idom map[BlockID]BlockID, rpo map[BlockID]int, a, b BlockID) BlockID {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(g *CFG) []BlockID {
	visited := make(map[BlockID]bool)
	var post []BlockID
	var visit func(BlockID)
	visit = func(b BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range g.Block(b).Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(g.Entry)

	order := make([]BlockID, len(post))
	for i, b := range post {
		order[len(post)-1-i] = b
	}
	return order
}

func appendUnique(xs []BlockID, x BlockID) []BlockID {
	for _, y := range xs {
		if y == x {
			return xs
		}
	}
	return append(xs, x)
}
