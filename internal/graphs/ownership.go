package graphs

import "rayzor/internal/hir"

// MutationClass classifies how a local is used across a function body,
// derived from the borrow-event log the HIR borrow checker already produces
// (hir.BorrowGraph). It is the input to escape-sensitive optimizations
// (stack allocation of owned locals, copy elision, pass-by-reference
// lowering decisions).
type MutationClass uint8

const (
	// NeverMutated means the local is read-only after its definition.
	NeverMutated MutationClass = iota
	// LocallyMutated means the local is written but the borrow checker can
	// prove no write escapes the function (no &mut borrow is spawned, moved
	// into a return value, or captured by an async block).
	LocallyMutated
	// EscapesMutated means a mutable borrow of the local is returned, moved,
	// or captured by a spawned/async block - its storage cannot be reused
	// once the function returns.
	EscapesMutated
	// UnknownMutation means the borrow checker has no event data for this
	// local (e.g. it predates borrow-graph construction or borrow analysis
	// was skipped) - callers must assume the worst case.
	UnknownMutation
)

func (c MutationClass) String() string {
	switch c {
	case NeverMutated:
		return "never_mutated"
	case LocallyMutated:
		return "locally_mutated"
	case EscapesMutated:
		return "escapes_mutated"
	default:
		return "unknown_mutation"
	}
}

// OwnershipGraph records the mutation classification of every local in a
// function along with the borrow edges between them.
type OwnershipGraph struct {
	Func    hir.FuncID
	Class   map[LocalID]MutationClass
	Borrows *hir.BorrowGraph // nil if the function has no borrow data
}

// ClassOf returns the mutation classification of local, defaulting to
// UnknownMutation when no data is available.
func (g *OwnershipGraph) ClassOf(local LocalID) MutationClass {
	if g == nil {
		return UnknownMutation
	}
	if c, ok := g.Class[local]; ok {
		return c
	}
	return UnknownMutation
}

// BuildOwnership classifies every local mentioned in fn.Borrow's event log.
// Locals with no borrow events recorded (the body has no borrow graph, e.g.
// it was never built) are left unclassified and resolve to UnknownMutation.
func BuildOwnership(fn *hir.Func) *OwnershipGraph {
	g := &OwnershipGraph{
		Func:    fn.ID,
		Class:   make(map[LocalID]MutationClass),
		Borrows: fn.Borrow,
	}
	if fn.Borrow == nil {
		return g
	}

	written := make(map[LocalID]bool)
	escaped := make(map[LocalID]bool)
	seen := make(map[LocalID]bool)

	mark := func(local hir.LocalID) {
		if local == hir.NoLocalID {
			return
		}
		seen[LocalID(local)] = true
	}

	for _, ev := range fn.Borrow.Events {
		mark(ev.Local)
		mark(ev.Peer)
		switch ev.Kind {
		case hir.EvWrite, hir.EvMove:
			if ev.Local != hir.NoLocalID {
				written[LocalID(ev.Local)] = true
			}
		case hir.EvSpawnEscape:
			if ev.Local != hir.NoLocalID {
				escaped[LocalID(ev.Local)] = true
			}
			if ev.Peer != hir.NoLocalID {
				escaped[LocalID(ev.Peer)] = true
			}
		}
	}
	for _, edge := range fn.Borrow.Edges {
		if edge.Kind == hir.BorrowMut && escaped[LocalID(edge.From)] {
			escaped[LocalID(edge.To)] = true
		}
	}

	for local := range seen {
		switch {
		case escaped[local] && written[local]:
			g.Class[local] = EscapesMutated
		case written[local]:
			g.Class[local] = LocallyMutated
		default:
			g.Class[local] = NeverMutated
		}
	}
	return g
}
