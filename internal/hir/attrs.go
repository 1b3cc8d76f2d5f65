package hir

// Attributes holds per-function facts computed from the semantic analysis
// graphs (internal/graphs) after HIR lowering. They are advisory: nothing in
// HIR lowering itself depends on them, but MIR construction and the
// optimizer consult them to make cheap decisions without re-walking the
// function body (inlining eligibility, whether a straight-line fast path
// applies, which locals are worth keeping in SSA registers).
//
// Attrs is nil until a graphs pass has run over the module; callers must
// treat a nil Attrs as "unknown, assume conservative defaults".
type Attributes struct {
	// InlineCandidate is true for small, non-recursive, non-async functions
	// with a single exit block.
	InlineCandidate bool
	// StraightLineCode is true when the function's CFG has no branches
	// (every block has at most one successor).
	StraightLineCode bool
	// ComplexControlFlow is true when the function has nested loops or more
	// than a handful of branch points - a hint to the tiered executor to
	// favor the optimizing JIT over the fast one once promoted.
	ComplexControlFlow bool
	// CSEOpportunities counts syntactically identical pure subexpressions
	// that appear more than once along some path, a cheap upper bound on
	// what the optimizer's common subexpression elimination pass could fold.
	CSEOpportunities int
	// Pure is true when the function has no observable side effects
	// reachable through its call graph (no writes that escape, no I/O
	// intrinsics, no unresolved indirect calls).
	Pure bool
}

// Attrs returns the function's computed attributes, or a zero Attributes
// value if none have been computed yet.
func (f *Func) AttrsOrZero() Attributes {
	if f == nil || f.Attrs == nil {
		return Attributes{}
	}
	return *f.Attrs
}
