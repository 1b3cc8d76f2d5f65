package mir

import (
	"rayzor/internal/layout"
	"rayzor/internal/source"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// Global describes one module-level global variable or static string slot.
type Global struct {
	Sym   symbols.SymbolID
	Type  types.TypeID
	Name  string
	IsMut bool
	Span  source.Span
}

// TagCaseMeta describes one case of a tagged union's runtime layout: its
// source name, the symbol naming it (if any), and the types carried by its
// payload.
type TagCaseMeta struct {
	TagName      string
	TagSym       symbols.SymbolID
	PayloadTypes []types.TypeID
}

// ModuleMeta carries module-wide derived data that isn't itself MIR but
// that codegen (internal/backend/llvm) and later lowering passes need
// alongside it: the target layout engine, monomorphization type
// arguments per instantiated function, and tagged-union case metadata.
type ModuleMeta struct {
	Layout       *layout.LayoutEngine
	FuncTypeArgs map[symbols.SymbolID][]types.TypeID
	TagLayouts   map[types.TypeID][]TagCaseMeta
	TagNames     map[symbols.SymbolID]string
	TagAliases   map[symbols.SymbolID]symbols.SymbolID
}

// ExternDecl names a function this module calls but does not define: a
// runtime intrinsic (rt_*, resolved against internal/runtime.Registry) or
// a symbol expected to be supplied by another module loaded alongside this
// one out of the module cache (spec.md §4.6's cache round-trip). Validate
// checks every InstrCall targeting neither Module.Funcs nor Module.Externs
// is a link error waiting to happen; the execution engine consults Externs
// before falling through to the runtime registry.
type ExternDecl struct {
	Sym    symbols.SymbolID
	Name   string
	Params []types.TypeID
	Result types.TypeID
}

// Module is one compiled unit: every function lowered from HIR, the
// globals and tagged-union metadata they reference, the externs they call
// out to, and the deduplicated string pool their string literals were
// lowered into.
type Module struct {
	Funcs     map[FuncID]*Func
	FuncBySym map[symbols.SymbolID]FuncID
	Globals   []Global
	Meta      *ModuleMeta

	// Externs lists every extern dependency this module's calls reference,
	// keyed by the symbol the call site carries.
	Externs map[symbols.SymbolID]ExternDecl

	// StringPool holds every distinct string literal lowered in this
	// module, in GlobalID order - the same static-string globals
	// LowerModule already deduplicates, re-exposed as the module's string
	// pool rather than left as a lowering-local side table.
	StringPool []string
}
