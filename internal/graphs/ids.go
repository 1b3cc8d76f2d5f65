// Package graphs builds the semantic analysis graphs that sit between HIR
// lowering and MIR construction: a per-function control-flow graph and its
// dominator tree, a def-use graph over locals (used to decide SSA phi
// placement before MIR ever sees the function), a whole-module call graph,
// and a per-local ownership/mutation classification.
//
// Every graph here is read-only with respect to HIR: nothing in this package
// mutates a hir.Module. Callers attach the results to HIR via
// hir.AttachAttributes (see internal/hir/lower_attrs.go).
package graphs

import "rayzor/internal/hir"

// BlockID identifies a basic block within a function's control-flow graph.
// It is the same identifier space hir.BlockID reserves for "future CFG
// support" - this package is that support.
type BlockID = hir.BlockID

// NoBlockID is the sentinel for "no block".
const NoBlockID = hir.NoBlockID

// LocalID identifies a local variable, matching hir.LocalID (itself a cast
// of symbols.SymbolID for bindings that appear in a function body).
type LocalID = hir.LocalID

// NoLocalID is the sentinel for "no local".
const NoLocalID = hir.NoLocalID
