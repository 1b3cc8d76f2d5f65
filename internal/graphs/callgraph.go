package graphs

import "rayzor/internal/hir"

// CallGraph is a whole-module directed graph of call sites. Edges point from
// caller to callee; an edge to NoFuncUnknown means the call target could not
// be resolved to a module-local function (a call through a value, contract
// dispatch, or an extern) and must be treated conservatively by callers that
// rely on this graph (inlining, escape analysis).
type CallGraph struct {
	Edges map[hir.FuncID][]hir.FuncID
	// Indirect records, per caller, how many call sites could not be
	// statically resolved.
	Indirect map[hir.FuncID]int
}

// CalleesOf returns the statically known callees of fn.
func (g *CallGraph) CalleesOf(fn hir.FuncID) []hir.FuncID {
	return g.Edges[fn]
}

// BuildCallGraph resolves every ExprCall in the module's functions to a
// callee FuncID when the callee is a direct reference to a module-local
// function, and otherwise counts it as indirect.
func BuildCallGraph(module *hir.Module) *CallGraph {
	g := &CallGraph{
		Edges:    make(map[hir.FuncID][]hir.FuncID),
		Indirect: make(map[hir.FuncID]int),
	}

	bySymbol := make(map[uint32]hir.FuncID)
	for _, fn := range module.Funcs {
		bySymbol[uint32(fn.SymbolID)] = fn.ID
	}

	for _, fn := range module.Funcs {
		if fn.Body == nil {
			continue
		}
		walkBlockCalls(fn.Body, fn.ID, bySymbol, g)
	}
	return g
}

func walkBlockCalls(blk *hir.Block, caller hir.FuncID, bySymbol map[uint32]hir.FuncID, g *CallGraph) {
	if blk == nil {
		return
	}
	for i := range blk.Stmts {
		walkStmtCalls(&blk.Stmts[i], caller, bySymbol, g)
	}
}

func walkStmtCalls(stmt *hir.Stmt, caller hir.FuncID, bySymbol map[uint32]hir.FuncID, g *CallGraph) {
	switch data := stmt.Data.(type) {
	case hir.LetData:
		walkExprCalls(data.Value, caller, bySymbol, g)
	case hir.AssignData:
		walkExprCalls(data.Target, caller, bySymbol, g)
		walkExprCalls(data.Value, caller, bySymbol, g)
	case hir.ExprStmtData:
		walkExprCalls(data.Expr, caller, bySymbol, g)
	case hir.ReturnData:
		walkExprCalls(data.Value, caller, bySymbol, g)
	case hir.IfStmtData:
		walkExprCalls(data.Cond, caller, bySymbol, g)
		walkBlockCalls(data.Then, caller, bySymbol, g)
		walkBlockCalls(data.Else, caller, bySymbol, g)
	case hir.WhileData:
		walkExprCalls(data.Cond, caller, bySymbol, g)
		walkBlockCalls(data.Body, caller, bySymbol, g)
	case hir.ForData:
		walkExprCalls(data.Cond, caller, bySymbol, g)
		walkExprCalls(data.Post, caller, bySymbol, g)
		walkBlockCalls(data.Body, caller, bySymbol, g)
	case hir.BlockStmtData:
		walkBlockCalls(data.Block, caller, bySymbol, g)
	case hir.DropData:
		walkExprCalls(data.Value, caller, bySymbol, g)
	}
}

func walkExprCalls(e *hir.Expr, caller hir.FuncID, bySymbol map[uint32]hir.FuncID, g *CallGraph) {
	if e == nil {
		return
	}
	switch data := e.Data.(type) {
	case hir.CallData:
		walkExprCalls(data.Callee, caller, bySymbol, g)
		for _, a := range data.Args {
			walkExprCalls(a, caller, bySymbol, g)
		}
		if callee, ok := bySymbol[uint32(data.SymbolID)]; ok && data.SymbolID != 0 {
			g.Edges[caller] = appendUniqueFunc(g.Edges[caller], callee)
		} else {
			g.Indirect[caller]++
		}
	case hir.UnaryOpData:
		walkExprCalls(data.Operand, caller, bySymbol, g)
	case hir.BinaryOpData:
		walkExprCalls(data.Left, caller, bySymbol, g)
		walkExprCalls(data.Right, caller, bySymbol, g)
	case hir.FieldAccessData:
		walkExprCalls(data.Object, caller, bySymbol, g)
	case hir.IndexData:
		walkExprCalls(data.Object, caller, bySymbol, g)
		walkExprCalls(data.Index, caller, bySymbol, g)
	case hir.StructLitData:
		for _, f := range data.Fields {
			walkExprCalls(f.Value, caller, bySymbol, g)
		}
	case hir.ArrayLitData:
		for _, el := range data.Elements {
			walkExprCalls(el, caller, bySymbol, g)
		}
	case hir.TupleLitData:
		for _, el := range data.Elements {
			walkExprCalls(el, caller, bySymbol, g)
		}
	case hir.IfData:
		walkExprCalls(data.Cond, caller, bySymbol, g)
		walkExprCalls(data.Then, caller, bySymbol, g)
		walkExprCalls(data.Else, caller, bySymbol, g)
	case hir.CastData:
		walkExprCalls(data.Value, caller, bySymbol, g)
	case hir.AwaitData:
		walkExprCalls(data.Value, caller, bySymbol, g)
	case hir.BlockExprData:
		walkBlockCalls(data.Block, caller, bySymbol, g)
	}
}

func appendUniqueFunc(xs []hir.FuncID, x hir.FuncID) []hir.FuncID {
	for _, y := range xs {
		if y == x {
			return xs
		}
	}
	return append(xs, x)
}
