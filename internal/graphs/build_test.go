package graphs_test

import (
	"context"
	"testing"

	"rayzor/internal/ast"
	"rayzor/internal/diag"
	"rayzor/internal/graphs"
	"rayzor/internal/hir"
	"rayzor/internal/lexer"
	"rayzor/internal/mono"
	"rayzor/internal/parser"
	"rayzor/internal/sema"
	"rayzor/internal/source"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// lowerToHIR compiles src through the front end and HIR lowering, skipping
// straight to nil,nil if parsing or sema reports any error so graph tests
// stay focused on well-formed fixtures.
func lowerToHIR(t *testing.T, src string) *hir.Module {
	t.Helper()

	fs := source.NewFileSet()
	fileID := fs.AddVirtual("test.sg", []byte(src))
	file := fs.Get(fileID)

	sharedStrings := source.NewInterner()
	typeInterner := types.NewInterner()
	bag := diag.NewBag(100)

	lx := lexer.New(file, lexer.Options{})
	builder := ast.NewBuilder(ast.Hints{}, sharedStrings)

	result := parser.ParseFile(context.Background(), fs, lx, builder, parser.Options{
		Reporter:  &diag.BagReporter{Bag: bag},
		MaxErrors: 100,
	})
	if bag.HasErrors() {
		t.Fatalf("parse errors: %v", bag.Items())
	}

	symbolsRes := symbols.ResolveFile(builder, result.File, &symbols.ResolveOptions{
		Reporter:   &diag.BagReporter{Bag: bag},
		Validate:   true,
		ModulePath: "test",
		FilePath:   "test.sg",
	})

	instMap := mono.NewInstantiationMap()
	semaRes := sema.Check(context.Background(), builder, result.File, sema.Options{
		Reporter:       &diag.BagReporter{Bag: bag},
		Symbols:        &symbolsRes,
		Types:          typeInterner,
		Instantiations: mono.NewInstantiationMapRecorder(instMap),
	})
	if bag.HasErrors() {
		t.Fatalf("sema errors: %v", bag.Items())
	}

	mod, err := hir.Lower(context.Background(), builder, result.File, &semaRes, &symbolsRes)
	if err != nil {
		t.Fatalf("hir.Lower: %v", err)
	}
	return mod
}

func TestBuildCFG_IfElseMerges(t *testing.T) {
	mod := lowerToHIR(t, `
		fn pick(x: int) -> int {
			if x > 0 {
				return 1;
			} else {
				return 0;
			}
		}
	`)
	fn := mod.FindFunc("pick")
	if fn == nil {
		t.Fatal("function pick not found")
	}

	cfg := graphs.BuildCFG(fn)
	if cfg.Entry == graphs.NoBlockID || cfg.Exit == graphs.NoBlockID {
		t.Fatal("expected non-sentinel entry/exit blocks")
	}
	if len(cfg.Block(cfg.Exit).Preds) != 2 {
		t.Fatalf("expected two return edges into exit, got %d", len(cfg.Block(cfg.Exit).Preds))
	}
}

func TestBuildCFG_WhileLoopBackEdge(t *testing.T) {
	mod := lowerToHIR(t, `
		fn count() -> int {
			let mut i = 0;
			while i < 10 {
				i = i + 1;
			}
			return i;
		}
	`)
	fn := mod.FindFunc("count")
	if fn == nil {
		t.Fatal("function count not found")
	}

	cfg := graphs.BuildCFG(fn)
	dom := graphs.ComputeDominance(cfg)

	var header graphs.BlockID
	for _, b := range cfg.Blocks {
		if b == nil {
			continue
		}
		for _, l := range b.Labels {
			if l == "loop-header" {
				header = b.ID
			}
		}
	}
	if header == graphs.NoBlockID {
		t.Fatal("expected a loop-header block")
	}
	if !dom.Dominates(cfg.Entry, header) {
		t.Fatal("entry should dominate the loop header")
	}
}

func TestBuildDefUse_PlacesPhiAtMerge(t *testing.T) {
	mod := lowerToHIR(t, `
		fn pick(x: int) -> int {
			let mut y = 0;
			if x > 0 {
				y = 1;
			} else {
				y = 2;
			}
			return y;
		}
	`)
	fn := mod.FindFunc("pick")
	if fn == nil {
		t.Fatal("function pick not found")
	}

	cfg := graphs.BuildCFG(fn)
	dom := graphs.ComputeDominance(cfg)
	du := graphs.BuildDefUse(cfg, dom)

	found := false
	for _, locals := range du.PhiSites {
		if len(locals) > 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one phi site for y, defined on both if-branches")
	}
}

func TestBuildCallGraph_ResolvesDirectCalls(t *testing.T) {
	mod := lowerToHIR(t, `
		fn helper() -> int {
			return 1;
		}
		fn main() -> int {
			return helper();
		}
	`)

	cg := graphs.BuildCallGraph(mod)
	main := mod.FindFunc("main")
	helper := mod.FindFunc("helper")
	if main == nil || helper == nil {
		t.Fatal("expected both functions to be found")
	}

	callees := cg.CalleesOf(main.ID)
	if len(callees) != 1 || callees[0] != helper.ID {
		t.Fatalf("expected main to call helper, got %v", callees)
	}
}
