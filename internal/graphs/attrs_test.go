package graphs_test

import (
	"testing"

	"rayzor/internal/graphs"
)

func TestAttachAttributes_StraightLineHasNoPhis(t *testing.T) {
	mod := lowerToHIR(t, `
		fn add(a: int, b: int) -> int {
			return a + b;
		}
	`)
	mg, err := graphs.BuildModuleGraphs(mod)
	if err != nil {
		t.Fatalf("BuildModuleGraphs: %v", err)
	}
	graphs.AttachAttributes(mod, mg)

	fn := mod.FindFunc("add")
	if fn == nil {
		t.Fatal("function add not found")
	}
	attrs := fn.AttrsOrZero()
	if !attrs.StraightLineCode {
		t.Error("expected StraightLineCode for a branch-free function")
	}
	if attrs.ComplexControlFlow {
		t.Error("did not expect ComplexControlFlow for a branch-free function")
	}
	if !attrs.InlineCandidate {
		t.Error("expected a tiny non-recursive function to be InlineCandidate")
	}
}

func TestAttachAttributes_LoopIntroducesPhi(t *testing.T) {
	mod := lowerToHIR(t, `
		fn sum(n: int) -> int {
			let mut s = 0;
			let mut i = 0;
			while i < n {
				s = s + i;
				i = i + 1;
			}
			return s;
		}
	`)
	mg, err := graphs.BuildModuleGraphs(mod)
	if err != nil {
		t.Fatalf("BuildModuleGraphs: %v", err)
	}
	graphs.AttachAttributes(mod, mg)

	fn := mod.FindFunc("sum")
	if fn == nil {
		t.Fatal("function sum not found")
	}
	attrs := fn.AttrsOrZero()
	if attrs.StraightLineCode {
		t.Error("a while loop merges defs at its header - StraightLineCode should be false")
	}
}

func TestAttachAttributes_RecursiveFunctionIsNotInlineCandidate(t *testing.T) {
	mod := lowerToHIR(t, `
		fn fact(n: int) -> int {
			if n < 2 {
				return 1;
			}
			return n * fact(n - 1);
		}
	`)
	mg, err := graphs.BuildModuleGraphs(mod)
	if err != nil {
		t.Fatalf("BuildModuleGraphs: %v", err)
	}
	graphs.AttachAttributes(mod, mg)

	fn := mod.FindFunc("fact")
	if fn == nil {
		t.Fatal("function fact not found")
	}
	attrs := fn.AttrsOrZero()
	if attrs.InlineCandidate {
		t.Error("a self-recursive function must never be InlineCandidate, regardless of size")
	}
}
