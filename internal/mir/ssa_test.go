package mir_test

import (
	"testing"

	"rayzor/internal/mir"
)

func findFunc(mod *mir.Module, name string) *mir.Func {
	for _, f := range mod.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func TestComputeDominance_IfElseMerges(t *testing.T) {
	src := `fn test(x: int) -> int {
		let mut y: int = 0;
		if x > 0 {
			y = 1;
		} else {
			y = 2;
		}
		return y;
	}`
	mod, _, err := parseAndLowerMIR(t, src)
	if err != nil {
		t.Fatalf("failed to lower: %v", err)
	}
	if mod == nil {
		t.Skip("parse/sema failed, see log")
	}

	fn := findFunc(mod, "test")
	if fn == nil {
		t.Fatal("function test not found")
	}

	dom := mir.ComputeDominance(fn)
	if dom == nil {
		t.Fatal("ComputeDominance returned nil")
	}
	if !dom.Dominates(fn.Entry, fn.Entry) {
		t.Error("entry should dominate itself")
	}
	for id := range fn.Blocks {
		if !dom.Dominates(fn.Entry, mir.BlockID(id)) {
			t.Errorf("entry should dominate every reachable block, missing %d", id)
		}
	}
}

func TestBuildSSA_PromotesScalarLocal(t *testing.T) {
	src := `fn test(x: int) -> int {
		let mut y: int = 0;
		if x > 0 {
			y = 1;
		} else {
			y = 2;
		}
		return y;
	}`
	mod, _, err := parseAndLowerMIR(t, src)
	if err != nil {
		t.Fatalf("failed to lower: %v", err)
	}
	if mod == nil {
		t.Skip("parse/sema failed, see log")
	}

	fn := findFunc(mod, "test")
	if fn == nil {
		t.Fatal("function test not found")
	}

	ssa := mir.BuildSSA(fn)
	if ssa == nil {
		t.Fatal("BuildSSA returned nil")
	}
	if len(ssa.Defs) == 0 {
		t.Error("expected at least one SSA definition for the mutated local")
	}

	var sawPhi bool
	for _, def := range ssa.Defs {
		if def.IsPhi {
			sawPhi = true
			if len(def.Incoming) < 2 {
				t.Errorf("phi at block %d should have incoming edges from both branches, got %d", def.Block, len(def.Incoming))
			}
		}
	}
	if !sawPhi {
		t.Error("expected a phi node at the if/else merge point")
	}
}

func TestBuildSSA_AddressTakenLocalNotPromoted(t *testing.T) {
	src := `fn main() -> nothing {
		let mut x: int = 1;
		let r: &mut int = &mut x;
		@drop r;
		x = 2;
		return;
	}`
	mod, _, err := parseAndLowerMIR(t, src)
	if err != nil {
		t.Fatalf("failed to lower: %v", err)
	}
	if mod == nil {
		t.Skip("parse/sema failed, see log")
	}

	fn := findFunc(mod, "main")
	if fn == nil {
		t.Fatal("function main not found")
	}

	ssa := mir.BuildSSA(fn)
	if ssa == nil {
		t.Fatal("BuildSSA returned nil")
	}
	for i, l := range fn.Locals {
		if l.Flags&(mir.LocalFlagRef|mir.LocalFlagRefMut|mir.LocalFlagPtr) != 0 {
			if ssa.Promoted[mir.LocalID(i)] {
				t.Errorf("local %d (%s) carries a reference flag and must not be promoted", i, l.Name)
			}
		}
	}
}
